package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// L is the kernel-wide structured logger.
var L hclog.Logger

func init() {
	L = New("kiln", os.Stderr)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// New returns an Info level logger writing to w.
func New(name string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.Info,
		Output: w,
	})
}

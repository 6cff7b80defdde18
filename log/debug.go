package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// EnableDebug raises L to the requested level. An empty level falls back to
// the TRACE environment variable.
func EnableDebug(level string) {
	if level != "" {
		if lvl := hclog.LevelFromString(level); lvl != hclog.NoLevel {
			L.SetLevel(lvl)
		}
		return
	}

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

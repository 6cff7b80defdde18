package log

import (
	"fmt"
	"io"
	"strings"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
)

// Sink accepts formatted kernel console text. Implementations must never
// block the caller.
type Sink interface {
	Printf(format string, args ...interface{})
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) Printf(string, ...interface{}) {}

// ringSize must always be a power of 2.
const ringSize = 8192

// RingSink keeps the most recent console output in a fixed-size ring buffer.
// Once the buffer fills up the oldest bytes are overwritten. Every completed
// line is also forwarded to Forward, if set.
type RingSink struct {
	Forward hclog.Logger

	mu     sync.Mutex
	buffer [ringSize]byte
	rIndex int
	wIndex int
	line   []byte
}

// NewRingSink returns a sink that forwards completed lines to l.
func NewRingSink(l hclog.Logger) *RingSink {
	return &RingSink{Forward: l}
}

func (rs *RingSink) Printf(format string, args ...interface{}) {
	rs.Write([]byte(fmt.Sprintf(format, args...)))
}

// Write writes len(p) bytes from p to the ring.
func (rs *RingSink) Write(p []byte) (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, b := range p {
		rs.buffer[rs.wIndex] = b
		rs.wIndex = (rs.wIndex + 1) & (ringSize - 1)
		if rs.rIndex == rs.wIndex {
			rs.rIndex = (rs.rIndex + 1) & (ringSize - 1)
		}

		if b == '\n' {
			rs.flushLine()
			continue
		}

		if len(rs.line) < ringSize {
			rs.line = append(rs.line, b)
		}
	}

	return len(p), nil
}

func (rs *RingSink) flushLine() {
	if rs.Forward != nil {
		rs.Forward.Info("console", "line", string(rs.line))
	}

	rs.line = rs.line[:0]
}

// Read drains up to len(p) bytes of buffered output into p.
func (rs *RingSink) Read(p []byte) (n int, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch {
	case rs.rIndex < rs.wIndex:
		n = copy(p, rs.buffer[rs.rIndex:rs.wIndex])
		rs.rIndex += n

		return n, nil
	case rs.rIndex > rs.wIndex:
		n = copy(p, rs.buffer[rs.rIndex:])
		rs.rIndex += n

		if rs.rIndex == len(rs.buffer) {
			rs.rIndex = 0
		}

		return n, nil
	default:
		return 0, io.EOF
	}
}

// String returns the buffered output without draining it.
func (rs *RingSink) String() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var sb strings.Builder

	if rs.rIndex <= rs.wIndex {
		sb.Write(rs.buffer[rs.rIndex:rs.wIndex])
	} else {
		sb.Write(rs.buffer[rs.rIndex:])
		sb.Write(rs.buffer[:rs.wIndex])
	}

	return sb.String()
}

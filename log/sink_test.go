package log

import (
	"bytes"
	"io"
	"strings"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestRingSink(t *testing.T) {
	n := neko.Modern(t)

	n.It("keeps formatted output", func(t *testing.T) {
		var rs RingSink

		rs.Printf("[[PID %d]] %s\n", 3, "hello")

		require.Equal(t, "[[PID 3]] hello\n", rs.String())
	})

	n.It("forwards completed lines to the logger", func(t *testing.T) {
		var out bytes.Buffer

		rs := NewRingSink(hclog.New(&hclog.LoggerOptions{Output: &out}))

		rs.Printf("partial")
		require.Empty(t, out.String())

		rs.Printf(" line\n")
		require.Contains(t, out.String(), "partial line")
	})

	n.It("overwrites the oldest bytes once full", func(t *testing.T) {
		var rs RingSink

		rs.Printf("%s", strings.Repeat("a", ringSize))
		rs.Printf("tail")

		s := rs.String()
		require.Equal(t, ringSize-1, len(s))
		require.True(t, strings.HasSuffix(s, "tail"))
	})

	n.It("drains through Read", func(t *testing.T) {
		var rs RingSink

		rs.Printf("abc")

		data, err := io.ReadAll(&rs)
		require.NoError(t, err)
		require.Equal(t, "abc", string(data))

		require.Empty(t, rs.String())
	})

	n.Meow()
}

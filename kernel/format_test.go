package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDebugLog(t *testing.T) {
	cases := []struct {
		msg   string
		extra uint64
		more  uint64
		out   string
	}{
		{"plain", 0, 0, "plain"},
		{"pid %d of %d", 3, 7, "pid 3 of 7"},
		{"%d", ^uint64(0), 0, "-1"},
		{"%u", ^uint64(0), 0, "18446744073709551615"},
		{"0x%x", 0xbeef, 0, "0xbeef"},
		{"%8", 0xbeef, 0, "000000000000beef"},
		{"100%%", 1, 0, "100%"},
		{"%q stays", 1, 0, "%q stays"},
		{"trailing %", 1, 0, "trailing %"},
		{"%d %d %d", 1, 2, "1 2 0"},
	}

	for _, c := range cases {
		assert.Equal(t, c.out, formatDebugLog([]byte(c.msg), c.extra, c.more), c.msg)
	}
}

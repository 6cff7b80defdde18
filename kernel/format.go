package kernel

import (
	"strconv"
	"strings"
)

// formatDebugLog expands the handful of verbs a DebugLog message may use
// against its two arguments: %d %u %x, %8 for a full 64-bit hex value and
// %%. Anything else is copied through untouched.
func formatDebugLog(msg []byte, args ...uint64) string {
	var sb strings.Builder

	next := func() uint64 {
		if len(args) == 0 {
			return 0
		}

		v := args[0]
		args = args[1:]
		return v
	}

	for i := 0; i < len(msg); i++ {
		c := msg[i]

		if c != '%' || i+1 == len(msg) {
			sb.WriteByte(c)
			continue
		}

		i++

		switch msg[i] {
		case '%':
			sb.WriteByte('%')
		case 'd':
			sb.WriteString(strconv.FormatInt(int64(next()), 10))
		case 'u':
			sb.WriteString(strconv.FormatUint(next(), 10))
		case 'x':
			sb.WriteString(strconv.FormatUint(next(), 16))
		case '8':
			s := strconv.FormatUint(next(), 16)
			sb.WriteString(strings.Repeat("0", 16-len(s)))
			sb.WriteString(s)
		default:
			sb.WriteByte('%')
			sb.WriteByte(msg[i])
		}
	}

	return sb.String()
}

package kernel

import "strconv"

// Tag identifies the kind of request a trap leaves behind in a process slot.
type Tag uint64

const (
	Noop        Tag = 0
	Cpu         Tag = 1
	ExitProcess Tag = 2
	DebugLog    Tag = 3

	// FirstUserTag is the first tag routed to the SyscallHandler.
	FirstUserTag Tag = 16
)

func (t Tag) String() string {
	switch t {
	case Noop:
		return "noop"
	case Cpu:
		return "cpu"
	case ExitProcess:
		return "exit-process"
	case DebugLog:
		return "debug-log"
	default:
		return "syscall-" + strconv.FormatUint(uint64(t), 10)
	}
}

// Builtin reports whether the tag is handled by the dispatcher itself.
func (t Tag) Builtin() bool {
	return t < FirstUserTag
}

package kernel

import "github.com/pkg/errors"

var (
	ErrTableFull    = errors.New("process table full")
	ErrBadSlot      = errors.New("slot index out of range")
	ErrReservedSlot = errors.New("slot is reserved for the idle process")
	ErrNotPresent   = errors.New("slot holds no live process")
	ErrNoProgram    = errors.New("process has no program")
	ErrBadConfig    = errors.New("invalid kernel configuration")
	ErrFault        = errors.New("user address not accessible")
	ErrClosed       = errors.New("kernel is closed")
)

// Error describes a condition the kernel cannot recover from.
type Error struct {
	Module  string
	Message string
}

func (e *Error) Error() string {
	return e.Module + ": " + e.Message
}

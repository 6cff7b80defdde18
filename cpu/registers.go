package cpu

import (
	"fmt"
	"io"
)

// Segment selectors loaded into CS/SS.
const (
	KernelCode64 uint64 = 0x08
	KernelData   uint64 = 0x10
	UserData     uint64 = 0x1b
	UserCode64   uint64 = 0x23
)

// Registers contains a snapshot of the register values when an exception or
// syscall occurs.
type Registers struct {
	// Syscall arguments. RCX carries the syscall tag.
	RCX uint64
	RDX uint64
	R8  uint64
	R9  uint64

	// RAX holds the syscall return value.
	RAX uint64

	// Index is the exception vector for CPU exceptions.
	Index uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// UserMode reports whether the frame returns to ring 3.
func (r *Registers) UserMode() bool {
	return r.CS&3 == 3
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	fmt.Fprintf(w, "RAX = %016x RCX = %016x\n", r.RAX, r.RCX)
	fmt.Fprintf(w, "RDX = %016x R8  = %016x\n", r.RDX, r.R8)
	fmt.Fprintf(w, "R9  = %016x IDX = %016x\n", r.R9, r.Index)
	fmt.Fprintf(w, "RIP = %016x CS  = %016x\n", r.RIP, r.CS)
	fmt.Fprintf(w, "RSP = %016x SS  = %016x\n", r.RSP, r.SS)
	fmt.Fprintf(w, "RFL = %016x\n", r.RFlags)
}

// Vector describes an x86 exception slot.
type Vector uint64

const (
	DivideByZero      = Vector(0)
	Breakpoint        = Vector(3)
	InvalidOpcode     = Vector(6)
	DoubleFault       = Vector(8)
	GeneralProtection = Vector(13)
	PageFault         = Vector(14)
)

func (v Vector) String() string {
	switch v {
	case DivideByZero:
		return "#DE"
	case Breakpoint:
		return "#BP"
	case InvalidOpcode:
		return "#UD"
	case DoubleFault:
		return "#DF"
	case GeneralProtection:
		return "#GP"
	case PageFault:
		return "#PF"
	default:
		return fmt.Sprintf("#%d", uint64(v))
	}
}

package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
)

type SysArgs struct {
	Tag  kernel.Tag
	Args SyscallRequest
}

// SyscallRequest holds the argument registers of a request.
type SyscallRequest struct {
	RDX, R8, R9 uint64
}

type Func func(context.Context, hclog.Logger, *kernel.Task, SysArgs) uint64

var (
	Syscalls     [256]Func
	SyscallNames [256]string
)

const (
	SysGetPid = kernel.FirstUserTag + iota
	SysYield
	SysGetTime
	SysRequestRender
)

// Errors are returned as negated errno values.
const (
	EFAULT = 14
	EINVAL = 22
)

func errno(e int64) uint64 {
	return uint64(-e)
}

func register(tag kernel.Tag, name string, f Func) {
	if tag.Builtin() {
		panic("syscall tag " + tag.String() + " is reserved for the dispatcher")
	}

	Syscalls[tag] = f
	SyscallNames[tag] = name
}

package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
	"github.com/kilnos/kiln/log"
)

// Invoker routes the tags the dispatcher does not own to the Syscalls
// table. Handlers run to completion, so the caller is always runnable
// again afterwards.
type Invoker struct {
	L hclog.Logger
}

func (i *Invoker) HandleSyscall(ctx context.Context, t *kernel.Task, tag kernel.Tag) bool {
	if uint64(tag) >= uint64(len(Syscalls)) {
		return false
	}

	f := Syscalls[tag]
	if f == nil {
		return false
	}

	l := i.L
	if l == nil {
		l = log.L
	}

	frame := t.Frame()

	args := SysArgs{
		Tag: tag,
		Args: SyscallRequest{
			RDX: frame.RDX,
			R8:  frame.R8,
			R9:  frame.R9,
		},
	}

	l.Trace("syscall", "pid", t.Index(), "index", uint64(tag), "name", SyscallNames[tag], "req", args.Args)

	frame.RAX = f(ctx, l, t, args)
	t.SetSchedulable(true)

	return true
}

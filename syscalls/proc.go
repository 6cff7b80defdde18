package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
)

func sysGetPid(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) uint64 {
	return uint64(p.Index())
}

// Giving up the processor needs no work here: the caller went through a
// trap, and the scheduler continues after it.
func sysYield(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) uint64 {
	return 0
}

func sysRequestRender(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) uint64 {
	p.Kernel.RequestRender()
	return 0
}

func init() {
	register(SysGetPid, "get_pid", sysGetPid)
	register(SysYield, "yield", sysYield)
	register(SysRequestRender, "request_render", sysRequestRender)
}

package syscalls

import (
	"context"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
)

const (
	ClockRealtime  = 0
	ClockMonotonic = 1
)

type timespec struct {
	Sec  int64
	NSec int64
}

func sysGetTime(ctx context.Context, l hclog.Logger, p *kernel.Task, args SysArgs) uint64 {
	var (
		clk = args.Args.RDX
		ptr = args.Args.R8
	)

	var ns int64

	switch clk {
	case ClockRealtime:
		ns = time.Now().UnixNano()
	case ClockMonotonic:
		ns = p.Kernel.Uptime().Nanoseconds()
	default:
		return errno(EINVAL)
	}

	if ptr != 0 {
		ts := timespec{
			Sec:  ns / 1000000000,
			NSec: ns % 1000000000,
		}

		if err := p.CopyOut(ptr, ts); err != nil {
			l.Debug("error copying out time", "pid", p.Index(), "error", err)
			return errno(EFAULT)
		}
	}

	return uint64(ns)
}

func init() {
	register(SysGetTime, "get_time", sysGetTime)
}

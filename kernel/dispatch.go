package kernel

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/kilnos/kiln/cpu"
)

// DebugLogPayload is the structure a DebugLog request points RDX at.
type DebugLogPayload struct {
	Message uint64
	Extra   uint64
	More    uint64
}

// Dispatch drains every pending request once, in ascending slot order, and
// returns how many it handled.
func (k *Kernel) Dispatch(ctx context.Context) int {
	k.checkIdle()

	handled := 0

	for i := 1; i < k.table.Len(); i++ {
		p := k.table.at(i)

		if !p.present {
			if p.pending != Noop {
				k.panic("dispatch", "pending request on an empty slot")
			}
			continue
		}

		if p.pending == Noop {
			continue
		}

		// Reset before handling so a request is never seen twice.
		tag := p.pending
		p.pending = Noop

		k.selectAddressSpace(p.root)

		k.L.Trace("dispatch", "pid", i, "tag", tag.String())

		switch tag {
		case DebugLog:
			k.debugLog(p)
			p.schedulable = true
		case ExitProcess:
			k.sink.Printf("[[ExitProcess:PID %d]] %d\n", i, p.frame.RDX)
			k.terminate(p)
		case Cpu:
			k.cpuException(p)
			k.terminate(p)
		default:
			// Handlers may read RAX before writing it.
			p.frame.RAX = 0

			if k.handler == nil || !k.handler.HandleSyscall(ctx, k.task(p), tag) {
				k.sink.Printf("[[PID %d]] Unknown or unhandled syscall %d\n", i, p.frame.RCX)
				p.frame.RAX = 0
				p.schedulable = true
			}
		}

		handled++
	}

	return handled
}

func (k *Kernel) debugLog(p *Process) {
	frame := &p.frame

	k.sink.Printf("[[DebugLog:PID %d]] ", p.index)
	k.sink.Printf("[[rcx=%d rdx=%d r8=%d]] ", frame.RCX, frame.RDX, frame.R8)

	t := k.task(p)

	var payload DebugLogPayload

	if err := t.CopyIn(frame.RDX, &payload); err != nil {
		k.L.Debug("debug-log-payload-rejected", "pid", p.index, "addr", frame.RDX)
	} else if msg, err := t.ReadCString(payload.Message, k.cfg.MaxDebugLogLength); err != nil {
		k.L.Debug("debug-log-message-rejected", "pid", p.index, "addr", payload.Message)
	} else {
		k.sink.Printf("%s", formatDebugLog(msg, payload.Extra, payload.More))
	}

	k.sink.Printf("\n")
}

func (k *Kernel) cpuException(p *Process) {
	var (
		frame  = &p.frame
		vector = cpu.Vector(frame.Index)
	)

	k.sink.Printf("[[Cpu:PID %d]] %d\n", p.index, frame.RDX)
	k.sink.Printf("Process #%d closed due to CPU exception #%d\n", p.index, frame.Index)

	switch vector {
	case cpu.PageFault:
		k.sink.Printf("#PF at %016x\n", p.faultAddress)
	case cpu.GeneralProtection:
		k.sink.Printf("#GPF at %016x\n", frame.RIP)
	case cpu.Breakpoint:
		k.sink.Printf("#BP at %016x\n", frame.RIP)
	}

	k.L.Warn("process-fault", "pid", p.index, "vector", vector.String(),
		"ip", frame.RIP, "fault-address", p.faultAddress)

	if k.L.IsTrace() {
		k.L.Trace("process-fault-frame", "frame", spew.Sdump(*frame))
	}
}

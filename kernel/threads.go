package kernel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kilnos/kiln/cpu"
	"github.com/kilnos/kiln/memory"
	"github.com/kilnos/kiln/pkg/coro"
)

const KernelStackSize uint64 = 64 << 10

// Thread is one of the two permanent kernel execution contexts. Threads
// live outside the process table.
type Thread struct {
	Name string

	frame cpu.Registers
	ctx   *coro.Context
}

// Frame is the register state saved when the thread last yielded.
func (t *Thread) Frame() cpu.Registers {
	return t.frame
}

func (k *Kernel) newThread(name string, n uint64, body func()) *Thread {
	t := &Thread{Name: name}

	t.frame = cpu.Registers{
		RIP: memory.KernelBase + n*memory.PageSize,
		CS:  cpu.KernelCode64,
		RSP: memory.KernelBase + memory.KernelImageSize - (n-1)*KernelStackSize,
		SS:  cpu.KernelData,
	}

	t.ctx = coro.New(func(*coro.Context) {
		k.L.Debug("kernel-thread-started", "thread", name)
		body()
	})

	return t
}

func (k *Kernel) dispatchThread() {
	for {
		k.Dispatch(k.ctx)
		k.switchToUserProcess()
	}
}

func (k *Kernel) renderThread() {
	for {
		if !k.RenderRequested() {
			k.switchToUserProcess()
			continue
		}

		atomic.StoreInt32(&k.renderRequested, 0)

		k.composite()

		// The trap that handed us the processor may still be waiting in
		// the table, so the dispatcher runs before any process does.
		k.switchToThread(k.dispatch)
	}
}

// switchToThread yields the calling kernel thread straight to another
// kernel thread without entering a process.
func (k *Kernel) switchToThread(th *Thread) {
	k.switchTo = th
	k.current.ctx.Yield()
}

func (k *Kernel) composite() {
	if k.renderer == nil {
		return
	}

	if err := k.renderer.Composite(k.ctx, k.Snapshot()); err != nil {
		k.L.Error("error compositing", "error", err)
	}
}

// Current is the kernel thread that receives control at the next Tick.
func (k *Kernel) Current() *Thread {
	return k.current
}

// Tick performs one hand-off cycle: the current kernel thread runs until it
// yields, then the process it resolved runs until its next trap. A thread
// yielding to another kernel thread hands over without entering a process.
func (k *Kernel) Tick(ctx context.Context) {
	if k.closed {
		return
	}

	k.ctx = ctx

	th := k.current
	if !th.ctx.Resume() {
		k.panic("thread", th.Name+" kernel thread exited")
	}

	if next := k.switchTo; next != nil {
		k.switchTo = nil
		k.handOver(th, next)
	} else {
		k.gate(th, k.handoff)
	}

	k.ticks++
}

// Run ticks until ctx is done or the kernel is closed.
func (k *Kernel) Run(ctx context.Context) error {
	k.L.Info("kernel-run")

	for {
		if k.closed {
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		k.Tick(ctx)
	}
}

// gate is the yield trap handler. It parks the calling thread, runs the
// target process under its own root and, once the process traps, records
// the trap and picks the thread that gets control back: the rendering
// thread while a render is requested, the dispatcher otherwise.
func (k *Kernel) gate(th *Thread, next int) {
	th.frame = k.cpu.Save()

	p := k.table.at(next)

	k.cpu.Load(&p.frame)
	k.loadAddressSpace(p.root)

	kind := k.enter(p)

	if kind != trapHalt {
		k.recordTrap(p, kind)
	}

	target := k.dispatch
	if k.RenderRequested() {
		target = k.render
	}

	k.resumeThread(target)
}

// handOver parks th and gives the processor to next directly.
func (k *Kernel) handOver(th, next *Thread) {
	th.frame = k.cpu.Save()
	k.resumeThread(next)
}

func (k *Kernel) resumeThread(th *Thread) {
	k.current = th
	k.cpu.Load(&th.frame)
	k.loadAddressSpace(k.kernelRoot)
}

func (k *Kernel) enter(p *Process) trapKind {
	if p.index == 0 {
		k.halt()
		return trapHalt
	}

	u := p.user
	u.trap = trapNone

	if !p.ctx.Resume() || u.trap == trapNone {
		return trapExit
	}

	return u.trap
}

// recordTrap is the trap entry path: the live registers become the saved
// frame and the request is left in the slot for the dispatcher.
func (k *Kernel) recordTrap(p *Process, kind trapKind) {
	p.frame = k.cpu.Save()

	switch kind {
	case trapSyscall:
		p.pending = Tag(p.frame.RCX)
	case trapException:
		p.pending = Cpu
		if cpu.Vector(p.frame.Index) == cpu.PageFault {
			p.faultAddress = k.cpu.ReadCR2()
		}
	case trapExit:
		p.frame.RDX = 0
		p.pending = ExitProcess
	}

	p.schedulable = false

	k.L.Trace("trap", "pid", p.index, "tag", p.pending.String(), "ip", p.frame.RIP)
}

// halt idles the processor until a wakeup, the halt period expiring or
// the run context ending.
func (k *Kernel) halt() {
	if k.cfg.IdleHalt <= 0 {
		return
	}

	t := time.NewTimer(k.cfg.IdleHalt)
	defer t.Stop()

	select {
	case <-k.ctx.Done():
	case <-k.wake:
	case <-t.C:
	}
}

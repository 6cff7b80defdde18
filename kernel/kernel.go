package kernel

import (
	"context"
	"sync/atomic"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/cpu"
	"github.com/kilnos/kiln/log"
	"github.com/kilnos/kiln/memory"
	"github.com/kilnos/kiln/pkg/waiter"
	"github.com/pkg/errors"
)

// SyscallHandler owns every syscall tag the dispatcher does not handle
// itself. It reports false for tags it does not know.
type SyscallHandler interface {
	HandleSyscall(ctx context.Context, t *Task, tag Tag) bool
}

// Renderer is serviced by the rendering kernel thread whenever a render has
// been requested.
type Renderer interface {
	Composite(ctx context.Context, slots []SlotInfo) error
}

type Options struct {
	Config Config

	Memory memory.Manager
	Params memory.Params

	Sink     log.Sink
	Handler  SyscallHandler
	Renderer Renderer
	Logger   hclog.Logger
}

// Kernel is the single owner of the process table and everything that
// mutates it.
type Kernel struct {
	L hclog.Logger

	cfg      Config
	mm       memory.Manager
	cpu      *cpu.CPU
	table    *Table
	sink     log.Sink
	handler  SyscallHandler
	renderer Renderer

	// kernelRoot is the root the kernel threads run under. The dispatcher
	// moves it to whichever process it is servicing.
	kernelRoot memory.Root

	dispatch *Thread
	render   *Thread
	current  *Thread
	handoff  int
	switchTo *Thread

	ctx    context.Context
	booted time.Time
	ticks  uint64
	closed bool

	renderRequested int32
	wake            chan struct{}

	live  int32
	exits waiter.Waiter
}

const (
	_ waiter.EventType = iota
	ProcessExitted
)

// NewKernel brings up the memory manager, installs the idle process in
// slot 0 and prepares both kernel threads.
func NewKernel(opts Options) (*Kernel, error) {
	cfg := opts.Config
	if cfg.Slots == 0 {
		cfg = DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.Memory == nil {
		opts.Memory = memory.NewSim()
	}

	if opts.Params.RAMBytes == 0 {
		opts.Params.RAMBytes = 64 << 20
	}

	if err := opts.Memory.Init(opts.Params); err != nil {
		return nil, errors.Wrap(err, "initializing memory manager")
	}

	if opts.Sink == nil {
		opts.Sink = log.NullSink{}
	}

	if opts.Logger == nil {
		opts.Logger = log.L.Named("kernel")
	}

	k := &Kernel{
		L:        opts.Logger,
		cfg:      cfg,
		mm:       opts.Memory,
		cpu:      cpu.New(opts.Memory),
		table:    NewTable(cfg.Slots),
		sink:     opts.Sink,
		handler:  opts.Handler,
		renderer: opts.Renderer,
		ctx:      context.Background(),
		booted:   time.Now(),
		wake:     make(chan struct{}, 1),
	}

	idle := k.table.at(0)
	idle.present = true
	idle.schedulable = true
	idle.pending = Noop
	idle.root = k.mm.TemplateRoot()
	idle.frame = cpu.Registers{CS: cpu.KernelCode64, SS: cpu.KernelData}

	k.kernelRoot = idle.root
	k.cpu.SwitchPDT(k.physical(idle.root))

	k.render = k.newThread("render", 1, k.renderThread)
	k.dispatch = k.newThread("dispatch", 2, k.dispatchThread)
	k.current = k.dispatch
	k.cpu.Load(&k.dispatch.frame)

	k.sink.Printf("<kiln> [ready for scheduling] slots=%d\n", cfg.Slots)
	k.L.Info("kernel-ready", "slots", cfg.Slots, "template-root", uint64(idle.root))

	return k, nil
}

func (k *Kernel) physical(r memory.Root) uint64 {
	return r.Physical(k.mm.WholePhysicalStart())
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) CPU() *cpu.CPU {
	return k.cpu
}

func (k *Kernel) Memory() memory.Manager {
	return k.mm
}

func (k *Kernel) Table() *Table {
	return k.table
}

// IdleRoot is the canonical safe address space.
func (k *Kernel) IdleRoot() memory.Root {
	return k.table.at(0).root
}

// Uptime is the time since boot.
func (k *Kernel) Uptime() time.Duration {
	return time.Since(k.booted)
}

// Ticks is the number of completed hand-off cycles.
func (k *Kernel) Ticks() uint64 {
	return k.ticks
}

// RequestRender asks the rendering thread to composite at the next idle
// point. Safe to call from any goroutine.
func (k *Kernel) RequestRender() {
	atomic.StoreInt32(&k.renderRequested, 1)

	select {
	case k.wake <- struct{}{}:
	default:
	}
}

func (k *Kernel) RenderRequested() bool {
	return atomic.LoadInt32(&k.renderRequested) == 1
}

// Live is the number of present user processes. Safe to call from any
// goroutine.
func (k *Kernel) Live() int {
	return int(atomic.LoadInt32(&k.live))
}

// WaitEmpty blocks until no user process is present.
func (k *Kernel) WaitEmpty(ctx context.Context) error {
	c := make(chan struct{}, 1)
	ev := k.exits.RegisterChannel(ProcessExitted, c)
	defer k.exits.Unregister(ev)

	for {
		if k.Live() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c:
			// ok, check again
		}
	}
}

// SlotInfo is a read-only view of one present slot.
type SlotInfo struct {
	Index       int
	Present     bool
	Schedulable bool
	Pending     Tag
	Root        memory.Root
	Active      bool
}

// Snapshot lists every present slot in index order.
func (k *Kernel) Snapshot() []SlotInfo {
	active := k.cpu.ActivePDT()

	var out []SlotInfo

	for i := 0; i < k.table.Len(); i++ {
		p := k.table.at(i)
		if !p.present {
			continue
		}

		out = append(out, SlotInfo{
			Index:       i,
			Present:     p.present,
			Schedulable: p.schedulable,
			Pending:     p.pending,
			Root:        p.root,
			Active:      k.physical(p.root) == active,
		})
	}

	return out
}

// Close unwinds every execution context. The kernel cannot be used
// afterwards.
func (k *Kernel) Close() {
	if k.closed {
		return
	}

	k.closed = true

	for i := 1; i < k.table.Len(); i++ {
		if p := k.table.at(i); p.ctx != nil {
			p.ctx.Kill()
		}
	}

	k.dispatch.ctx.Kill()
	k.render.ctx.Kill()
}

// panic stops the kernel on corrupted core state.
func (k *Kernel) panic(module, msg string) {
	err := &Error{Module: module, Message: msg}

	k.L.Error("kernel-panic", "module", module, "error", msg)
	k.sink.Printf("<kiln> [panic] %s\n", err.Error())

	panic(err)
}

func (k *Kernel) checkIdle() {
	idle := k.table.at(0)
	if !idle.present || !idle.schedulable {
		k.panic("scheduler", "idle slot is not present and schedulable")
	}
}

package kernel

import (
	"sync/atomic"

	"github.com/kilnos/kiln/cpu"
	"github.com/kilnos/kiln/memory"
	"github.com/kilnos/kiln/pkg/coro"
	"github.com/pkg/errors"
)

// Initial user mode layout of every process.
const (
	UserEntry     uint64 = 0x400000
	UserStackTop  uint64 = 0x7fffffff0000
	UserStackSize uint64 = 64 << 10
	UserHeapBase  uint64 = 0x10000000
)

// Process is one slot of the process table.
type Process struct {
	index       int
	present     bool
	schedulable bool
	root        memory.Root
	frame       cpu.Registers
	pending     Tag

	// faultAddress is only meaningful after a page fault trap.
	faultAddress uint64

	ctx  *coro.Context
	user *User
}

func (p *Process) Index() int {
	return p.index
}

func (p *Process) Present() bool {
	return p.present
}

func (p *Process) Schedulable() bool {
	return p.schedulable
}

func (p *Process) SetSchedulable(v bool) {
	p.schedulable = v
}

func (p *Process) Root() memory.Root {
	return p.root
}

// Frame is the register snapshot saved at the last trap.
func (p *Process) Frame() *cpu.Registers {
	return &p.frame
}

func (p *Process) Pending() Tag {
	return p.pending
}

func (p *Process) FaultAddress() uint64 {
	return p.faultAddress
}

// Empty reports whether the slot is free for reuse.
func (p *Process) Empty() bool {
	return !p.present && p.root == 0 && p.ctx == nil && p.pending == Noop && !p.schedulable
}

// Table is the fixed size process table. Slot 0 belongs to the idle process.
type Table struct {
	slots []Process

	// cursor is where the next rotating scan starts, always in 1..len-1.
	cursor int
}

func NewTable(n int) *Table {
	t := &Table{
		slots:  make([]Process, n),
		cursor: 1,
	}

	for i := range t.slots {
		t.slots[i].index = i
	}

	return t
}

func (t *Table) Len() int {
	return len(t.slots)
}

func (t *Table) at(i int) *Process {
	return &t.slots[i]
}

// Slot returns the process in slot i, present or not.
func (t *Table) Slot(i int) (*Process, error) {
	if i < 0 || i >= len(t.slots) {
		return nil, errors.Wrapf(ErrBadSlot, "slot=%d", i)
	}

	return &t.slots[i], nil
}

func (t *Table) free() (int, bool) {
	for i := 1; i < len(t.slots); i++ {
		if !t.slots[i].present {
			return i, true
		}
	}

	return 0, false
}

// CreateProcess places prog in the lowest free slot with a fresh address
// space holding a user stack.
func (k *Kernel) CreateProcess(prog Program) (int, error) {
	if prog == nil {
		return 0, ErrNoProgram
	}

	i, ok := k.table.free()
	if !ok {
		return 0, ErrTableFull
	}

	root, err := k.mm.AllocRoot()
	if err != nil {
		return 0, errors.Wrapf(err, "allocating address space for slot %d", i)
	}

	err = k.mm.Map(k.physical(root), UserStackTop-UserStackSize, UserStackSize, memory.PermRead|memory.PermWrite)
	if err != nil {
		if ferr := k.mm.FreeRoot(root); ferr != nil {
			k.L.Error("error releasing address space", "pid", i, "error", ferr)
		}

		return 0, errors.Wrapf(err, "mapping user stack for slot %d", i)
	}

	p := k.table.at(i)
	*p = Process{
		index:       i,
		present:     true,
		schedulable: k.cfg.CreateSchedulable,
		root:        root,
		pending:     Noop,
		frame: cpu.Registers{
			RIP:    UserEntry,
			CS:     cpu.UserCode64,
			RSP:    UserStackTop,
			SS:     cpu.UserData,
			RFlags: 0x202,
		},
	}

	p.user = &User{k: k, p: p, brk: UserHeapBase}
	p.ctx = coro.New(p.user.main(prog))

	atomic.AddInt32(&k.live, 1)

	k.L.Debug("process-create", "pid", i, "root", uint64(root), "schedulable", p.schedulable)

	return i, nil
}

// DestroyProcess runs the termination sequence on slot i.
func (k *Kernel) DestroyProcess(i int) error {
	p, err := k.table.Slot(i)
	if err != nil {
		return err
	}

	if i == 0 {
		return ErrReservedSlot
	}

	if !p.present {
		return errors.Wrapf(ErrNotPresent, "slot=%d", i)
	}

	k.terminate(p)

	return nil
}

// terminate retires p. The idle root must be active before the process root
// is released, since a root may never be freed while it is the live
// mapping.
func (k *Kernel) terminate(p *Process) {
	if p.index == 0 {
		k.panic("process", "attempt to terminate the idle process")
	}

	p.present = false

	k.selectAddressSpace(k.IdleRoot())

	if p.ctx != nil {
		p.ctx.Kill()
	}

	if err := k.mm.FreeRoot(p.root); err != nil {
		k.L.Error("error releasing address space", "pid", p.index, "error", err)
	}

	*p = Process{index: p.index}

	atomic.AddInt32(&k.live, -1)

	k.L.Debug("process-exit", "pid", p.index)

	k.exits.Notify(ProcessExitted)
}

package kernel

import (
	"bytes"
	"encoding/binary"
	"runtime"

	"github.com/kilnos/kiln/cpu"
	"github.com/kilnos/kiln/memory"
	"github.com/kilnos/kiln/pkg/coro"
	"github.com/pkg/errors"
)

type trapKind int

const (
	trapNone trapKind = iota
	trapSyscall
	trapException
	trapExit
	trapHalt
)

// Program is the code a process runs. It reaches the kernel only through
// the User it is handed. Returning is an exit with code 0; panicking raises
// a general protection fault.
type Program func(u *User)

// User is the user mode side of a process. Its methods must only be called
// from the process's own program.
type User struct {
	k *Kernel
	p *Process
	c *coro.Context

	trap    trapKind
	brk     uint64
	scratch uint64
}

func (u *User) main(prog Program) func(*coro.Context) {
	return func(c *coro.Context) {
		u.c = c

		defer func() {
			if r := recover(); r != nil {
				u.k.L.Debug("user-panic", "pid", u.p.index, "panic", r)
				u.Fault(cpu.GeneralProtection, 0)
			}
		}()

		prog(u)
		u.Exit(0)
	}
}

// Index is the slot the process runs in.
func (u *User) Index() int {
	return u.p.index
}

// Syscall traps into the kernel with tag in RCX and the arguments in RDX
// and R8, and returns RAX once the process is scheduled again.
func (u *User) Syscall(tag Tag, arg1, arg2 uint64) uint64 {
	regs := u.k.cpu.Regs()
	regs.RCX = uint64(tag)
	regs.RDX = arg1
	regs.R8 = arg2
	regs.RIP += 2

	u.trap = trapSyscall
	u.c.Yield()

	return u.k.cpu.Regs().RAX
}

// Exit terminates the process. It does not return.
func (u *User) Exit(code uint64) {
	u.Syscall(ExitProcess, code, 0)
	runtime.Goexit()
}

// Fault raises a CPU exception. It does not return.
func (u *User) Fault(v cpu.Vector, addr uint64) {
	regs := u.k.cpu.Regs()
	regs.Index = uint64(v)

	if v == cpu.PageFault {
		u.k.cpu.WriteCR2(addr)
	}

	u.trap = trapException
	u.c.Yield()

	runtime.Goexit()
}

func (u *User) Breakpoint() {
	u.Fault(cpu.Breakpoint, 0)
}

// Map adds pages to the process address space.
func (u *User) Map(addr, size uint64, perm memory.Perm) error {
	return u.k.mm.Map(u.k.physical(u.p.root), addr, size, perm)
}

// Alloc maps size bytes of read/write memory at the heap break.
func (u *User) Alloc(size uint64) (uint64, error) {
	addr := u.brk

	if err := u.Map(addr, size, memory.PermRead|memory.PermWrite); err != nil {
		return 0, err
	}

	u.brk += (size + memory.PageSize - 1) &^ (memory.PageSize - 1)

	return addr, nil
}

// firstInaccessible returns the lowest address of the range the running
// process may not access with want.
func (u *User) firstInaccessible(addr, size uint64, want memory.Perm) (uint64, bool) {
	for off := uint64(0); off < size; {
		a := addr + off

		perm, ok := u.k.cpu.Translate(a)
		if !ok || !perm.Has(want|memory.PermUser) {
			return a, true
		}

		off += memory.PageSize - (a & (memory.PageSize - 1))
	}

	return 0, false
}

// Write stores b at addr. Touching an unmapped or read-only page raises a
// page fault.
func (u *User) Write(addr uint64, b []byte) {
	if bad, ok := u.firstInaccessible(addr, uint64(len(b)), memory.PermWrite); ok {
		u.Fault(cpu.PageFault, bad)
	}

	if err := u.k.mm.WriteAt(u.k.cpu.ActivePDT(), b, addr); err != nil {
		u.Fault(cpu.PageFault, addr)
	}
}

// Read loads len(b) bytes from addr, faulting like Write.
func (u *User) Read(addr uint64, b []byte) {
	if bad, ok := u.firstInaccessible(addr, uint64(len(b)), memory.PermRead); ok {
		u.Fault(cpu.PageFault, bad)
	}

	if err := u.k.mm.ReadAt(u.k.cpu.ActivePDT(), b, addr); err != nil {
		u.Fault(cpu.PageFault, addr)
	}
}

// DebugLog asks the kernel to log the payload at addr.
func (u *User) DebugLog(payload uint64) {
	u.Syscall(DebugLog, payload, 0)
}

var errMessageTooLong = errors.New("debug log message does not fit the scratch page")

// Log lays out msg and a DebugLogPayload in a scratch page and issues a
// DebugLog request for it.
func (u *User) Log(msg string, extra, more uint64) error {
	payloadSize := uint64(binary.Size(DebugLogPayload{}))

	if uint64(len(msg))+1 > memory.PageSize-payloadSize {
		return errMessageTooLong
	}

	if u.scratch == 0 {
		addr, err := u.Alloc(memory.PageSize)
		if err != nil {
			return err
		}

		u.scratch = addr
	}

	msgAddr := u.scratch + payloadSize

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, DebugLogPayload{Message: msgAddr, Extra: extra, More: more})
	buf.WriteString(msg)
	buf.WriteByte(0)

	u.Write(u.scratch, buf.Bytes())
	u.DebugLog(u.scratch)

	return nil
}

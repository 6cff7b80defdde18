package kernel

import (
	"bytes"
	"encoding/binary"

	"github.com/kilnos/kiln/memory"
	"github.com/pkg/errors"
)

// ProbeForRead reports whether every byte of [addr, addr+size) is mapped
// user readable in the active address space. A false result means the range
// must not be touched.
func (k *Kernel) ProbeForRead(addr, size uint64) bool {
	return k.probe(addr, size, memory.PermRead|memory.PermUser)
}

// ProbeForWrite is ProbeForRead for user writable ranges.
func (k *Kernel) ProbeForWrite(addr, size uint64) bool {
	return k.probe(addr, size, memory.PermRead|memory.PermWrite|memory.PermUser)
}

func (k *Kernel) probe(addr, size uint64, want memory.Perm) bool {
	if size == 0 {
		return true
	}

	end := addr + size - 1
	if end < addr {
		return false
	}

	first := addr &^ (memory.PageSize - 1)
	last := end &^ (memory.PageSize - 1)

	for page := first; ; page += memory.PageSize {
		perm, ok := k.cpu.Translate(page)
		if !ok || !perm.Has(want) {
			k.L.Trace("probe-rejected", "addr", addr, "size", size, "page", page)
			return false
		}

		if page == last {
			return true
		}
	}
}

// Task is a process seen from kernel code servicing one of its requests.
// Its memory accessors work on the active address space and probe every
// range before touching it.
type Task struct {
	*Process
	Kernel *Kernel
}

func (k *Kernel) task(p *Process) *Task {
	return &Task{Process: p, Kernel: k}
}

func (t *Task) ReadAt(b []byte, addr uint64) error {
	if !t.Kernel.ProbeForRead(addr, uint64(len(b))) {
		return errors.Wrapf(ErrFault, "read addr=%x size=%d", addr, len(b))
	}

	return t.Kernel.mm.ReadAt(t.Kernel.cpu.ActivePDT(), b, addr)
}

func (t *Task) WriteAt(b []byte, addr uint64) error {
	if !t.Kernel.ProbeForWrite(addr, uint64(len(b))) {
		return errors.Wrapf(ErrFault, "write addr=%x size=%d", addr, len(b))
	}

	return t.Kernel.mm.WriteAt(t.Kernel.cpu.ActivePDT(), b, addr)
}

// CopyIn decodes a little endian value from user memory.
func (t *Task) CopyIn(addr uint64, val interface{}) error {
	size := binary.Size(val)
	if size < 0 {
		return errors.Errorf("cannot copy in %T", val)
	}

	buf := make([]byte, size)
	if err := t.ReadAt(buf, addr); err != nil {
		return err
	}

	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, val)
}

// CopyOut encodes val little endian into user memory.
func (t *Task) CopyOut(addr uint64, val interface{}) error {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, val); err != nil {
		return err
	}

	return t.WriteAt(buf.Bytes(), addr)
}

// ReadCString reads a NUL terminated string of at most max bytes. A string
// longer than max is truncated.
func (t *Task) ReadCString(ptr uint64, max int) ([]byte, error) {
	var (
		buf bytes.Buffer
		b   [1]byte
	)

	for off := uint64(0); buf.Len() < max; off++ {
		if err := t.ReadAt(b[:], ptr+off); err != nil {
			return nil, err
		}

		if b[0] == 0 {
			break
		}

		buf.WriteByte(b[0])
	}

	return buf.Bytes(), nil
}

// Package cpu models the processor state the kernel core manipulates: the
// live register frame, the address space root register (CR3), the page
// fault address register (CR2) and a translation cache.
package cpu

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/kilnos/kiln/log"
	"github.com/kilnos/kiln/memory"
)

// TLBEntries is the number of cached page translations.
const TLBEntries = 64

type tlbKey struct {
	root, page uint64
}

// CPU is a single logical processor.
type CPU struct {
	walker memory.Walker
	tlb    *lru.Cache

	cr2  uint64
	cr3  uint64
	regs Registers

	observers []func(phys uint64)
}

func New(w memory.Walker) *CPU {
	tlb, err := lru.New(TLBEntries)
	if err != nil {
		panic(err)
	}

	return &CPU{
		walker: w,
		tlb:    tlb,
	}
}

// SwitchPDT loads the physical address of a page table root into CR3 and
// flushes the TLB.
func (c *CPU) SwitchPDT(phys uint64) {
	log.L.Trace("cpu-write-cr3", "phys", phys)

	c.cr3 = phys
	c.tlb.Purge()

	for _, fn := range c.observers {
		fn(phys)
	}
}

// ActivePDT returns the physical address of the active page table root.
func (c *CPU) ActivePDT() uint64 {
	return c.cr3
}

// OnSwitch registers fn to be called after every CR3 write.
func (c *CPU) OnSwitch(fn func(phys uint64)) {
	c.observers = append(c.observers, fn)
}

func (c *CPU) ReadCR2() uint64 {
	return c.cr2
}

func (c *CPU) WriteCR2(addr uint64) {
	c.cr2 = addr
}

// Translate resolves the page holding addr in the active address space.
func (c *CPU) Translate(addr uint64) (memory.Perm, bool) {
	key := tlbKey{root: c.cr3, page: addr &^ (memory.PageSize - 1)}

	if v, ok := c.tlb.Get(key); ok {
		return v.(memory.Perm), true
	}

	perm, ok := c.walker.Walk(c.cr3, addr)
	if !ok {
		return 0, false
	}

	c.tlb.Add(key, perm)

	return perm, true
}

// CachedTranslations is the number of live TLB entries.
func (c *CPU) CachedTranslations() int {
	return c.tlb.Len()
}

// Load replaces the live register frame.
func (c *CPU) Load(r *Registers) {
	c.regs = *r
}

// Save returns a copy of the live register frame.
func (c *CPU) Save() Registers {
	return c.regs
}

// Regs exposes the live register frame for mutation.
func (c *CPU) Regs() *Registers {
	return &c.regs
}

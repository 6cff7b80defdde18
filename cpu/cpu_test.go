package cpu

import (
	"bytes"
	"testing"

	"github.com/kilnos/kiln/memory"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type countingWalker struct {
	walks int
	pages map[uint64]memory.Perm
}

func (w *countingWalker) Walk(root, addr uint64) (memory.Perm, bool) {
	w.walks++
	perm, ok := w.pages[root^(addr&^(memory.PageSize-1))]
	return perm, ok
}

func TestCPU(t *testing.T) {
	n := neko.Modern(t)

	n.It("caches translations until the next root switch", func(t *testing.T) {
		w := &countingWalker{pages: map[uint64]memory.Perm{
			0x1000 ^ 0x5000: memory.PermRead,
		}}

		c := New(w)
		c.SwitchPDT(0x1000)

		perm, ok := c.Translate(0x5008)
		require.True(t, ok)
		require.Equal(t, memory.PermRead, perm)

		_, ok = c.Translate(0x5ff0)
		require.True(t, ok)
		require.Equal(t, 1, w.walks)
		require.Equal(t, 1, c.CachedTranslations())

		c.SwitchPDT(0x2000)
		require.Equal(t, 0, c.CachedTranslations())

		_, ok = c.Translate(0x5008)
		require.False(t, ok)
		require.Equal(t, 2, w.walks)
	})

	n.It("notifies observers of every root write", func(t *testing.T) {
		c := New(&countingWalker{})

		var seen []uint64
		c.OnSwitch(func(phys uint64) { seen = append(seen, phys) })

		c.SwitchPDT(0x1000)
		c.SwitchPDT(0x3000)

		require.Equal(t, []uint64{0x1000, 0x3000}, seen)
		require.Equal(t, uint64(0x3000), c.ActivePDT())
	})

	n.It("saves and loads register frames by value", func(t *testing.T) {
		c := New(&countingWalker{})

		in := Registers{RIP: 0x401000, CS: UserCode64, SS: UserData}
		c.Load(&in)

		in.RIP = 0

		out := c.Save()
		require.Equal(t, uint64(0x401000), out.RIP)
		require.True(t, out.UserMode())
	})

	n.It("dumps registers", func(t *testing.T) {
		var buf bytes.Buffer

		r := Registers{RIP: 0xdead}
		r.DumpTo(&buf)

		require.Contains(t, buf.String(), "RIP = 000000000000dead")
	})

	n.It("names exception vectors", func(t *testing.T) {
		require.Equal(t, "#PF", PageFault.String())
		require.Equal(t, "#GP", GeneralProtection.String())
		require.Equal(t, "#BP", Breakpoint.String())
		require.Equal(t, "#99", Vector(99).String())
	})

	n.Meow()
}

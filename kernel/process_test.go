package kernel

import (
	"bytes"
	"context"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

// brokenMemory fails every user mapping, and root releases when freeErr
// is set.
type brokenMemory struct {
	*memory.Sim

	freeErr error
}

var errMapFailed = errors.New("map failed")

func (m *brokenMemory) Map(root, addr, size uint64, perm memory.Perm) error {
	return errMapFailed
}

func (m *brokenMemory) FreeRoot(r memory.Root) error {
	if m.freeErr != nil {
		return m.freeErr
	}

	return m.Sim.FreeRoot(r)
}

func TestProcessLifecycle(t *testing.T) {
	n := neko.Modern(t)

	n.It("creates processes in the lowest free slot", func(t *testing.T) {
		k := newTestKernel(t, nil)

		for want := 1; want <= 3; want++ {
			i, err := k.CreateProcess(spin)
			require.NoError(t, err)
			require.Equal(t, want, i)
		}

		p := k.slot(t, 2)
		require.True(t, p.Present())
		require.True(t, p.Schedulable())
		require.Equal(t, Noop, p.Pending())
		require.NotEqual(t, k.IdleRoot(), p.Root())
		require.Equal(t, UserEntry, p.Frame().RIP)
		require.True(t, p.Frame().UserMode())
		require.Equal(t, 3, k.Live())
	})

	n.It("honours the creation schedulable policy", func(t *testing.T) {
		k := newTestKernel(t, func(o *Options) {
			o.Config.CreateSchedulable = false
		})

		i, err := k.CreateProcess(spin)
		require.NoError(t, err)

		p := k.slot(t, i)
		require.True(t, p.Present())
		require.False(t, p.Schedulable())
	})

	n.It("returns a destroyed, never scheduled slot to empty", func(t *testing.T) {
		k := newTestKernel(t, nil)

		roots := k.mem.Live()

		i, err := k.CreateProcess(spin)
		require.NoError(t, err)
		require.Equal(t, roots+1, k.mem.Live())

		require.NoError(t, k.DestroyProcess(i))

		p := k.slot(t, i)
		require.True(t, p.Empty())
		require.Equal(t, i, p.Index())
		require.Equal(t, roots, k.mem.Live())
		require.Equal(t, 0, k.Live())
	})

	n.It("switches to the idle root before releasing a root", func(t *testing.T) {
		k := newTestKernel(t, nil)

		i, err := k.CreateProcess(spin)
		require.NoError(t, err)

		p := k.slot(t, i)
		root := p.Root()

		var writes []uint64
		k.cpu.OnSwitch(func(phys uint64) { writes = append(writes, phys) })

		k.selectAddressSpace(root)
		require.Equal(t, root, k.ActiveRoot())

		require.NoError(t, k.DestroyProcess(i))

		require.Len(t, k.mem.freed, 1)
		require.Equal(t, root, k.mem.freed[0].root)
		require.Equal(t, k.physical(k.IdleRoot()), k.mem.freed[0].active)
		require.Equal(t, []uint64{k.physical(root), k.physical(k.IdleRoot())}, writes)
	})

	n.It("reuses slots after termination", func(t *testing.T) {
		k := newTestKernel(t, nil)

		for i := 0; i < 3; i++ {
			_, err := k.CreateProcess(spin)
			require.NoError(t, err)
		}

		require.NoError(t, k.DestroyProcess(2))

		i, err := k.CreateProcess(spin)
		require.NoError(t, err)
		require.Equal(t, 2, i)
	})

	n.It("fills up", func(t *testing.T) {
		k := newTestKernel(t, func(o *Options) {
			o.Config.Slots = 3
		})

		_, err := k.CreateProcess(spin)
		require.NoError(t, err)
		_, err = k.CreateProcess(spin)
		require.NoError(t, err)

		_, err = k.CreateProcess(spin)
		require.Equal(t, ErrTableFull, err)
	})

	n.It("protects the idle slot", func(t *testing.T) {
		k := newTestKernel(t, nil)

		require.Equal(t, ErrReservedSlot, k.DestroyProcess(0))
		require.True(t, k.slot(t, 0).Present())
	})

	n.It("rejects bad slots and empty slots", func(t *testing.T) {
		k := newTestKernel(t, nil)

		require.Equal(t, ErrBadSlot, errors.Cause(k.DestroyProcess(99)))
		require.Equal(t, ErrBadSlot, errors.Cause(k.DestroyProcess(-1)))
		require.Equal(t, ErrNotPresent, errors.Cause(k.DestroyProcess(4)))
	})

	n.It("releases the address space when the stack cannot be mapped", func(t *testing.T) {
		mem := &brokenMemory{Sim: memory.NewSim()}

		k := newTestKernel(t, func(o *Options) {
			o.Memory = mem
		})

		roots := mem.Live()

		_, err := k.CreateProcess(spin)
		require.Equal(t, errMapFailed, errors.Cause(err))

		require.Equal(t, roots, mem.Live())
		require.True(t, k.slot(t, 1).Empty())
		require.Equal(t, 0, k.Live())
	})

	n.It("logs a failed release after a failed stack mapping", func(t *testing.T) {
		var buf bytes.Buffer

		mem := &brokenMemory{Sim: memory.NewSim(), freeErr: errors.New("root stuck")}

		k := newTestKernel(t, func(o *Options) {
			o.Memory = mem
			o.Logger = hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Error})
		})

		_, err := k.CreateProcess(spin)
		require.Equal(t, errMapFailed, errors.Cause(err))

		require.Contains(t, buf.String(), "error releasing address space")
		require.Contains(t, buf.String(), "root stuck")
	})

	n.It("requires a program", func(t *testing.T) {
		k := newTestKernel(t, nil)

		_, err := k.CreateProcess(nil)
		require.Equal(t, ErrNoProgram, err)
	})

	n.It("unwinds a running program on destroy", func(t *testing.T) {
		k := newTestKernel(t, nil)

		unwound := false

		i, err := k.CreateProcess(func(u *User) {
			defer func() { unwound = true }()
			spin(u)
		})
		require.NoError(t, err)

		k.ticks(2)
		require.False(t, unwound)

		require.NoError(t, k.DestroyProcess(i))
		require.True(t, unwound)
	})

	n.It("notifies waiters once the table empties", func(t *testing.T) {
		k := newTestKernel(t, nil)

		_, err := k.CreateProcess(func(u *User) {})
		require.NoError(t, err)

		k.ticks(2)

		require.Equal(t, 0, k.Live())
		require.NoError(t, k.WaitEmpty(context.Background()))
	})

	n.Meow()
}

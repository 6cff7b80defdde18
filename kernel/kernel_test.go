package kernel

import (
	"context"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/log"
	"github.com/kilnos/kiln/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type freeEvent struct {
	root   memory.Root
	active uint64
}

// recordingMemory notes which root was live every time a root is freed.
type recordingMemory struct {
	*memory.Sim

	active func() uint64
	freed  []freeEvent
}

func (m *recordingMemory) FreeRoot(r memory.Root) error {
	m.freed = append(m.freed, freeEvent{root: r, active: m.active()})
	return m.Sim.FreeRoot(r)
}

type testKernel struct {
	*Kernel

	sink *log.RingSink
	mem  *recordingMemory
}

func newTestKernel(t *testing.T, mod func(*Options)) *testKernel {
	mem := &recordingMemory{Sim: memory.NewSim()}
	sink := &log.RingSink{}

	opts := Options{
		Config: DefaultConfig(),
		Memory: mem,
		Params: memory.Params{RAMBytes: 16 << 20},
		Sink:   sink,
		Logger: hclog.NewNullLogger(),
	}

	opts.Config.Slots = 16

	if mod != nil {
		mod(&opts)
	}

	k, err := NewKernel(opts)
	require.NoError(t, err)

	mem.active = k.cpu.ActivePDT

	t.Cleanup(k.Close)

	return &testKernel{Kernel: k, sink: sink, mem: mem}
}

func (tk *testKernel) ticks(n int) {
	for i := 0; i < n; i++ {
		tk.Tick(context.Background())
	}
}

func (tk *testKernel) slot(t *testing.T, i int) *Process {
	p, err := tk.table.Slot(i)
	require.NoError(t, err)
	return p
}

// spin keeps a process alive, trapping with a request nobody handles.
func spin(u *User) {
	for {
		u.Syscall(FirstUserTag+7, 0, 0)
	}
}

func TestKernelBoot(t *testing.T) {
	n := neko.Modern(t)

	n.It("installs the idle process in slot 0", func(t *testing.T) {
		k := newTestKernel(t, nil)

		idle := k.slot(t, 0)
		require.True(t, idle.Present())
		require.True(t, idle.Schedulable())
		require.Equal(t, Noop, idle.Pending())
		require.Equal(t, k.mem.TemplateRoot(), idle.Root())

		require.Equal(t, k.IdleRoot(), k.ActiveRoot())
		require.Equal(t, k.dispatch, k.Current())

		require.Contains(t, k.sink.String(), "[ready for scheduling]")
	})

	n.It("defaults the configuration", func(t *testing.T) {
		k, err := NewKernel(Options{Logger: hclog.NewNullLogger()})
		require.NoError(t, err)
		defer k.Close()

		require.Equal(t, 256, k.Table().Len())
		require.True(t, k.Config().CreateSchedulable)
		require.False(t, k.Config().RestartScan)
	})

	n.It("rejects a table without room for user processes", func(t *testing.T) {
		_, err := NewKernel(Options{
			Config: Config{Slots: 1, MaxDebugLogLength: 1},
			Logger: hclog.NewNullLogger(),
		})

		require.Equal(t, ErrBadConfig, errors.Cause(err))
	})

	n.It("reports memory manager failures", func(t *testing.T) {
		_, err := NewKernel(Options{
			Params: memory.Params{RAMBytes: memory.PageSize},
			Logger: hclog.NewNullLogger(),
		})

		require.Equal(t, memory.ErrOutOfFrames, errors.Cause(err))
	})

	n.Meow()
}

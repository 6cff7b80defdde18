package compositor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
	"github.com/kilnos/kiln/memory"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestCompositor(t *testing.T) {
	n := neko.Modern(t)

	n.It("draws a panel per slot", func(t *testing.T) {
		c := New(320, 240)

		err := c.Composite(context.Background(), []kernel.SlotInfo{
			{Index: 0, Present: true, Schedulable: true, Active: true},
		})
		require.NoError(t, err)

		img := c.Frame()
		require.NotNil(t, img)
		require.Equal(t, 320, img.Bounds().Dx())
		require.Equal(t, 240, img.Bounds().Dy())

		r, g, b, _ := img.At(margin+6, header+6).RGBA()
		require.True(t, g > r && g > b, "active panel should be green")
	})

	n.It("distinguishes runnable and blocked processes", func(t *testing.T) {
		c := New(320, 240)

		err := c.Composite(context.Background(), []kernel.SlotInfo{
			{Index: 1, Present: true, Schedulable: true},
			{Index: 2, Present: true, Pending: kernel.DebugLog},
		})
		require.NoError(t, err)

		img := c.Frame()

		r, g, b, _ := img.At(margin+10, header+10).RGBA()
		require.True(t, b > r && b > g, "runnable panel should be blue")

		r, g, b, _ = img.At(320/2+margin+10, header+10).RGBA()
		require.Equal(t, r, g)
		require.Equal(t, g, b)
	})

	n.It("falls back to the default size", func(t *testing.T) {
		c := &Compositor{}

		require.NoError(t, c.Composite(context.Background(), nil))
		require.Equal(t, DefaultWidth, c.Frame().Bounds().Dx())
		require.Equal(t, 1, c.Frames())
	})

	n.It("skips compositing once the context is done", func(t *testing.T) {
		c := New(64, 64)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.Equal(t, context.Canceled, c.Composite(ctx, nil))
		require.Nil(t, c.Frame())
	})

	n.It("saves the last frame as a PNG", func(t *testing.T) {
		c := New(64, 64)

		path := filepath.Join(t.TempDir(), "frame.png")
		require.Equal(t, ErrNoFrame, c.SavePNG(path))

		require.NoError(t, c.Composite(context.Background(), nil))
		require.NoError(t, c.SavePNG(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "\x89PNG", string(data[:4]))
	})

	n.It("is driven by the kernel's rendering thread", func(t *testing.T) {
		c := New(128, 96)

		cfg := kernel.DefaultConfig()
		cfg.Slots = 4

		k, err := kernel.NewKernel(kernel.Options{
			Config:   cfg,
			Params:   memory.Params{RAMBytes: 4 << 20},
			Renderer: c,
			Logger:   hclog.NewNullLogger(),
		})
		require.NoError(t, err)
		defer k.Close()

		k.RequestRender()

		k.Tick(context.Background())
		k.Tick(context.Background())

		require.Equal(t, 1, c.Frames())
	})

	n.Meow()
}

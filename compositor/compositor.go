// Package compositor draws the process table into a framebuffer image.
// It is the renderer the kernel's rendering thread drives.
package compositor

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/fogleman/gg"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/kilnos/kiln/kernel"
	"github.com/kilnos/kiln/log"
	"github.com/pkg/errors"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480

	margin = 8
	header = 24
)

var ErrNoFrame = errors.New("nothing has been composited yet")

type Compositor struct {
	Width  int
	Height int
	L      hclog.Logger

	mu     sync.Mutex
	frame  image.Image
	frames int
}

func New(width, height int) *Compositor {
	return &Compositor{
		Width:  width,
		Height: height,
		L:      log.L.Named("compositor"),
	}
}

// Composite renders one panel per slot into a fresh backbuffer and
// publishes it as the current frame.
func (c *Compositor) Composite(ctx context.Context, slots []kernel.SlotInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, h := c.Width, c.Height
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}

	dc := gg.NewContext(w, h)

	dc.SetRGB(0.08, 0.08, 0.1)
	dc.Clear()

	dc.SetRGB(0.9, 0.9, 0.9)
	dc.DrawStringAnchored(fmt.Sprintf("kiln: %d present", len(slots)), margin, header/2, 0, 0.5)

	if len(slots) > 0 {
		cols := int(math.Ceil(math.Sqrt(float64(len(slots)))))
		rows := (len(slots) + cols - 1) / cols

		pw := float64(w-margin) / float64(cols)
		ph := float64(h-header-margin) / float64(rows)

		for i, s := range slots {
			x := float64(margin) + float64(i%cols)*pw
			y := float64(header) + float64(i/cols)*ph

			drawPanel(dc, s, x, y, pw-margin, ph-margin)
		}
	}

	c.mu.Lock()
	c.frame = dc.Image()
	c.frames++
	n := c.frames
	c.mu.Unlock()

	if c.L != nil {
		c.L.Trace("composited", "frame", n, "slots", len(slots))
	}

	return nil
}

func drawPanel(dc *gg.Context, s kernel.SlotInfo, x, y, w, h float64) {
	r, g, b := panelColor(s)

	dc.SetRGB(r, g, b)
	dc.DrawRectangle(x, y, w, h)
	dc.Fill()

	if s.Pending != kernel.Noop {
		dc.SetRGB(1, 0.6, 0)
		dc.SetLineWidth(3)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	}

	name := fmt.Sprintf("#%d", s.Index)
	if s.Index == 0 {
		name = "#0 idle"
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(name, x+w/2, y+h/2, 0.5, 0.5)

	if s.Pending != kernel.Noop {
		dc.DrawStringAnchored(s.Pending.String(), x+w/2, y+h/2+14, 0.5, 0.5)
	}
}

func panelColor(s kernel.SlotInfo) (float64, float64, float64) {
	switch {
	case s.Active:
		return 0.15, 0.6, 0.25
	case s.Schedulable:
		return 0.2, 0.35, 0.7
	default:
		return 0.35, 0.35, 0.35
	}
}

// Frame returns the last composited image, or nil before the first one.
func (c *Compositor) Frame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.frame
}

// Frames counts completed composites.
func (c *Compositor) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.frames
}

func (c *Compositor) SavePNG(path string) error {
	img := c.Frame()
	if img == nil {
		return ErrNoFrame
	}

	return errors.Wrapf(gg.SavePNG(path, img), "saving frame to %s", path)
}

package main

import (
	"context"
	"time"

	"github.com/kilnos/kiln/kernel"
	klog "github.com/kilnos/kiln/log"
	tty "github.com/mattn/go-tty"
)

const idleHalt = 20 * time.Millisecond

// console reads single key commands from the controlling terminal until
// ctx ends. The returned func restores the terminal.
func console(ctx context.Context, k *kernel.Kernel, quit func()) (func(), error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}

	go func() {
		for ctx.Err() == nil {
			r, err := t.ReadRune()
			if err != nil {
				klog.L.Debug("console read failed", "error", err)
				return
			}

			switch r {
			case 'r':
				k.RequestRender()
			case 'q':
				quit()
				return
			}
		}
	}()

	return func() { t.Close() }, nil
}

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/kilnos/kiln/compositor"
	"github.com/kilnos/kiln/kernel"
	klog "github.com/kilnos/kiln/log"
	"github.com/kilnos/kiln/memory"
	"github.com/kilnos/kiln/syscalls"
	"github.com/spf13/pflag"
)

var (
	fSlots        = pflag.IntP("slots", "s", 256, "size of the process table, idle slot included")
	fTicks        = pflag.IntP("ticks", "t", 0, "stop after this many hand-off cycles (0 runs until every process exits)")
	fRestartScan  = pflag.Bool("restart-scan", false, "scan the table from slot 1 on every schedule")
	fSpawnBlocked = pflag.Bool("spawn-blocked", false, "create processes that are not schedulable until the next reset")
	fFrame        = pflag.StringP("frame", "f", "", "save the last composited frame as a PNG")
	fInteractive  = pflag.BoolP("interactive", "i", false, "read commands from the terminal: r renders, q quits")
	fRAM          = pflag.Uint64("ram", 64, "simulated RAM in MiB")
	fLogLevel     = pflag.String("log-level", "", "log level (trace, debug, info, warn, error)")
	fCopies       = pflag.IntP("copies", "n", 1, "instances of each demo program")
)

func main() {
	pflag.Parse()

	klog.EnableDebug(*fLogLevel)

	if err := run(); err != nil {
		klog.L.Error("kiln failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := kernel.DefaultConfig()
	cfg.Slots = *fSlots
	cfg.RestartScan = *fRestartScan
	cfg.CreateSchedulable = !*fSpawnBlocked

	if *fInteractive {
		cfg.IdleHalt = idleHalt
	}

	comp := compositor.New(compositor.DefaultWidth, compositor.DefaultHeight)
	sink := klog.NewRingSink(klog.L.Named("console"))

	k, err := kernel.NewKernel(kernel.Options{
		Config:   cfg,
		Params:   memory.Params{RAMBytes: *fRAM << 20},
		Sink:     sink,
		Handler:  &syscalls.Invoker{L: klog.L.Named("syscalls")},
		Renderer: comp,
	})
	if err != nil {
		return err
	}

	defer k.Close()

	for i := 0; i < *fCopies; i++ {
		for _, d := range demos {
			pid, err := k.CreateProcess(d.prog)
			if err != nil {
				return err
			}

			klog.L.Info("spawned", "program", d.name, "pid", pid)
		}
	}

	if *fInteractive {
		stop, err := console(ctx, k, cancel)
		if err != nil {
			return err
		}

		defer stop()
	}

	if *fTicks > 0 {
		for i := 0; i < *fTicks && ctx.Err() == nil; i++ {
			k.Tick(ctx)
		}
	} else {
		err = drive(ctx, k)
	}

	klog.L.Info("stopped", "ticks", k.Ticks(), "live", k.Live(), "frames", comp.Frames())

	if *fFrame != "" {
		if serr := comp.SavePNG(*fFrame); serr != nil {
			return serr
		}
	}

	return err
}

// drive runs the kernel until every process has exited or ctx ends.
func drive(ctx context.Context, k *kernel.Kernel) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- k.Run(ctx)
	}()

	err := k.WaitEmpty(ctx)

	cancel()
	<-done

	if err == context.Canceled {
		return nil
	}

	return err
}

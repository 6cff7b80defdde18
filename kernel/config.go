package kernel

import (
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	// Slots is the fixed size of the process table, idle slot included.
	Slots int

	// CreateSchedulable is the schedulable flag given to new processes.
	CreateSchedulable bool

	// RestartScan makes the scheduler scan from slot 1 on every call
	// instead of continuing after the last selected slot. Simpler, but
	// high slots can starve.
	RestartScan bool

	// MaxDebugLogLength bounds the message read for a DebugLog request.
	MaxDebugLogLength int

	// IdleHalt is how long the idle process halts waiting for a wakeup
	// before trapping back. Zero returns immediately.
	IdleHalt time.Duration
}

func DefaultConfig() Config {
	return Config{
		Slots:             256,
		CreateSchedulable: true,
		MaxDebugLogLength: 256,
	}
}

func (c Config) Validate() error {
	if c.Slots < 2 {
		return errors.Wrapf(ErrBadConfig, "slots=%d, need at least 2", c.Slots)
	}

	if c.MaxDebugLogLength < 1 {
		return errors.Wrapf(ErrBadConfig, "max debug log length=%d", c.MaxDebugLogLength)
	}

	return nil
}

package kernel

// GetNextProcess returns the first slot in 1..N-1 that is present and
// schedulable, or 0 when there is none. By default the scan resumes after
// the slot picked last time so every process gets its turn; with
// Config.RestartScan it starts at slot 1 on every call.
func (k *Kernel) GetNextProcess() int {
	n := k.table.Len()
	if n < 2 {
		return 0
	}

	start := k.table.cursor
	if k.cfg.RestartScan {
		start = 1
	}

	for off := 0; off < n-1; off++ {
		i := 1 + (start-1+off)%(n-1)

		p := k.table.at(i)
		if p.present && p.schedulable {
			if i == n-1 {
				k.table.cursor = 1
			} else {
				k.table.cursor = i + 1
			}

			return i
		}
	}

	return 0
}

// MarkAllSchedulable makes every present process eligible again.
func (k *Kernel) MarkAllSchedulable() {
	for i := 0; i < k.table.Len(); i++ {
		if p := k.table.at(i); p.present {
			p.schedulable = true
		}
	}
}

// ResolveNext picks the process to hand the CPU to. When nothing is
// eligible every present process is reset once and the scan repeated; if
// that still finds nothing the idle process runs. It never fails.
func (k *Kernel) ResolveNext() int {
	k.checkIdle()

	next := k.GetNextProcess()
	if next == 0 {
		k.MarkAllSchedulable()
		next = k.GetNextProcess()
	}

	return next
}

// switchToUserProcess yields the calling kernel thread. The trap gate runs
// the resolved process until it traps, and control comes back here on the
// next resume of this thread.
func (k *Kernel) switchToUserProcess() {
	k.handoff = k.ResolveNext()
	k.current.ctx.Yield()
}

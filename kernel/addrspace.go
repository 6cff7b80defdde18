package kernel

import "github.com/kilnos/kiln/memory"

// selectAddressSpace makes root the live mapping for the kernel threads and
// remembers it, so returning from a trap restores it. Every root shares the
// kernel half, so the code doing the switch stays mapped across it.
func (k *Kernel) selectAddressSpace(root memory.Root) {
	k.kernelRoot = root
	k.loadAddressSpace(root)
}

// loadAddressSpace writes root into the root register without touching the
// kernel thread root. Used by the trap gate when entering a process.
func (k *Kernel) loadAddressSpace(root memory.Root) {
	k.cpu.SwitchPDT(k.physical(root))
}

// ActiveRoot returns the root currently loaded in the root register.
func (k *Kernel) ActiveRoot() memory.Root {
	return memory.Root(k.cpu.ActivePDT() + k.mm.WholePhysicalStart())
}

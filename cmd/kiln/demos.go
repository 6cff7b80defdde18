package main

import (
	"github.com/kilnos/kiln/kernel"
	"github.com/kilnos/kiln/syscalls"
)

type demo struct {
	name string
	prog kernel.Program
}

var demos = []demo{
	{"hello", hello},
	{"counter", counter},
	{"wild-write", wildWrite},
	{"breakpoint", breakpoint},
}

func hello(u *kernel.User) {
	pid := syscalls.GetPid(u)

	u.Log("hello from pid %d, up %u ns", uint64(pid), uint64(syscalls.Uptime(u)))
	u.Exit(uint64(pid))
}

func counter(u *kernel.User) {
	for i := uint64(0); i < 5; i++ {
		u.Log("count %d of %d", i+1, 5)

		if i == 2 {
			syscalls.RequestRender(u)
		}

		syscalls.Yield(u)
	}
}

func wildWrite(u *kernel.User) {
	u.Log("writing to %8", 0xdead0000, 0)
	u.Write(0xdead0000, []byte("boom"))
}

func breakpoint(u *kernel.User) {
	syscalls.Yield(u)
	u.Breakpoint()
}

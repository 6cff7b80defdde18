package syscalls

import (
	"time"

	"github.com/kilnos/kiln/kernel"
)

// User side wrappers, for programs running in a process.

func GetPid(u *kernel.User) int {
	return int(u.Syscall(SysGetPid, 0, 0))
}

func Yield(u *kernel.User) {
	u.Syscall(SysYield, 0, 0)
}

// Uptime is the monotonic time since the kernel booted.
func Uptime(u *kernel.User) time.Duration {
	return time.Duration(u.Syscall(SysGetTime, ClockMonotonic, 0))
}

func RequestRender(u *kernel.User) {
	u.Syscall(SysRequestRender, 0, 0)
}

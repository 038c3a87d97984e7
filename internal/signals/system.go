package signals

import (
	"golang.org/x/sys/unix"
)

// System is the process-control surface the handlers and the dispatcher
// depend on. Tests substitute a fake.
type System interface {
	// Kill sends sig to pid; a negative pid addresses a process group.
	Kill(pid int, sig unix.Signal) error
	// Reap collects one child status without blocking. It returns pid 0
	// when children exist but none has changed state.
	Reap() (pid int, status unix.WaitStatus, err error)
}

// Host is the System backed by the real kernel.
var Host System = hostSystem{}

type hostSystem struct{}

func (hostSystem) Kill(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}

func (hostSystem) Reap() (int, unix.WaitStatus, error) {
	var status unix.WaitStatus
	pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	return pid, status, err
}

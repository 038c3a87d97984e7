package job

import (
	"errors"
	"fmt"
)

type State int

const (
	StateForeground State = iota + 1
	StateBackground
	StateStopped
)

// String returns the label used by the jobs listing.
func (s State) String() string {
	switch s {
	case StateForeground:
		return "Foreground"
	case StateBackground:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrCapacity       = errors.New("tried to create too many jobs")
	ErrInvalidPID     = errors.New("pid must be positive")
	ErrDuplicatePID   = errors.New("pid already tracked")
	ErrForegroundBusy = errors.New("another job is already in the foreground")
	ErrNotFound       = errors.New("no such job")
)

// Job is one shell-launched process group. The group leader's PID doubles
// as the process-group ID.
type Job struct {
	PID         int
	ID          int
	State       State
	CommandLine string
}

// PGID is the signal target for the whole job.
func (j Job) PGID() int {
	return j.PID
}

// Target is the negative PID that addresses every process in the job's group.
func (j Job) Target() int {
	return -j.PID
}

func (j Job) String() string {
	return fmt.Sprintf("[%d] (%d) %s", j.ID, j.PID, j.CommandLine)
}

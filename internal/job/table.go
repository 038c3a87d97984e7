package job

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCapacity is the number of job slots when none is configured.
const DefaultCapacity = 16

// Table is the fixed-capacity registry of live jobs. It is shared between the
// read-eval loop and the signal handlers, so every method locks, and every
// mutation wakes goroutines blocked in WaitForeground.
type Table struct {
	mu      sync.Mutex
	changed *sync.Cond
	slots   []Job
	nextID  int
}

func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	t := &Table{
		slots:  make([]Job, capacity),
		nextID: 1,
	}
	t.changed = sync.NewCond(&t.mu)

	return t
}

// Add registers pid and returns the job ID assigned to it.
func (t *Table) Add(pid int, state State, commandLine string) (int, error) {
	if pid < 1 {
		return 0, ErrInvalidPID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOf(pid) >= 0 {
		return 0, fmt.Errorf("add %d: %w", pid, ErrDuplicatePID)
	}

	if state == StateForeground && t.foregroundIndex() >= 0 {
		return 0, fmt.Errorf("add %d: %w", pid, ErrForegroundBusy)
	}

	free := t.indexOf(0)
	if free < 0 {
		return 0, ErrCapacity
	}

	id := t.allocID()
	t.slots[free] = Job{
		PID:         pid,
		ID:          id,
		State:       state,
		CommandLine: commandLine,
	}
	t.changed.Broadcast()

	return id, nil
}

// Remove deletes the job for pid and reports whether one was present.
// The next job ID restarts right after the highest ID still in use.
func (t *Table) Remove(pid int) bool {
	if pid < 1 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(pid)
	if i < 0 {
		return false
	}

	t.slots[i] = Job{}
	t.nextID = t.maxID() + 1
	t.changed.Broadcast()

	return true
}

// UpdateState moves the job for pid to state.
func (t *Table) UpdateState(pid int, state State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(pid)
	if pid < 1 || i < 0 {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}

	if state == StateForeground {
		if fg := t.foregroundIndex(); fg >= 0 && fg != i {
			return fmt.Errorf("pid %d: %w", pid, ErrForegroundBusy)
		}
	}

	t.slots[i].State = state
	t.changed.Broadcast()

	return nil
}

// UpdateStateIf moves the job for pid to state only while it is still in
// from, and reports whether it did.
func (t *Table) UpdateStateIf(pid int, from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(pid)
	if pid < 1 || i < 0 || t.slots[i].State != from {
		return false
	}
	if to == StateForeground {
		if fg := t.foregroundIndex(); fg >= 0 && fg != i {
			return false
		}
	}

	t.slots[i].State = to
	t.changed.Broadcast()

	return true
}

func (t *Table) FindByPID(pid int) (Job, bool) {
	if pid < 1 {
		return Job{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexOf(pid); i >= 0 {
		return t.slots[i], true
	}
	return Job{}, false
}

func (t *Table) FindByID(id int) (Job, bool) {
	if id < 1 {
		return Job{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range t.slots {
		if j.PID != 0 && j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// Foreground returns the job currently running in the foreground, if any.
func (t *Table) Foreground() (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.foregroundIndex(); i >= 0 {
		return t.slots[i], true
	}
	return Job{}, false
}

func (t *Table) ForegroundPID() (int, bool) {
	j, ok := t.Foreground()
	return j.PID, ok
}

// List returns a snapshot of the live jobs in slot order.
func (t *Table) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make([]Job, 0, len(t.slots))
	for _, j := range t.slots {
		if j.PID != 0 {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, j := range t.slots {
		if j.PID != 0 {
			n++
		}
	}
	return n
}

func (t *Table) Cap() int {
	return len(t.slots)
}

// WaitForeground blocks until pid is no longer the foreground job, either
// because it was reaped or because it changed state, or until ctx is done.
// The condition is re-checked after every wakeup, so a transition that
// happens before the call is never missed.
func (t *Table) WaitForeground(ctx context.Context, pid int) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.changed.Broadcast()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	for t.isForeground(pid) {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.changed.Wait()
	}
	return nil
}

func (t *Table) isForeground(pid int) bool {
	i := t.foregroundIndex()
	return i >= 0 && t.slots[i].PID == pid
}

func (t *Table) indexOf(pid int) int {
	for i, j := range t.slots {
		if j.PID == pid {
			return i
		}
	}
	return -1
}

func (t *Table) foregroundIndex() int {
	for i, j := range t.slots {
		if j.PID != 0 && j.State == StateForeground {
			return i
		}
	}
	return -1
}

func (t *Table) maxID() int {
	highest := 0
	for _, j := range t.slots {
		if j.PID != 0 && j.ID > highest {
			highest = j.ID
		}
	}
	return highest
}

func (t *Table) idInUse(id int) bool {
	for _, j := range t.slots {
		if j.PID != 0 && j.ID == id {
			return true
		}
	}
	return false
}

// allocID hands out the counter value, wrapping to 1 past the capacity and
// skipping IDs still held by live jobs. Callers hold mu and have already
// checked that a slot is free, so an unused ID in 1..cap always exists.
func (t *Table) allocID() int {
	limit := len(t.slots)

	id := t.nextID
	if id < 1 || id > limit {
		id = 1
	}
	for t.idInUse(id) {
		id++
		if id > limit {
			id = 1
		}
	}

	t.nextID = id + 1
	if t.nextID > limit {
		t.nextID = 1
	}
	return id
}

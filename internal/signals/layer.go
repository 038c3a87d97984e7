// Package signals reacts to child state changes and keyboard signals on behalf
// of the shell.
//
// Each handled signal gets its own goroutine fed by os/signal, so a handler
// never overlaps with itself. The child-state handler reaps every waitable
// child per delivery and is the only place jobs leave the table. The
// interrupt and suspend handlers only relay the signal to the foreground
// job's process group; the resulting state change is committed later by the
// child-state handler when the kernel reports it.
package signals

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"bsh/internal/job"
	"bsh/internal/output"
)

type Layer struct {
	jobs *job.Table
	out  *output.Writer
	sys  System
	log  zerolog.Logger
	exit func(int)

	// childMu is held for a whole reap pass, and by the dispatcher between
	// starting a process and registering it.
	childMu sync.Mutex

	once   sync.Once
	cancel context.CancelFunc
	group  *errgroup.Group
	chans  []chan os.Signal
}

type Option func(*Layer)

func WithSystem(sys System) Option {
	return func(l *Layer) {
		l.sys = sys
	}
}

func WithExit(exit func(int)) Option {
	return func(l *Layer) {
		l.exit = exit
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Layer) {
		l.log = logger
	}
}

func New(jobs *job.Table, out *output.Writer, opts ...Option) *Layer {
	l := &Layer{
		jobs: jobs,
		out:  out,
		sys:  Host,
		log:  zerolog.Nop(),
		exit: os.Exit,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start installs the handlers. Calls after the first are no-ops.
func (l *Layer) Start(ctx context.Context) {
	l.once.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		l.group, ctx = errgroup.WithContext(ctx)

		l.install(ctx, unix.SIGCHLD, l.HandleChild)
		l.install(ctx, unix.SIGINT, l.HandleInterrupt)
		l.install(ctx, unix.SIGTSTP, l.HandleSuspend)
		l.install(ctx, unix.SIGQUIT, l.HandleQuit)

		l.log.Debug().Msg("signal handlers installed")
	})
}

// Stop uninstalls the handlers and waits for in-flight handlers to return.
func (l *Layer) Stop() error {
	if l.group == nil {
		return nil
	}

	for _, ch := range l.chans {
		signal.Stop(ch)
	}
	l.cancel()

	return l.group.Wait()
}

func (l *Layer) install(ctx context.Context, sig unix.Signal, handler func()) {
	// One pending delivery is enough: handlers drain all outstanding work
	// each time they run.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	l.chans = append(l.chans, ch)

	l.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				handler()
			}
		}
	})
}

// BlockChild defers child-state handling until the returned function is
// called. The function is safe to call more than once.
func (l *Layer) BlockChild() (unblock func()) {
	l.childMu.Lock()

	var once sync.Once
	return func() {
		once.Do(l.childMu.Unlock)
	}
}

// HandleChild reaps every child that has exited, been killed, stopped or
// continued, without waiting on children that are still running.
func (l *Layer) HandleChild() {
	l.childMu.Lock()
	defer l.childMu.Unlock()

	for {
		pid, status, err := l.sys.Reap()
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ECHILD) {
				return
			}
			l.fatal("waitpid error", err)
			return
		}
		if pid <= 0 {
			return
		}

		l.childChanged(pid, status)
	}
}

func (l *Layer) childChanged(pid int, status unix.WaitStatus) {
	j, tracked := l.jobs.FindByPID(pid)

	switch {
	case status.Exited():
		l.log.Debug().Int("pid", pid).Int("status", status.ExitStatus()).Msg("child exited")
		l.jobs.Remove(pid)

	case status.Signaled():
		if tracked {
			l.out.Printf("Job [%d] (%d) terminated by signal %d\n", j.ID, pid, int(status.Signal()))
		}
		l.jobs.Remove(pid)

	case status.Stopped():
		if !tracked {
			return
		}
		if err := l.jobs.UpdateState(pid, job.StateStopped); err != nil {
			l.log.Warn().Err(err).Int("pid", pid).Msg("stop for vanished job")
			return
		}
		l.out.Printf("Job [%d] (%d) stopped by signal %d\n", j.ID, pid, int(status.StopSignal()))

	case status.Continued():
		// Only a job nobody resumed through fg or bg; those already hold their new state.
		moved := l.jobs.UpdateStateIf(pid, job.StateStopped, job.StateBackground)
		l.log.Debug().Int("pid", pid).Bool("resumed", moved).Msg("child continued")
	}
}

// HandleInterrupt relays SIGINT to the foreground job, if there is one.
func (l *Layer) HandleInterrupt() {
	l.forward(unix.SIGINT)
}

// HandleSuspend relays SIGTSTP to the foreground job, if there is one.
func (l *Layer) HandleSuspend() {
	l.forward(unix.SIGTSTP)
}

// HandleQuit ends the shell. Used by test drivers to shut it down.
func (l *Layer) HandleQuit() {
	l.out.Printf("Terminating after receipt of SIGQUIT signal\n")
	l.exit(1)
}

func (l *Layer) forward(sig unix.Signal) {
	fg, ok := l.jobs.Foreground()
	if !ok {
		l.log.Debug().Stringer("signal", sig).Msg("no foreground job")
		return
	}

	l.log.Debug().Stringer("signal", sig).Int("pgid", fg.PGID()).Msg("forwarding")
	if err := Send(l.sys, fg, sig); err != nil {
		l.fatal("kill error", err)
	}
}

func (l *Layer) fatal(op string, err error) {
	l.out.Printf("%s: %v\n", op, err)
	l.exit(1)
}

// Send delivers sig to every process in j's group. A group that no longer
// exists is not an error: the child-state handler will report it.
func Send(sys System, j job.Job, sig unix.Signal) error {
	if err := sys.Kill(j.Target(), sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

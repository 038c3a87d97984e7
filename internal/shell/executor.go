package shell

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"bsh/internal/job"
)

type Executor struct {
	shell *Shell
}

func NewExecutor(shell *Shell) *Executor {
	return &Executor{
		shell: shell,
	}
}

// Launch starts cmd as a new job. A foreground job is waited for; a
// background job is announced and left running.
func (e *Executor) Launch(ctx context.Context, cmd Command) error {
	j, err := e.start(cmd)
	if err != nil {
		return err
	}

	if cmd.Background {
		e.shell.out.Printf("%s\n", j)
		return nil
	}

	return e.shell.jobs.WaitForeground(ctx, j.PID)
}

// start runs the program in its own process group and registers it. Child
// state changes are held back until the job is in the table, so a child that
// exits immediately is still reaped as a known job.
func (e *Executor) start(cmd Command) (job.Job, error) {
	unblock := e.shell.signals.BlockChild()
	defer unblock()

	execCmd := e.prepareCommand(cmd)
	if err := execCmd.Start(); err != nil {
		return job.Job{}, startFailure(cmd.Args[0], err)
	}

	pid := execCmd.Process.Pid
	// The child is reaped by the signal layer, never through exec.Cmd.
	if err := execCmd.Process.Release(); err != nil {
		e.shell.log.Warn().Err(err).Int("pid", pid).Msg("release process")
	}

	state := job.StateForeground
	if cmd.Background {
		state = job.StateBackground
	}

	id, err := e.shell.jobs.Add(pid, state, cmd.Line)
	if err != nil {
		if killErr := e.shell.sys.Kill(-pid, unix.SIGKILL); killErr != nil {
			e.shell.log.Warn().Err(killErr).Int("pid", pid).Msg("kill unregistered job")
		}
		return job.Job{}, err
	}

	j := job.Job{PID: pid, ID: id, State: state, CommandLine: cmd.Line}
	if e.shell.config.Verbose {
		e.shell.out.Printf("Added job [%d] %d %s\n", j.ID, j.PID, j.CommandLine)
	}
	e.shell.log.Debug().Int("id", id).Int("pid", pid).Stringer("state", state).Msg("job started")

	return j, nil
}

// startFailure separates programs that cannot be run, which the user can fix,
// from fork or process-group failures, which end the shell.
func startFailure(name string, err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound),
		errors.Is(err, exec.ErrDot),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, unix.EACCES),
		errors.Is(err, unix.ENOEXEC),
		errors.Is(err, unix.ENOTDIR),
		errors.Is(err, unix.EISDIR):
		return &CommandError{Name: name, Err: err}
	default:
		return &FatalError{Op: "fork error", Err: err}
	}
}

func (e *Executor) prepareCommand(cmd Command) *exec.Cmd {
	execCmd := exec.Command(cmd.Args[0], cmd.Args[1:]...)

	execCmd.SysProcAttr = &unix.SysProcAttr{
		Setpgid: true,
	}

	// Only *os.File streams, so exec starts no copying goroutines that would
	// need a Wait.
	if e.shell.childIn != nil {
		execCmd.Stdin = e.shell.childIn
	}
	if e.shell.childOut != nil {
		execCmd.Stdout = e.shell.childOut
	}
	if e.shell.config.MergeStderr {
		if e.shell.childOut != nil {
			execCmd.Stderr = e.shell.childOut
		}
	} else {
		execCmd.Stderr = os.Stderr
	}

	return execCmd
}

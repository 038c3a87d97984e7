package shell

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"bsh/internal/config"
	"bsh/internal/job"
)

type sent struct {
	pid int
	sig unix.Signal
}

// fakeSystem records signals and has no children to reap.
type fakeSystem struct {
	mu      sync.Mutex
	kills   []sent
	killErr error
}

func (f *fakeSystem) Kill(pid int, sig unix.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.kills = append(f.kills, sent{pid: pid, sig: sig})
	return f.killErr
}

func (f *fakeSystem) Reap() (int, unix.WaitStatus, error) {
	return 0, 0, unix.ECHILD
}

func (f *fakeSystem) sentSignals() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sent(nil), f.kills...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.EmitPrompt = false
	cfg.Color.Mode = "never"
	return &cfg
}

func newFakeShell(t *testing.T) (*Shell, *bytes.Buffer, *fakeSystem) {
	t.Helper()

	var buf bytes.Buffer
	sys := &fakeSystem{}
	sh, err := NewShell(
		WithConfig(testConfig()),
		WithOutput(&buf),
		WithSystem(sys),
		WithExit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)
	return sh, &buf, sys
}

func TestBuiltin_Jobs(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	_, err := sh.Jobs().Add(101, job.StateBackground, "sleep 10 &")
	require.NoError(t, err)
	_, err = sh.Jobs().Add(102, job.StateStopped, "vi notes")
	require.NoError(t, err)

	require.NoError(t, sh.Execute(context.Background(), "jobs\n"))
	assert.Equal(t, "[1] (101) Running sleep 10 &\n[2] (102) Stopped vi notes\n", buf.String())
}

func TestBuiltin_JobsEmpty(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	require.NoError(t, sh.Execute(context.Background(), "jobs\n"))
	assert.Empty(t, buf.String())
}

func TestBuiltin_BadArguments(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"fg\n", "fg command requires PID or %jobid argument\n"},
		{"bg\n", "bg command requires PID or %jobid argument\n"},
		{"fg abc\n", "fg: argument must be a PID or %jobid\n"},
		{"bg %x\n", "bg: argument must be a PID or %jobid\n"},
		{"fg %9\n", "fg: argument must be a PID or %jobid\n"},
		{"bg 999\n", "bg: argument must be a PID or %jobid\n"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sh, buf, sys := newFakeShell(t)
			_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
			require.NoError(t, err)
			before := sh.Jobs().List()

			require.NoError(t, sh.Execute(context.Background(), tt.input))
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, before, sh.Jobs().List())
			assert.Empty(t, sys.sentSignals())
		})
	}
}

func TestBuiltin_BgByJobID(t *testing.T) {
	sh, buf, sys := newFakeShell(t)
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	require.NoError(t, sh.Execute(context.Background(), "bg %1\n"))

	assert.Equal(t, "[1] (101) sleep 10\n", buf.String())
	assert.Equal(t, []sent{{pid: -101, sig: unix.SIGCONT}}, sys.sentSignals())

	j, ok := sh.Jobs().FindByPID(101)
	require.True(t, ok)
	assert.Equal(t, job.StateBackground, j.State)
}

func TestBuiltin_BgByPID(t *testing.T) {
	sh, _, sys := newFakeShell(t)
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	require.NoError(t, sh.Execute(context.Background(), "bg 101\n"))
	assert.Equal(t, []sent{{pid: -101, sig: unix.SIGCONT}}, sys.sentSignals())
}

func TestBuiltin_FgWaitsUntilJobLeavesForeground(t *testing.T) {
	sh, buf, sys := newFakeShell(t)
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- sh.Execute(context.Background(), "fg %1\n")
	}()

	require.Eventually(t, func() bool {
		pid, ok := sh.Jobs().ForegroundPID()
		return ok && pid == 101
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("fg returned while the job was in the foreground")
	case <-time.After(50 * time.Millisecond):
	}

	sh.Jobs().Remove(101)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("fg did not return after the job was removed")
	}

	assert.Empty(t, buf.String())
	assert.Equal(t, []sent{{pid: -101, sig: unix.SIGCONT}}, sys.sentSignals())
}

func TestBuiltin_ResumeKillFailureIsFatal(t *testing.T) {
	sh, _, sys := newFakeShell(t)
	sys.killErr = unix.EPERM
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	err = sh.Execute(context.Background(), "bg %1\n")
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "kill error", fatal.Op)
	assert.True(t, errors.Is(err, unix.EPERM))
}

func TestBuiltin_ResumeVanishedGroupIsIgnored(t *testing.T) {
	sh, buf, sys := newFakeShell(t)
	sys.killErr = unix.ESRCH
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	require.NoError(t, sh.Execute(context.Background(), "bg %1\n"))
	assert.Equal(t, "[1] (101) sleep 10\n", buf.String())
}

func TestBuiltin_Quit(t *testing.T) {
	sh, _, _ := newFakeShell(t)

	assert.ErrorIs(t, sh.Execute(context.Background(), "quit\n"), ErrQuit)
}

func TestBuiltin_Help(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	require.NoError(t, sh.Execute(context.Background(), "help\n"))
	for _, name := range []string{"bg", "fg", "help", "jobs", "quit"} {
		assert.Contains(t, buf.String(), "  "+name)
	}

	buf.Reset()
	require.NoError(t, sh.Execute(context.Background(), "help fg\n"))
	assert.Equal(t, "fg - Resume a job in the foreground: fg <pid|%jobid>\n", buf.String())

	buf.Reset()
	require.NoError(t, sh.Execute(context.Background(), "help cd\n"))
	assert.Equal(t, "no help available for 'cd'\n", buf.String())
}

func TestExecute_ParseErrorIsReported(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	require.NoError(t, sh.Execute(context.Background(), "echo 'oops\n"))
	assert.Contains(t, buf.String(), "unclosed quote")
}

func TestExecute_BlankLine(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	require.NoError(t, sh.Execute(context.Background(), "   \n"))
	require.NoError(t, sh.Execute(context.Background(), "&\n"))
	assert.Empty(t, buf.String())
	assert.Zero(t, sh.Jobs().Len())
}

func TestExecute_CommandNotFound(t *testing.T) {
	sh, buf, _ := newFakeShell(t)

	require.NoError(t, sh.Execute(context.Background(), "bsh-no-such-command arg\n"))
	assert.Equal(t, "bsh-no-such-command: Command not found\n", buf.String())

	buf.Reset()
	require.NoError(t, sh.Execute(context.Background(), "./bsh-no-such-file\n"))
	assert.Equal(t, "./bsh-no-such-file: Command not found\n", buf.String())
	assert.Zero(t, sh.Jobs().Len())
}

func TestNewShell_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobs = 0

	_, err := NewShell(WithConfig(cfg))
	assert.Error(t, err)
}

func TestBuiltin_FgReturnsWhenContextCancelled(t *testing.T) {
	sh, _, _ := newFakeShell(t)
	_, err := sh.Jobs().Add(101, job.StateStopped, "sleep 10")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sh.Execute(ctx, "fg %1\n")
	}()

	require.Eventually(t, func() bool {
		_, ok := sh.Jobs().Foreground()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("fg ignored cancellation")
	}
}

func TestStartFailure(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"not in path", &exec.Error{Name: "nope", Err: exec.ErrNotFound}, false},
		{"missing file", &fs.PathError{Op: "fork/exec", Path: "./nope", Err: unix.ENOENT}, false},
		{"not executable", &fs.PathError{Op: "fork/exec", Path: "./notes.txt", Err: unix.EACCES}, false},
		{"bad format", &fs.PathError{Op: "fork/exec", Path: "./blob", Err: unix.ENOEXEC}, false},
		{"setpgid refused", &fs.PathError{Op: "fork/exec", Path: "/bin/sleep", Err: unix.EPERM}, true},
		{"fork exhausted", &fs.PathError{Op: "fork/exec", Path: "/bin/sleep", Err: unix.EAGAIN}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := startFailure("prog", tt.err)

			var fatal *FatalError
			var cmdErr *CommandError
			if tt.fatal {
				require.ErrorAs(t, err, &fatal)
				assert.Equal(t, "fork error", fatal.Op)
			} else {
				require.ErrorAs(t, err, &cmdErr)
				assert.Equal(t, "prog", cmdErr.Name)
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

package shell

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"bsh/internal/job"
	"bsh/internal/signals"
)

type BuiltinCommand struct {
	Name        string
	Description string
	Execute     func(ctx context.Context, s *Shell, args []string) error
}

var builtinCommands map[string]BuiltinCommand

// Filled in init because help lists the table it belongs to.
func init() {
	builtinCommands = map[string]BuiltinCommand{
		"quit": {
			Name:        "quit",
			Description: "Exit the shell",
			Execute:     quitCommand,
		},
		"jobs": {
			Name:        "jobs",
			Description: "List running and stopped jobs",
			Execute:     jobsCommand,
		},
		"bg": {
			Name:        "bg",
			Description: "Resume a job in the background: bg <pid|%jobid>",
			Execute:     bgCommand,
		},
		"fg": {
			Name:        "fg",
			Description: "Resume a job in the foreground: fg <pid|%jobid>",
			Execute:     fgCommand,
		},
		"help": {
			Name:        "help",
			Description: "Display help for built-in commands",
			Execute:     helpCommand,
		},
	}
}

func quitCommand(ctx context.Context, s *Shell, args []string) error {
	return ErrQuit
}

func jobsCommand(ctx context.Context, s *Shell, args []string) error {
	for _, j := range s.jobs.List() {
		s.out.Printf("[%d] (%d) %s %s\n", j.ID, j.PID, j.State, j.CommandLine)
	}
	return nil
}

func bgCommand(ctx context.Context, s *Shell, args []string) error {
	j, err := resume(s, args, job.StateBackground)
	if err != nil {
		return err
	}

	s.out.Printf("%s\n", j)
	return nil
}

func fgCommand(ctx context.Context, s *Shell, args []string) error {
	j, err := resume(s, args, job.StateForeground)
	if err != nil {
		return err
	}

	return s.jobs.WaitForeground(ctx, j.PID)
}

// resume moves the job named by args[1] to state and continues its group.
func resume(s *Shell, args []string, state job.State) (job.Job, error) {
	j, err := resolveJob(s.jobs, args)
	if err != nil {
		return job.Job{}, err
	}

	if err := s.jobs.UpdateState(j.PID, state); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.Job{}, badJobArgument(args[0])
		}
		return job.Job{}, fmt.Errorf("%s: %w", args[0], err)
	}
	j.State = state

	if err := signals.Send(s.sys, j, unix.SIGCONT); err != nil {
		return job.Job{}, &FatalError{Op: "kill error", Err: err}
	}

	s.log.Debug().Int("id", j.ID).Int("pid", j.PID).Stringer("state", state).Msg("job resumed")
	return j, nil
}

// resolveJob accepts either a PID or %jobid.
func resolveJob(jobs *job.Table, args []string) (job.Job, error) {
	name := args[0]
	if len(args) < 2 {
		return job.Job{}, fmt.Errorf("%s command requires PID or %%jobid argument", name)
	}

	arg := args[1]
	var (
		j     job.Job
		found bool
	)

	if rest, ok := strings.CutPrefix(arg, "%"); ok {
		id, err := strconv.Atoi(rest)
		if err != nil {
			return job.Job{}, badJobArgument(name)
		}
		j, found = jobs.FindByID(id)
	} else {
		pid, err := strconv.Atoi(arg)
		if err != nil {
			return job.Job{}, badJobArgument(name)
		}
		j, found = jobs.FindByPID(pid)
	}

	if !found {
		return job.Job{}, badJobArgument(name)
	}
	return j, nil
}

func badJobArgument(name string) error {
	return fmt.Errorf("%s: argument must be a PID or %%jobid", name)
}

func helpCommand(ctx context.Context, s *Shell, args []string) error {
	if len(args) > 1 {
		if cmd, exists := builtinCommands[args[1]]; exists {
			s.out.Printf("%s - %s\n", cmd.Name, cmd.Description)
			return nil
		}

		return fmt.Errorf("no help available for '%s'", args[1])
	}

	s.out.Printf("Built-in commands:\n")
	var names []string
	for name := range builtinCommands {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		s.out.Printf("  %-10s - %s\n", name, builtinCommands[name].Description)
	}

	return nil
}

package shell

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"bsh/internal/config"
	"bsh/internal/job"
	"bsh/internal/output"
	"bsh/internal/prompt"
	"bsh/internal/signals"
)

type Shell struct {
	config   *config.Config
	jobs     *job.Table
	signals  *signals.Layer
	sys      signals.System
	parser   *Parser
	executor *Executor
	prompt   *prompt.Builder
	out      *output.Writer

	in     io.Reader
	stdout io.Writer
	// Handed to children directly; nil means /dev/null.
	childIn  *os.File
	childOut *os.File

	log  zerolog.Logger
	exit func(int)
}

type ShellOption func(*Shell) error

func WithConfig(cfg *config.Config) ShellOption {
	return func(s *Shell) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.config = cfg
		return nil
	}
}

func WithInput(r io.Reader) ShellOption {
	return func(s *Shell) error {
		s.in = r
		s.childIn, _ = r.(*os.File)
		return nil
	}
}

// WithOutput sets where the shell writes. Children share it only when w is
// an *os.File. WithInput works the same way for reading.
func WithOutput(w io.Writer) ShellOption {
	return func(s *Shell) error {
		s.stdout = w
		s.childOut, _ = w.(*os.File)
		return nil
	}
}

// WithSystem replaces the kill and wait calls used for job control.
func WithSystem(sys signals.System) ShellOption {
	return func(s *Shell) error {
		s.sys = sys
		return nil
	}
}

// WithExit replaces os.Exit for the signal handlers' fatal paths.
func WithExit(exit func(int)) ShellOption {
	return func(s *Shell) error {
		s.exit = exit
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ShellOption {
	return func(s *Shell) error {
		s.log = logger
		return nil
	}
}

func NewShell(opts ...ShellOption) (*Shell, error) {
	def := config.Default()

	s := &Shell{
		config:   &def,
		sys:      signals.Host,
		in:       os.Stdin,
		childIn:  os.Stdin,
		stdout:   os.Stdout,
		childOut: os.Stdout,
		log:      zerolog.Nop(),
		exit:     os.Exit,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var errAttrs []color.Attribute
	if attr, ok := config.Attribute(s.config.Color.Error); ok {
		errAttrs = append(errAttrs, attr)
	}
	s.out = output.New(s.stdout, s.config.Color.UseColor(), errAttrs...)

	s.jobs = job.NewTable(s.config.MaxJobs)
	s.signals = signals.New(s.jobs, s.out,
		signals.WithSystem(s.sys),
		signals.WithExit(s.exit),
		signals.WithLogger(s.log.With().Str("component", "signals").Logger()),
	)

	var promptOpts []prompt.Option
	if attr, ok := config.Attribute(s.config.Color.Prompt); ok && s.config.Color.UseColor() {
		promptOpts = append(promptOpts, prompt.WithColor(attr))
	}
	s.prompt = prompt.NewBuilder(s.config.Prompt, promptOpts...)

	s.parser = NewParser()
	s.executor = NewExecutor(s)

	return s, nil
}

// Jobs exposes the job table.
func (s *Shell) Jobs() *job.Table {
	return s.jobs
}

// Run installs the signal handlers and reads commands until quit, end of
// input or a fatal error.
func (s *Shell) Run(ctx context.Context) error {
	s.signals.Start(ctx)
	defer func() {
		if err := s.signals.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("signal handlers did not stop cleanly")
		}
	}()

	s.log.Debug().Int("max_jobs", s.jobs.Cap()).Msg("shell started")

	return s.loop(ctx)
}

// Cancelling ctx ends the loop at the next command boundary, or releases a
// foreground wait, without error.
func (s *Shell) loop(ctx context.Context) error {
	reader := bufio.NewReader(s.in)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if s.config.EmitPrompt {
			s.out.Print(s.prompt.Build())
		}

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A trailing partial line is dropped.
				return nil
			}
			return &FatalError{Op: "read error", Err: err}
		}

		if err := s.Execute(ctx, input); err != nil {
			if errors.Is(err, ErrQuit) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
				return nil
			}
			return err
		}
	}
}

// Execute evaluates one command line. User errors are printed here; only
// ErrQuit, fatal errors and the context's error are returned.
func (s *Shell) Execute(ctx context.Context, input string) error {
	cmd, err := s.parser.Parse(input)
	if err != nil {
		return s.report(err)
	}

	if len(cmd.Args) == 0 {
		return nil
	}

	if builtin, ok := builtinCommands[cmd.Args[0]]; ok {
		return s.report(builtin.Execute(ctx, s, cmd.Args))
	}

	return s.report(s.executor.Launch(ctx, cmd))
}

func (s *Shell) report(err error) error {
	var fatal *FatalError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuit), errors.As(err, &fatal):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, job.ErrCapacity):
		s.out.Printf("Tried to create too many jobs\n")
	default:
		s.out.Errorf("%v", err)
	}

	s.log.Debug().Err(err).Msg("command failed")
	return nil
}

package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bsh/internal/config"
	"bsh/internal/logging"
	"bsh/internal/shell"
)

const cliExecutable = "bsh"

// NewCommand constructs the bsh CLI. Without a subcommand it runs the
// interactive shell on stdin and stdout.
func NewCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "A small job-control shell",
		Long: `bsh reads one command per line and runs it in its own process group.
A trailing '&' runs the command in the background. Built-ins: quit, jobs,
bg, fg and help.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configPath(configFile))
			if err != nil {
				return err
			}

			// Diagnostics stay on stderr so stdout remains a clean transcript.
			logging.SetLogWriter(os.Stderr)
			logging.ConfigureGlobal(cfg.Log.Level)
			log.Logger = log.Logger.With().Str("session", uuid.NewString()).Logger()

			if cfg.MergeStderr {
				cmd.SetErr(cmd.OutOrStdout())
			}

			sh, err := shell.NewShell(
				shell.WithConfig(cfg),
				shell.WithInput(cmd.InOrStdin()),
				shell.WithOutput(cmd.OutOrStdout()),
				shell.WithLogger(logging.NewLogger("shell")),
			)
			if err != nil {
				return fmt.Errorf("initialize shell: %w", err)
			}

			return sh.Run(cmd.Context())
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default ~/.bsh/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newConfigCommand(&configFile))

	return cmd
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return config.DefaultPath()
}

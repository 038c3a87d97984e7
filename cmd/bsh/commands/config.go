package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bsh/internal/config"
)

func newConfigCommand(configFile *string) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(*configFile)

			cfg, err := config.Load(cmd.Flags(), path)
			if err != nil {
				return err
			}

			if !write {
				return cfg.Dump(cmd.OutOrStdout())
			}

			if path == "" {
				return errors.New("no config path: pass --config")
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Save to the config file instead of printing")

	return cmd
}

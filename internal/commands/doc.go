// Package commands provides the command-line interface for the foldenc tool.
//
// It implements commands for:
//   - encryption of folders
//   - decryption of archives
//   - a preflight check of backend, tools and exclude patterns
//
// The package handles command-line parsing, configuration validation,
// and environment variable binding through cobra and viper.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/logging"
	"github.com/idelchi/foldenc/internal/logic"
)

// preRun returns a PreRunE handler that loads flags, environment and config file into cfg,
// resolves positional args into cfg.Paths and validates the configuration.
// Without args, fallback is used.
func preRun(cfg *config.Config, fallback ...string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cmd.Flags(), cfg); err != nil {
			return err
		}

		logging.Setup(cfg.Verbose)

		if len(args) == 0 {
			cfg.Paths = fallback
		} else {
			cfg.Paths = args
		}

		return cfg.Validate()
	}
}

// run returns a RunE handler running the batch, or showing the configuration with --show.
func run(cfg *config.Config) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if cfg.Show {
			return cfg.Display(cmd.OutOrStdout())
		}

		return logic.Run(cmd.Context(), cfg, streams(cmd))
	}
}

func streams(cmd *cobra.Command) logic.Streams {
	return logic.Streams{
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
		In:  cmd.InOrStdin(),
	}
}

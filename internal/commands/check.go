package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/logic"
)

// NewCheckCommand creates a new cobra command for the check subcommand.
func NewCheckCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "check [flags] [folders...]",
		Short:   "Validate backend, tools and exclude patterns before encrypting",
		Args:    cobra.ArbitraryArgs,
		PreRunE: preRun(cfg, "."),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Show {
				return cfg.Display(cmd.OutOrStdout())
			}

			return logic.RunCheck(cfg, cmd.OutOrStdout())
		},
	}
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/foldenc/internal/config"
)

// NewDecryptCommand creates a new cobra command for the decrypt subcommand.
func NewDecryptCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "decrypt [flags] [archives/directories...]",
		Aliases: []string{"dec"},
		Short:   "Decrypt archives into folders",
		Long: `Decrypt each archive into <parent>/<archive without ext>.

Directories are searched, without descending, for files ending in the extension.
Defaults to the current directory.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Decrypt = true

			return preRun(cfg, ".")(cmd, args)
		},
		RunE: run(cfg),
	}
}

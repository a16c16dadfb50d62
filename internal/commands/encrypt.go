package commands

import (
	"github.com/spf13/cobra"

	"github.com/idelchi/foldenc/internal/config"
)

// NewEncryptCommand creates a new cobra command for the encrypt subcommand.
func NewEncryptCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "encrypt [flags] folders...",
		Aliases: []string{"enc"},
		Short:   "Encrypt folders",
		Long: `Encrypt each folder into <parent>/<folder><ext>.

The password is read from --password-file, --password-stdin or FOLDENC_PASSWORD,
and asked for twice on the terminal otherwise.`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Decrypt = false

			return preRun(cfg)(cmd, args)
		},
		RunE: run(cfg),
	}
}

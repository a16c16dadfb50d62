package commands

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idelchi/foldenc/internal/backend"
	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/pipeline"
)

// NewRootCommand creates the root command with common configuration.
// Flags are persistent so they can be given before or after the subcommand.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "foldenc [flags] command [flags]",
		Short: "Password-based folder encryption",
		Long: `Encrypt folders into single password-protected files, and back.

A folder is packaged as a tar archive and encrypted with tar(1) and openssl(1),
with 7z(1), or natively without external tools, depending on --backend.
Every flag can also be set as FOLDENC_<FLAG> or in the config file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()

	flags.BoolP("show", "s", false, "Show the configuration and exit")
	flags.IntP("parallel", "j", runtime.NumCPU(), "Number of parallel workers, defaults to number of CPUs")
	flags.BoolP("quiet", "q", false, "Suppress non-error output")
	flags.CountP("verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv trace)")
	flags.Bool("dry", false, "Show what would be processed without doing it")
	flags.Bool("stats", false, "Print a summary when done")
	flags.BoolP("force", "f", false, "Replace existing outputs")
	flags.BoolP("delete", "d", false, "Delete the source after successful encryption/decryption")

	flags.StringP("backend", "b", string(backend.Auto), "Backend, one of: "+names())
	flags.String("ext", pipeline.DefaultExtension, "Extension of encrypted files")

	flags.StringSliceP("exclude", "e", nil, "Leave out folder members matching a pattern (find -path semantics)")
	flags.String("exclude-from", "", "Path to a JSONC list of exclude patterns")

	flags.String("password-file", "", "Read the password from a file")
	flags.Bool("password-stdin", false, "Read the password from the first line of stdin")

	flags.String("tar", "tar", "tar executable")
	flags.String("openssl", "openssl", "openssl executable")
	flags.String("7z", "7z", "7z executable")

	flags.StringP("config", "c", "", "Config file, defaults to $XDG_CONFIG_HOME/"+config.DefaultConfigFile)

	root.AddCommand(NewEncryptCommand(cfg), NewDecryptCommand(cfg), NewCheckCommand(cfg))

	return root
}

func names() string {
	all := backend.Names()
	parts := make([]string, len(all))

	for i, n := range all {
		parts[i] = string(n)
	}

	return strings.Join(parts, ", ")
}

// Command foldenc encrypts folders into single password-protected files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/idelchi/foldenc/internal/commands"
	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/errors"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "unknown - unofficial & generated by unknown"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	cfg := config.Config{}
	root := commands.NewRootCommand(&cfg, version)

	err := root.ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.UserMessage(err))

		os.Exit(1)
	}
}

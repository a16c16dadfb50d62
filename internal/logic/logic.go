// Package logic wires configuration, password, backend and pipeline into one invocation.
package logic

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/backend"
	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/fileutil"
	"github.com/idelchi/foldenc/internal/filter"
	"github.com/idelchi/foldenc/internal/logging"
	"github.com/idelchi/foldenc/internal/pipeline"
	"github.com/idelchi/foldenc/internal/secret"
)

// ErrJobsFailed is returned when at least one job of a batch failed.
// Each failure has already been reported on its own.
var ErrJobsFailed = stderrors.New("job(s) failed")

// Streams are where an invocation reports to.
type Streams struct {
	Out io.Writer
	Err io.Writer
	// In is read by --password-stdin.
	In io.Reader
}

// Run is the main logic of the application.
func Run(ctx context.Context, cfg *config.Config, streams Streams) error {
	start := time.Now()
	logger := logging.GetLogger("logic")
	fsys := afero.NewOsFs()

	mode := pipeline.Encrypt
	if cfg.Decrypt {
		mode = pipeline.Decrypt
	}

	logging.LogCommand(logger, mode.String(), cfg.Paths)

	excludes, err := loadExcludes(fsys, cfg)
	if err != nil {
		return err
	}

	strategy, err := backend.Resolve(strategyOptions(cfg))
	if err != nil {
		return err
	}

	sources, scanned, err := resolveSources(fsys, cfg, excludes)
	if err != nil {
		return fmt.Errorf("resolving sources: %w", err)
	}

	excluded := scanned - len(sources)

	orch := pipeline.New(strategy, pipeline.Options{
		Extension: cfg.Extension,
		Force:     cfg.Force,
		Excludes:  excludes,
	})

	if cfg.Dry {
		return dryRun(orch, mode, sources, cfg, streams, scanned, excluded, start)
	}

	source := secret.Source{
		File:       cfg.PasswordFile,
		Stdin:      cfg.PasswordStdin,
		Confirm:    mode == pipeline.Encrypt,
		AllowEmpty: strategy.Name == backend.SevenZip,
		In:         streams.In,
		Prompt:     streams.Err,
	}

	password, err := source.Read()
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidInput, "reading password")
	}

	defer secret.Wipe(password)

	proc := pipeline.NewProcessor(orch, mode, pipeline.BatchOptions{
		Parallel: cfg.Parallel,
		Quiet:    cfg.Quiet,
		Delete:   cfg.Delete,
		Stdout:   streams.Out,
		Stderr:   streams.Err,
	})

	processed, errored, totalSize, err := proc.Process(ctx, sources, password)

	if cfg.Stats {
		printStats(streams.Err, scanned, excluded, processed, errored, totalSize, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("%d of %d %w", errored, len(sources), ErrJobsFailed)
	}

	return nil
}

// strategyOptions maps the configuration onto backend.Resolve.
func strategyOptions(cfg *config.Config) backend.Options {
	return backend.Options{
		Backend:     backend.Name(cfg.Backend),
		TarBin:      cfg.TarBin,
		OpenSSLBin:  cfg.OpenSSLBin,
		SevenZipBin: cfg.SevenZipBin,
	}
}

// loadExcludes merges CLI and file-based exclude patterns.
func loadExcludes(fsys afero.Fs, cfg *config.Config) ([]string, error) {
	excludes := append([]string{}, cfg.Exclude...)

	if cfg.ExcludeFrom != "" {
		patterns, err := filter.LoadPatterns(fsys, cfg.ExcludeFrom)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInvalidInput, "loading exclude patterns")
		}

		excludes = append(excludes, patterns...)
	}

	return filter.NormalizePatterns(excludes), nil
}

// resolveSources turns the positional arguments into job sources.
// Returns the number of candidates scanned before filtering.
// When decrypting, excludes also drop archives found in directories.
func resolveSources(fsys afero.Fs, cfg *config.Config, excludes []string) ([]string, int, error) {
	if cfg.Decrypt {
		return filter.Archives(fsys, cfg.Paths, cfg.Extension, excludes)
	}

	folders, err := filter.Folders(cfg.Paths)
	if err != nil {
		return nil, 0, err
	}

	return folders, len(folders), nil
}

// dryRun previews what would be processed without touching anything.
func dryRun(
	orch *pipeline.Orchestrator,
	mode pipeline.Mode,
	sources []string,
	cfg *config.Config,
	streams Streams,
	scanned, excluded int,
	start time.Time,
) error {
	var (
		totalSize int64
		processed int
		errored   int
	)

	fsys := orch.Strategy().Fs

	for _, source := range sources {
		job, err := orch.NewJob(mode, source, nil)
		if err != nil {
			errored++

			fmt.Fprintf(streams.Err, "Error processing %q: %s\n", source, errors.UserMessage(err))

			continue
		}

		processed++

		if !cfg.Quiet {
			fmt.Fprintf(streams.Out, "Would %s %q -> %q\n", mode, job.Source, job.Output)
		}

		if cfg.Stats {
			if size, err := fileutil.Size(fsys, job.Source); err == nil {
				totalSize += size
			}
		}
	}

	if cfg.Stats {
		printStats(streams.Err, scanned, excluded, processed, errored, totalSize, time.Since(start))
	}

	if errored > 0 {
		return fmt.Errorf("%d of %d %w", errored, len(sources), ErrJobsFailed)
	}

	return nil
}

func printStats(w io.Writer, scanned, excluded, processed, errored int, totalSize int64, duration time.Duration) {
	fmt.Fprintf(w, "\nStats\n")
	fmt.Fprintf(w, "  Scanned:   %d\n", scanned)
	fmt.Fprintf(w, "  Excluded:  %d\n", excluded)
	fmt.Fprintf(w, "  Processed: %d\n", processed)
	fmt.Fprintf(w, "  Errors:    %d\n", errored)
	//nolint:gosec // totalSize is always non-negative (sum of file sizes)
	fmt.Fprintf(w, "  Size:      %s\n", humanize.IBytes(uint64(max(0, totalSize))))
	fmt.Fprintf(w, "  Duration:  %s\n", duration.Round(time.Millisecond))
}

package logic

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/backend"
	"github.com/idelchi/foldenc/internal/config"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/filter"
	"github.com/idelchi/foldenc/pkg/pathmatch"
)

// RunCheck reports the backend an encryption of cfg.Paths would use, whether its tools
// are installed, and exclude patterns that match nothing in any of the folders.
func RunCheck(cfg *config.Config, w io.Writer) error {
	fsys := afero.NewOsFs()

	strategy, err := backend.Resolve(strategyOptions(cfg))
	if err != nil {
		return err
	}

	if backend.Name(cfg.Backend) == backend.Auto {
		fmt.Fprintf(w, "backend: %s (auto on %s)\n", strategy.Name, runtime.GOOS)
	} else {
		fmt.Fprintf(w, "backend: %s\n", strategy.Name)
	}

	failures := checkTools(w, strategy, cfg.Quiet)

	excludes, err := loadExcludes(fsys, cfg)
	if err != nil {
		return err
	}

	unmatched, err := checkExcludes(fsys, cfg.Paths, excludes)
	if err != nil {
		return err
	}

	for _, pattern := range unmatched {
		fmt.Fprintf(w, "exclude: %s: matches nothing (ERROR)\n", pattern)
	}

	failures += len(unmatched)

	if !cfg.Quiet && len(excludes) > 0 {
		fmt.Fprintf(w, "exclude: %d of %d pattern(s) match\n", len(excludes)-len(unmatched), len(excludes))
	}

	if failures > 0 {
		return errors.Newf(errors.ErrInvalidInput, "%d problem(s) found", failures)
	}

	return nil
}

// checkTools looks up every external tool of strategy.
// Returns the number of tools that are missing.
func checkTools(w io.Writer, strategy *backend.Strategy, quiet bool) int {
	var failures int

	for _, status := range strategy.CheckTools() {
		if status.Err != nil {
			fmt.Fprintf(w, "%s: %s: not found (ERROR)\n", status.Role, status.Bin)

			failures++

			continue
		}

		if !quiet {
			fmt.Fprintf(w, "%s: %s -> %s\n", status.Role, status.Bin, status.Path)
		}
	}

	return failures
}

// checkExcludes returns the patterns that match no member of any folder.
func checkExcludes(fsys afero.Fs, folders, excludes []string) ([]string, error) {
	if len(excludes) == 0 {
		return nil, nil
	}

	matcher, err := pathmatch.NewMatcher(excludes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidInput, "compiling exclude patterns")
	}

	var members []string

	for _, folder := range folders {
		found, err := filter.Members(fsys, folder)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInvalidSource, "listing folder")
		}

		members = append(members, found...)
	}

	return matcher.Unmatched(members), nil
}

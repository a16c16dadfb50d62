// Package filter resolves command line arguments into job sources.
package filter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/pkg/pathmatch"
)

// Filter selects archives based on include/exclude patterns using find -path semantics.
// Excludes always win.
type Filter struct {
	includes *pathmatch.Matcher
	excludes *pathmatch.Matcher
}

// NewFilter compiles include/exclude patterns into a reusable filter.
func NewFilter(includes, excludes []string) (*Filter, error) {
	inc, err := pathmatch.NewMatcher(includes)
	if err != nil {
		return nil, fmt.Errorf("compiling include patterns: %w", err)
	}

	exc, err := pathmatch.NewMatcher(excludes)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude patterns: %w", err)
	}

	return &Filter{includes: inc, excludes: exc}, nil
}

// match returns true if the slash separated path should be included.
func (f *Filter) match(path string) bool {
	return f.includes.MatchAny(path) && !f.excludes.MatchAny(path)
}

// NormalizePatterns strips leading "./" from patterns so they match cleaned paths.
func NormalizePatterns(patterns []string) []string {
	out := make([]string, len(patterns))

	for i, p := range patterns {
		out[i] = strings.TrimPrefix(p, "./")
	}

	return out
}

// Folders cleans and de-duplicates the folders to encrypt.
// Whether each one exists and is a folder is left to the job, so every bad argument
// is reported on its own instead of aborting the batch.
func Folders(args []string) ([]string, error) {
	var folders []string

	seen := make(map[string]struct{})

	for _, arg := range args {
		if err := validatePath(arg); err != nil {
			return nil, err
		}

		arg = filepath.Clean(arg)

		if _, ok := seen[arg]; ok {
			continue
		}

		seen[arg] = struct{}{}
		folders = append(folders, arg)
	}

	return folders, nil
}

// Archives resolves the archives to decrypt.
// Files are added directly, bypassing filtering. Directories are searched, without descending,
// for files ending in ext, minus those matching one of excludes.
// Returns matched archives and the number of directory entries scanned.
func Archives(fsys afero.Fs, args []string, ext string, excludes []string) (archives []string, scanned int, err error) {
	for _, arg := range args {
		if err := validatePath(arg); err != nil {
			return nil, 0, err
		}
	}

	flt, err := NewFilter([]string{"*" + escape(ext)}, NormalizePatterns(excludes))
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]struct{})

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}

		seen[path] = struct{}{}
		archives = append(archives, path)
	}

	for _, arg := range args {
		arg = filepath.Clean(arg)

		info, err := fsys.Stat(arg)
		if err != nil {
			return nil, 0, fmt.Errorf("stat %q: %w", arg, err)
		}

		if !info.IsDir() {
			// Explicit file: bypass filtering, add directly.
			scanned++

			add(arg)

			continue
		}

		found, total, err := searchDir(fsys, arg, flt)
		if err != nil {
			return nil, 0, err
		}

		scanned += total

		for _, path := range found {
			add(path)
		}
	}

	if len(archives) == 0 {
		return nil, scanned, fmt.Errorf("no %s archives found in: %v", ext, args)
	}

	return archives, scanned, nil
}

// searchDir returns the regular files directly below dir that pass the filter.
func searchDir(fsys afero.Fs, dir string, flt *Filter) (files []string, total int, err error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %q: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}

		total++

		path := filepath.Join(dir, entry.Name())

		// Use forward slashes for pattern matching consistency.
		if !flt.match(filepath.ToSlash(path)) {
			continue
		}

		files = append(files, path)
	}

	return files, total, nil
}

// Members lists every entry of folder as the archive member name it is packaged under:
// the folder's own name, then the slash separated relative path.
func Members(fsys afero.Fs, folder string) ([]string, error) {
	folder = filepath.Clean(folder)

	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", folder, err)
	}

	base := filepath.Base(abs)

	var members []string

	err = afero.Walk(fsys, folder, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}

		if rel == "." {
			members = append(members, base)

			return nil
		}

		members = append(members, base+"/"+filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", folder, err)
	}

	return members, nil
}

// escape quotes the glob metacharacters of a literal.
func escape(literal string) string {
	var b strings.Builder

	for _, r := range literal {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}

// validatePath rejects arguments no job can be derived from.
func validatePath(path string) error {
	if path == "" {
		return errors.New("empty path")
	}

	clean := filepath.Clean(path)
	if filepath.Dir(clean) == clean && filepath.IsAbs(clean) {
		return fmt.Errorf("the filesystem root cannot be processed: %q", path)
	}

	return nil
}

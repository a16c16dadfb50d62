// Package fileutil provides shared file operation helpers.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// ErrOccupied is returned when a path that should be reserved already exists.
var ErrOccupied = errors.New("path already exists")

// Artifact is a temporary file reserved at a fixed path for the lifetime of one job.
// Backends write into it and read from it; Remove deletes it again.
type Artifact struct {
	fs      afero.Fs
	Path    string
	removed bool
}

// Reserve claims path by creating it exclusively with mode 0600.
// An existing file is never truncated: the reservation fails with ErrOccupied instead.
func Reserve(fsys afero.Fs, path string) (*Artifact, error) {
	file, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %q", ErrOccupied, path)
		}

		return nil, fmt.Errorf("reserving %q: %w", path, err)
	}

	if err := file.Close(); err != nil {
		fsys.Remove(path) //nolint:errcheck // best-effort cleanup

		return nil, fmt.Errorf("closing %q: %w", path, err)
	}

	return &Artifact{fs: fsys, Path: path}, nil
}

// Remove deletes the artifact. It is safe to call more than once, and a file already
// gone counts as removed.
func (a *Artifact) Remove() error {
	if a == nil || a.removed {
		return nil
	}

	if err := a.fs.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %q: %w", a.Path, err)
	}

	a.removed = true

	return nil
}

// Exists reports whether anything, including a dangling symlink, is at path.
func Exists(fsys afero.Fs, path string) (bool, error) {
	var err error

	if lstater, ok := fsys.(afero.Lstater); ok {
		_, _, err = lstater.LstatIfPossible(path)
	} else {
		_, err = fsys.Stat(path)
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
}

// Size returns the size of a file, or the total size of the regular files below a directory.
func Size(fsys afero.Fs, path string) (int64, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat output %q: %w", path, err)
	}

	if !info.IsDir() {
		return info.Size(), nil
	}

	var total int64

	err = afero.Walk(fsys, path, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			total += info.Size()
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring %q: %w", path, err)
	}

	return total, nil
}

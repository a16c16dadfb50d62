package backend

import (
	"context"
	"path/filepath"

	"github.com/idelchi/foldenc/internal/process"
)

// Tar packages folders with tar(1).
type Tar struct {
	bin    string
	runner *process.Runner
}

// NewTar returns a Packager running bin.
func NewTar(bin string) *Tar {
	return &Tar{bin: bin, runner: process.NewRunner("tar")}
}

// Name identifies the packager in logs.
func (t *Tar) Name() string { return "tar" }

// Tools lists the executables the packager runs.
func (t *Tar) Tools() []Tool { return []Tool{{Role: "packager", Bin: t.bin}} }

// Pack runs `tar -cf <archive> [--exclude=...] -C <parent> <name>`.
func (t *Tar) Pack(ctx context.Context, folder, archive string, excludes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := []string{"-cf", archive}

	for _, pattern := range excludes {
		args = append(args, "--exclude="+pattern)
	}

	args = append(args, "-C", filepath.Dir(folder), filepath.Base(folder))

	_, err := t.runner.Run(process.Command{Name: t.bin, Args: args})

	return err
}

// Unpack runs `tar -xf <archive> -C <destParent>`.
func (t *Tar) Unpack(ctx context.Context, archive, destParent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := t.runner.Run(process.Command{Name: t.bin, Args: []string{"-xf", archive, "-C", destParent}})

	return err
}

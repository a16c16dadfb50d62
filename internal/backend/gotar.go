package backend

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/logging"
	"github.com/idelchi/foldenc/pkg/pathmatch"
)

var (
	// ErrUnsafePath is returned for archive members that would land outside the destination.
	ErrUnsafePath = errors.New("archive member escapes destination")
	// ErrMultipleRoots is returned for archives not rooted at a single folder.
	ErrMultipleRoots = errors.New("archive has more than one top-level entry")
	// ErrEmptyArchive is returned for archives without members.
	ErrEmptyArchive = errors.New("archive is empty")
	// ErrSymlinksUnsupported is returned when the filesystem cannot hold a symlink the archive needs.
	ErrSymlinksUnsupported = errors.New("filesystem does not support symlinks")
)

// GoTar packages folders with archive/tar on an afero filesystem.
// Its archives are plain tar files, readable by tar(1) and the other way round.
//
// Regular files, directories and symlinks are stored; symlinks are not followed.
// Other file types are skipped.
type GoTar struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewGoTar returns a Packager working on fs.
func NewGoTar(fs afero.Fs) *GoTar {
	return &GoTar{fs: fs, logger: logging.GetLogger("gotar")}
}

// Name identifies the packager in logs.
func (g *GoTar) Name() string { return "archive/tar" }

// Pack writes a tar archive of folder to archive, rooted at the folder's base name.
func (g *GoTar) Pack(ctx context.Context, folder, archive string, excludes []string) (err error) {
	matcher, err := pathmatch.NewMatcher(excludes)
	if err != nil {
		return fmt.Errorf("compiling exclude patterns: %w", err)
	}

	out, err := g.fs.OpenFile(archive, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing archive: %w", closeErr)
		}
	}()

	buffered := bufio.NewWriterSize(out, 64*1024)
	tw := tar.NewWriter(buffered)
	base := filepath.Base(folder)

	err = afero.Walk(g.fs, folder, func(current string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(folder, current)
		if err != nil {
			return fmt.Errorf("relative path of %q: %w", current, err)
		}

		name := path.Join(base, filepath.ToSlash(rel))

		if current != folder && matcher.MatchAny(name) {
			g.logger.Debug().Str("member", name).Msg("Excluded")

			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		return g.writeEntry(tw, current, name, info)
	})
	if err != nil {
		return fmt.Errorf("walking %q: %w", folder, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}

	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	return nil
}

func (g *GoTar) writeEntry(tw *tar.Writer, current, name string, info fs.FileInfo) error {
	var link string

	mode := info.Mode()

	switch {
	case mode.IsDir(), mode.IsRegular():
	case mode&fs.ModeSymlink != 0:
		reader, ok := g.fs.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("%w: reading %q", ErrSymlinksUnsupported, current)
		}

		target, err := reader.ReadlinkIfPossible(current)
		if err != nil {
			return fmt.Errorf("reading link %q: %w", current, err)
		}

		link = target
	default:
		g.logger.Warn().Str("member", name).Str("mode", mode.String()).Msg("Skipping special file")

		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %q: %w", current, err)
	}

	hdr.Name = name
	if mode.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %q: %w", name, err)
	}

	if !mode.IsRegular() {
		return nil
	}

	file, err := g.fs.Open(current)
	if err != nil {
		return fmt.Errorf("opening %q: %w", current, err)
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("archiving %q: %w", current, err)
	}

	return nil
}

// Unpack extracts archive below destParent.
//
// Every member must stay below destParent and share one top-level folder.
// Links are created after all regular files, so no member is ever written
// through a link from the same archive.
func (g *GoTar) Unpack(ctx context.Context, archive, destParent string) error {
	in, err := g.fs.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	tr := tar.NewReader(bufio.NewReaderSize(in, 64*1024))

	var (
		root             string
		dirs, hard, soft []*tar.Header
	)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		name, err := memberName(hdr.Name)
		if err != nil {
			return err
		}

		top, _, _ := strings.Cut(name, "/")

		switch {
		case root == "":
			root = top
		case top != root:
			return fmt.Errorf("%w: %q and %q", ErrMultipleRoots, root, top)
		}

		hdr.Name = name
		target := filepath.Join(destParent, filepath.FromSlash(name))

		switch mode := hdr.FileInfo().Mode(); {
		case hdr.Typeflag == tar.TypeLink:
			hard = append(hard, hdr)
		case mode&fs.ModeSymlink != 0:
			soft = append(soft, hdr)
		case mode.IsDir():
			if err := g.fs.MkdirAll(target, 0o700); err != nil {
				return fmt.Errorf("creating %q: %w", target, err)
			}

			dirs = append(dirs, hdr)
		case mode.IsRegular():
			if err := g.extractFile(target, hdr, tr); err != nil {
				return err
			}
		default:
			g.logger.Warn().Str("member", name).Str("type", string(hdr.Typeflag)).Msg("Skipping unsupported member")
		}
	}

	if root == "" {
		return ErrEmptyArchive
	}

	for _, hdr := range hard {
		if err := g.extractHardLink(destParent, root, hdr); err != nil {
			return err
		}
	}

	for _, hdr := range soft {
		if err := g.extractSymlink(destParent, root, hdr); err != nil {
			return err
		}
	}

	// Deepest first, so restoring a parent's mtime is not undone by its children.
	for i := len(dirs) - 1; i >= 0; i-- {
		target := filepath.Join(destParent, filepath.FromSlash(dirs[i].Name))

		if err := g.restoreMetadata(target, dirs[i]); err != nil {
			return err
		}
	}

	return nil
}

func (g *GoTar) extractFile(target string, hdr *tar.Header, r io.Reader) (err error) {
	if err := g.fs.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", filepath.Dir(target), err)
	}

	file, err := g.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %q: %w", target, err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %q: %w", target, closeErr)
		}

		if err == nil {
			err = g.restoreMetadata(target, hdr)
		}
	}()

	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("extracting %q: %w", hdr.Name, err)
	}

	return nil
}

// extractHardLink copies the content of an already extracted member;
// afero has no portable way to create a hard link.
func (g *GoTar) extractHardLink(destParent, root string, hdr *tar.Header) error {
	linked, err := memberName(hdr.Linkname)
	if err != nil {
		return err
	}

	if !below(root, linked) {
		return fmt.Errorf("%w: link %q -> %q leaves %q", ErrUnsafePath, hdr.Name, hdr.Linkname, root)
	}

	source := filepath.Join(destParent, filepath.FromSlash(linked))
	target := filepath.Join(destParent, filepath.FromSlash(hdr.Name))

	src, err := g.fs.Open(source)
	if err != nil {
		return fmt.Errorf("opening link target %q: %w", linked, err)
	}
	defer src.Close()

	return g.extractFile(target, hdr, src)
}

func (g *GoTar) extractSymlink(destParent, root string, hdr *tar.Header) error {
	resolved := path.Join(path.Dir(hdr.Name), hdr.Linkname)
	if path.IsAbs(hdr.Linkname) || !filepath.IsLocal(filepath.FromSlash(resolved)) || !below(root, resolved) {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, hdr.Name, hdr.Linkname)
	}

	linker, ok := g.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("%w: creating %q", ErrSymlinksUnsupported, hdr.Name)
	}

	target := filepath.Join(destParent, filepath.FromSlash(hdr.Name))

	if err := g.fs.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("creating %q: %w", filepath.Dir(target), err)
	}

	if err := linker.SymlinkIfPossible(filepath.FromSlash(hdr.Linkname), target); err != nil {
		return fmt.Errorf("creating link %q: %w", hdr.Name, err)
	}

	return nil
}

func (g *GoTar) restoreMetadata(target string, hdr *tar.Header) error {
	if err := g.fs.Chmod(target, hdr.FileInfo().Mode().Perm()); err != nil {
		return fmt.Errorf("setting mode of %q: %w", target, err)
	}

	if !hdr.ModTime.IsZero() {
		if err := g.fs.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
			return fmt.Errorf("setting times of %q: %w", target, err)
		}
	}

	return nil
}

// below reports whether the cleaned member name is root or lies under it.
func below(root, name string) bool {
	top, _, _ := strings.Cut(name, "/")

	return top == root
}

// memberName cleans an archive member name and rejects names leaving the destination.
func memberName(name string) (string, error) {
	clean := path.Clean(name)

	if name == "" || clean == "." || path.IsAbs(clean) || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return clean, nil
}

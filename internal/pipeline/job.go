package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/idelchi/foldenc/internal/errors"
)

// DefaultExtension is appended to encrypted folders.
const DefaultExtension = ".aes"

// artifactExtension is the suffix of the temporary archive.
const artifactExtension = ".tar"

// Mode says which way a job goes.
type Mode int

const (
	// Encrypt turns a folder into an encrypted file.
	Encrypt Mode = iota
	// Decrypt turns an encrypted file back into a folder.
	Decrypt
)

func (m Mode) String() string {
	if m == Decrypt {
		return "decrypt"
	}

	return "encrypt"
}

// Job is one encryption or decryption of one source.
// It is built by Orchestrator.NewJob and not changed afterwards.
type Job struct {
	Mode Mode
	// Source is the absolute, cleaned folder (Encrypt) or file (Decrypt).
	Source string
	// Output is the derived destination.
	Output string
	// Artifact is the temporary archive path, empty for integrated archivers.
	Artifact string

	password []byte
}

// EncryptedPath is where folder is encrypted to: <parent>/<name><ext>.
func EncryptedPath(folder, ext string) string {
	folder = filepath.Clean(folder)

	return filepath.Join(filepath.Dir(folder), filepath.Base(folder)+ext)
}

// DecryptedPath is where archive is decrypted to: <parent>/<name without ext>.
// If archive does not end in ext, its last extension is stripped instead.
func DecryptedPath(archive, ext string) (string, error) {
	archive = filepath.Clean(archive)
	base := filepath.Base(archive)

	var stem string

	switch {
	case ext != "" && strings.HasSuffix(base, ext):
		stem = strings.TrimSuffix(base, ext)
	case filepath.Ext(base) != "":
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if stem == "" || stem == "." || stem == ".." {
		return "", errors.Newf(errors.ErrInvalidSource, "cannot derive a folder name from %q", base)
	}

	return filepath.Join(filepath.Dir(archive), stem), nil
}

// artifactPath is the temporary archive next to the folder named by folderPath.
func artifactPath(folderPath string) string {
	return folderPath + artifactExtension
}

// newJob derives all paths of a job from its source.
func newJob(mode Mode, source, ext string, integrated bool, password []byte) (Job, error) {
	if source == "" {
		return Job{}, errors.New(errors.ErrInvalidSource, "no source given")
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return Job{}, errors.Wrapf(err, errors.ErrInvalidSource, "resolving %q", source)
	}

	job := Job{Mode: mode, Source: abs, password: password}

	var folder string

	switch mode {
	case Encrypt:
		job.Output = EncryptedPath(abs, ext)
		folder = abs
	case Decrypt:
		output, err := DecryptedPath(abs, ext)
		if err != nil {
			return Job{}, err
		}

		job.Output = output
		folder = output
	default:
		return Job{}, errors.Newf(errors.ErrInvalidInput, "unknown mode %d", mode)
	}

	if !integrated {
		job.Artifact = artifactPath(folder)
	}

	if job.Output == job.Source || job.Artifact == job.Source || job.Artifact == job.Output {
		return Job{}, errors.Newf(errors.ErrInvalidInput, "extension %q makes %q collide with its own output", ext, source)
	}

	return job, nil
}

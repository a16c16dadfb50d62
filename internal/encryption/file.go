package encryption

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Format is a password-based file format.
type Format interface {
	Name() string
	Encrypt(r io.Reader, w io.Writer, password []byte) error
	Decrypt(r io.Reader, w io.Writer, password []byte) error
}

// EncryptFile encrypts the file at in into out, creating or truncating out with mode 0600.
func EncryptFile(fs afero.Fs, format Format, in, out string, password []byte) error {
	return transformFile(fs, in, out, func(r io.Reader, w io.Writer) error {
		return format.Encrypt(r, w, password)
	})
}

// DecryptFile decrypts the file at in into out, creating or truncating out with mode 0600.
// On error out may hold partial plaintext; removing it is up to the caller.
func DecryptFile(fs afero.Fs, format Format, in, out string, password []byte) error {
	return transformFile(fs, in, out, func(r io.Reader, w io.Writer) error {
		return format.Decrypt(r, w, password)
	})
}

func transformFile(fs afero.Fs, in, out string, transform func(io.Reader, io.Writer) error) (err error) {
	src, err := fs.Open(in)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer src.Close()

	dst, err := fs.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}

	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", closeErr)
		}
	}()

	if err := transform(src, dst); err != nil {
		return err
	}

	if err := dst.Sync(); err != nil {
		return fmt.Errorf("syncing output: %w", err)
	}

	return nil
}

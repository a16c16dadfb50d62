package backend

import (
	"context"

	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/encryption"
)

// NativeCipher runs an in-process encryption.Format over an afero filesystem.
type NativeCipher struct {
	fs     afero.Fs
	format encryption.Format
}

// NewNativeCipher returns a Cipher writing format on fs.
func NewNativeCipher(fs afero.Fs, format encryption.Format) *NativeCipher {
	return &NativeCipher{fs: fs, format: format}
}

// Name identifies the cipher in logs.
func (n *NativeCipher) Name() string { return n.format.Name() }

// Encrypt writes the encrypted form of in to out.
func (n *NativeCipher) Encrypt(ctx context.Context, in, out string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return encryption.EncryptFile(n.fs, n.format, in, out, password)
}

// Decrypt writes the decrypted form of in to out.
func (n *NativeCipher) Decrypt(ctx context.Context, in, out string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return encryption.DecryptFile(n.fs, n.format, in, out, password)
}

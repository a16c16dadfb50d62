package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	opensslMagic      = "Salted__"
	opensslSaltSize   = 8
	opensslKeySize    = 32
	opensslIterations = 10000
)

// OpenSSL reads and writes the file format of
//
//	openssl enc -aes-256-cbc -salt -pbkdf2
//
// with the defaults of OpenSSL 1.1.1 and later: PBKDF2-HMAC-SHA256, 10000 iterations.
type OpenSSL struct{}

// Name identifies the format in logs.
func (OpenSSL) Name() string { return "openssl-aes-256-cbc" }

// Encrypt reads plaintext from r and writes the salted ciphertext to w.
func (OpenSSL) Encrypt(r io.Reader, w io.Writer, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	salt := make([]byte, opensslSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	if _, err := w.Write(append([]byte(opensslMagic), salt...)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	key, iv := deriveOpenSSLKey(password, salt)
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	return encryptCBC(block, iv, r, w)
}

// Decrypt reads a salted ciphertext from r and writes the plaintext to w.
// A wrong password surfaces as ErrBadDecrypt in roughly 255 out of 256 cases;
// in the rest the garbage happens to carry valid padding and is written out.
func (OpenSSL) Decrypt(r io.Reader, w io.Writer, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	header := make([]byte, len(opensslMagic)+opensslSaltSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: reading salt: %w", ErrInvalidHeader, err)
	}

	if !bytes.Equal(header[:len(opensslMagic)], []byte(opensslMagic)) {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidHeader, opensslMagic)
	}

	key, iv := deriveOpenSSLKey(password, header[len(opensslMagic):])
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	return decryptCBC(block, iv, r, w)
}

func deriveOpenSSLKey(password, salt []byte) ([]byte, []byte) {
	derived := pbkdf2.Key(password, salt, opensslIterations, opensslKeySize+aes.BlockSize, sha256.New)

	return derived[:opensslKeySize], derived[opensslKeySize:]
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

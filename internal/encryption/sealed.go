package encryption

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/tink-crypto/tink-go/v2/tink"
)

// Sealed is the authenticated file format of the native backend:
//
//	"FOLD" || version || argon2 time, memory, threads || salt[16] || chunks
//
// Every chunk is a big-endian uint32 length followed by its AES-SIV ciphertext.
// The associated data of a chunk covers the header, the chunk index and a final flag,
// so a wrong password, a modified byte, reordered chunks and a truncated file all
// fail with ErrAuthentication.
type Sealed struct {
	// Params are the key derivation costs for new files; zero means DefaultKDFParams.
	// Decryption always uses the parameters stored in the file.
	Params KDFParams
}

// Name identifies the format in logs.
func (Sealed) Name() string { return "sealed-aes-siv" }

// Encrypt reads plaintext from r and writes a sealed stream to w.
func (s Sealed) Encrypt(r io.Reader, w io.Writer, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	params := s.Params
	if params == (KDFParams{}) {
		params = DefaultKDFParams
	}

	if err := params.validate(); err != nil {
		return err
	}

	header := envelopeHeader{params: params, salt: make([]byte, envelopeSaltSize)}
	if _, err := io.ReadFull(rand.Reader, header.salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	raw := header.marshal()

	primitive, err := sealedPrimitive(password, header)
	if err != nil {
		return err
	}

	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	sw := newStreamingWriter(w, primitive, raw)

	buf := getBuffer()
	defer putBuffer(buf)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, err := sw.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing to stream: %w", err)
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	}

	return sw.Close()
}

// Decrypt reads a sealed stream from r and writes the plaintext to w.
// Plaintext is written chunk by chunk as each chunk authenticates, so on error w may
// hold a verified prefix that the caller must discard.
func (Sealed) Decrypt(r io.Reader, w io.Writer, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}

	header, raw, err := readEnvelopeHeader(r)
	if err != nil {
		return err
	}

	primitive, err := sealedPrimitive(password, header)
	if err != nil {
		return err
	}

	return decryptChunks(r, w, primitive, raw)
}

func sealedPrimitive(password []byte, header envelopeHeader) (tink.DeterministicAEAD, error) {
	key, err := deriveSealedKey(password, header)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	return newDeterministicAEAD(key)
}

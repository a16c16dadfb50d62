package encryption

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeMagic    = "FOLD"
	envelopeVersion  = byte(1)
	envelopeSaltSize = 16

	// magic, version, time, memory, threads, salt.
	envelopeHeaderSize = len(envelopeMagic) + 1 + 4 + 4 + 1 + envelopeSaltSize

	masterKeySize = 32
	sivKeySize    = 64
)

// KDFParams are the Argon2id cost parameters stored in every sealed file.
type KDFParams struct {
	// Time is the number of passes over the memory.
	Time uint32
	// Memory is the memory cost in KiB.
	Memory uint32
	// Threads is the degree of parallelism.
	Threads uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
//
//nolint:gochecknoglobals
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

const (
	maxKDFTime    = 16
	maxKDFMemory  = 2 * 1024 * 1024
	maxKDFThreads = 64
)

// validate bounds the parameters read from an untrusted header,
// so a crafted file cannot make key derivation run for hours.
func (p KDFParams) validate() error {
	switch {
	case p.Time == 0 || p.Time > maxKDFTime:
		return fmt.Errorf("%w: argon2 time %d out of range", ErrInvalidHeader, p.Time)
	case p.Threads == 0 || p.Threads > maxKDFThreads:
		return fmt.Errorf("%w: argon2 threads %d out of range", ErrInvalidHeader, p.Threads)
	case p.Memory < 8*uint32(p.Threads) || p.Memory > maxKDFMemory:
		return fmt.Errorf("%w: argon2 memory %d KiB out of range", ErrInvalidHeader, p.Memory)
	}

	return nil
}

type envelopeHeader struct {
	params KDFParams
	salt   []byte
}

func (h envelopeHeader) marshal() []byte {
	header := make([]byte, 0, envelopeHeaderSize)
	header = append(header, envelopeMagic...)
	header = append(header, envelopeVersion)
	header = binary.BigEndian.AppendUint32(header, h.params.Time)
	header = binary.BigEndian.AppendUint32(header, h.params.Memory)
	header = append(header, h.params.Threads)

	return append(header, h.salt...)
}

func readEnvelopeHeader(r io.Reader) (envelopeHeader, []byte, error) {
	raw := make([]byte, envelopeHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return envelopeHeader{}, nil, fmt.Errorf("%w: reading header: %w", ErrInvalidHeader, err)
	}

	if !bytes.Equal(raw[:len(envelopeMagic)], []byte(envelopeMagic)) {
		return envelopeHeader{}, nil, fmt.Errorf("%w: invalid magic", ErrInvalidHeader)
	}

	rest := raw[len(envelopeMagic):]

	if version := rest[0]; version != envelopeVersion {
		return envelopeHeader{}, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, version)
	}

	header := envelopeHeader{
		params: KDFParams{
			Time:    binary.BigEndian.Uint32(rest[1:5]),
			Memory:  binary.BigEndian.Uint32(rest[5:9]),
			Threads: rest[9],
		},
		salt: rest[10:],
	}

	if err := header.params.validate(); err != nil {
		return envelopeHeader{}, nil, err
	}

	return header, raw, nil
}

// deriveSealedKey stretches the password with Argon2id and expands the result
// to the 64 bytes AES-SIV needs.
func deriveSealedKey(password []byte, header envelopeHeader) ([]byte, error) {
	p := header.params

	master := argon2.IDKey(password, header.salt, p.Time, p.Memory, p.Threads, masterKeySize)
	defer wipe(master)

	hkdfReader := hkdf.New(sha256.New, master, header.salt, []byte("foldenc/sealed/aes-siv"))
	derived := make([]byte, sivKeySize)

	if _, err := io.ReadFull(hkdfReader, derived); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return derived, nil
}

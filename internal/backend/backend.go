// Package backend holds the packaging and cipher strategies a job can run on,
// and picks one for the host platform.
//
// A Strategy is either a Packager plus a Cipher, run as two stages around a temporary
// archive, or a single Archiver that packages and encrypts in one step.
package backend

import (
	"context"
	"runtime"
	"strings"

	"github.com/spf13/afero"

	"github.com/idelchi/foldenc/internal/encryption"
	"github.com/idelchi/foldenc/internal/errors"
)

// Name identifies a strategy.
type Name string

const (
	// Auto picks the strategy native to the host platform.
	Auto Name = "auto"
	// TarOpenSSL runs tar(1) and openssl(1).
	TarOpenSSL Name = "tar+openssl"
	// SevenZip runs 7z(1) as an integrated archiver.
	SevenZip Name = "7z"
	// Native packages with archive/tar and seals with AES-SIV, without external tools.
	Native Name = "native"
	// NativeOpenSSL packages with archive/tar and writes the openssl(1) file format.
	NativeOpenSSL Name = "native-openssl"
)

// Names lists every accepted backend name.
func Names() []Name {
	return []Name{Auto, TarOpenSSL, SevenZip, Native, NativeOpenSSL}
}

// Packager turns a folder into a single archive file and back.
type Packager interface {
	Name() string
	// Pack writes an archive of folder to archive, rooted at the folder's own name.
	// Members matching one of excludes are left out.
	Pack(ctx context.Context, folder, archive string, excludes []string) error
	// Unpack extracts archive below destParent.
	Unpack(ctx context.Context, archive, destParent string) error
}

// Cipher turns a file into its password-encrypted form and back.
type Cipher interface {
	Name() string
	Encrypt(ctx context.Context, in, out string, password []byte) error
	Decrypt(ctx context.Context, in, out string, password []byte) error
}

// Archiver packages and encrypts in one step.
type Archiver interface {
	Name() string
	// Create writes an encrypted archive of folder to out.
	Create(ctx context.Context, folder, out string, password []byte, excludes []string) error
	// Extract decrypts and extracts archive below destParent.
	Extract(ctx context.Context, archive, destParent string, password []byte) error
}

// WrongPasswordSignaturer is implemented by backends whose only way of reporting
// a wrong password is a message in their diagnostic output.
type WrongPasswordSignaturer interface {
	WrongPasswordSignatures() []string
}

// Strategy is the concrete combination of backends a job runs on.
type Strategy struct {
	Name Name

	// Packager and Cipher are set together, or Archiver alone.
	Packager Packager
	Cipher   Cipher
	Archiver Archiver

	// Fs is the filesystem the strategy reads and writes.
	// Strategies running external tools always use the OS filesystem.
	Fs afero.Fs
}

// Integrated reports whether the strategy needs no temporary archive.
func (s *Strategy) Integrated() bool {
	return s.Archiver != nil
}

// WrongPasswordSignatures collects the diagnostic fragments the strategy's backends
// print when given a wrong password.
func (s *Strategy) WrongPasswordSignatures() []string {
	var signatures []string

	for _, b := range []any{s.Packager, s.Cipher, s.Archiver} {
		if sig, ok := b.(WrongPasswordSignaturer); ok {
			signatures = append(signatures, sig.WrongPasswordSignatures()...)
		}
	}

	return signatures
}

// Options configures Resolve.
type Options struct {
	// Backend is the requested strategy, Auto if empty.
	Backend Name
	// Platform is the GOOS value Auto selects for, runtime.GOOS if empty.
	Platform string
	// Fs is used by the native strategies, the OS filesystem if nil.
	Fs afero.Fs

	// Executables of the external tools, looked up in PATH when bare names.
	TarBin      string
	OpenSSLBin  string
	SevenZipBin string

	// KDF are the key derivation costs of the native sealed format, defaults if zero.
	KDF encryption.KDFParams
}

// unixLike are the platforms shipping tar(1) and openssl(1).
//
//nolint:gochecknoglobals
var unixLike = map[string]bool{
	"linux":     true,
	"darwin":    true,
	"freebsd":   true,
	"openbsd":   true,
	"netbsd":    true,
	"dragonfly": true,
	"solaris":   true,
	"illumos":   true,
	"aix":       true,
}

// Select maps a GOOS value to the strategy native to it.
func Select(goos string) (Name, error) {
	switch {
	case unixLike[goos]:
		return TarOpenSSL, nil
	case goos == "windows":
		return SevenZip, nil
	default:
		return "", errors.New(errors.ErrUnsupportedPlatform, goos)
	}
}

// Resolve builds the strategy for opts. It does not touch the filesystem,
// so an unsupported platform is reported before anything is created.
func Resolve(opts Options) (*Strategy, error) {
	name := Name(strings.ToLower(string(opts.Backend)))
	if name == "" {
		name = Auto
	}

	if name == Auto {
		platform := opts.Platform
		if platform == "" {
			platform = runtime.GOOS
		}

		selected, err := Select(platform)
		if err != nil {
			return nil, err
		}

		name = selected
	}

	nativeFs := opts.Fs
	if nativeFs == nil {
		nativeFs = afero.NewOsFs()
	}

	switch name {
	case TarOpenSSL:
		return &Strategy{
			Name:     name,
			Packager: NewTar(or(opts.TarBin, "tar")),
			Cipher:   NewOpenSSL(or(opts.OpenSSLBin, "openssl")),
			Fs:       afero.NewOsFs(),
		}, nil
	case SevenZip:
		return &Strategy{
			Name:     name,
			Archiver: NewSevenZip(or(opts.SevenZipBin, "7z")),
			Fs:       afero.NewOsFs(),
		}, nil
	case Native:
		return &Strategy{
			Name:     name,
			Packager: NewGoTar(nativeFs),
			Cipher:   NewNativeCipher(nativeFs, encryption.Sealed{Params: opts.KDF}),
			Fs:       nativeFs,
		}, nil
	case NativeOpenSSL:
		return &Strategy{
			Name:     name,
			Packager: NewGoTar(nativeFs),
			Cipher:   NewNativeCipher(nativeFs, encryption.OpenSSL{}),
			Fs:       nativeFs,
		}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown backend %q (valid: %s)", opts.Backend, joinNames(Names()))
	}
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func joinNames(names []Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}

	return strings.Join(parts, ", ")
}

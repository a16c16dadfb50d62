package backend

import (
	"bytes"
	"context"
	"errors"

	"github.com/idelchi/foldenc/internal/encryption"
	"github.com/idelchi/foldenc/internal/process"
)

// ErrMultilinePassword is returned for passwords openssl(1) would silently cut at the first line break.
var ErrMultilinePassword = errors.New("password must not contain line breaks")

// OpenSSL encrypts files with `openssl enc -aes-256-cbc -salt -pbkdf2`.
// The password is written to the process standard input, never passed as an argument.
type OpenSSL struct {
	bin    string
	runner *process.Runner
}

// NewOpenSSL returns a Cipher running bin.
func NewOpenSSL(bin string) *OpenSSL {
	return &OpenSSL{bin: bin, runner: process.NewRunner("openssl")}
}

// Name identifies the cipher in logs.
func (o *OpenSSL) Name() string { return "openssl" }

// Tools lists the executables the cipher runs.
func (o *OpenSSL) Tools() []Tool { return []Tool{{Role: "cipher", Bin: o.bin}} }

// WrongPasswordSignatures is what openssl prints when the final padding does not check out.
func (o *OpenSSL) WrongPasswordSignatures() []string { return []string{"bad decrypt"} }

// Encrypt writes the encrypted form of in to out.
func (o *OpenSSL) Encrypt(ctx context.Context, in, out string, password []byte) error {
	return o.run(ctx, false, in, out, password)
}

// Decrypt writes the decrypted form of in to out.
func (o *OpenSSL) Decrypt(ctx context.Context, in, out string, password []byte) error {
	return o.run(ctx, true, in, out, password)
}

func (o *OpenSSL) run(ctx context.Context, decrypt bool, in, out string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(password) == 0 {
		return encryption.ErrEmptyPassword
	}

	if bytes.ContainsAny(password, "\r\n") {
		return ErrMultilinePassword
	}

	args := []string{"enc", "-aes-256-cbc"}
	if decrypt {
		args = append(args, "-d")
	}

	args = append(args, "-salt", "-pbkdf2", "-pass", "stdin", "-in", in, "-out", out)

	_, err := o.runner.Run(process.Command{Name: o.bin, Args: args, Secret: password})

	return err
}

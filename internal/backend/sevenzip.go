package backend

import (
	"context"
	"path/filepath"

	"github.com/idelchi/foldenc/internal/process"
)

// SevenZipArchiver packages and encrypts with 7z(1), header encryption on.
//
// 7z only takes the password as a -p argument. It is therefore visible in the process
// table while 7z runs; it is kept out of the logs.
type SevenZipArchiver struct {
	bin    string
	runner *process.Runner
}

// NewSevenZip returns an Archiver running bin.
func NewSevenZip(bin string) *SevenZipArchiver {
	return &SevenZipArchiver{bin: bin, runner: process.NewRunner("7z")}
}

// Name identifies the archiver in logs.
func (s *SevenZipArchiver) Name() string { return "7z" }

// Tools lists the executables the archiver runs.
func (s *SevenZipArchiver) Tools() []Tool { return []Tool{{Role: "archiver", Bin: s.bin}} }

// WrongPasswordSignatures is what 7z prints for a wrong password.
func (s *SevenZipArchiver) WrongPasswordSignatures() []string { return []string{"Wrong password"} }

// Create runs `7z a -t7z -mhe=on [-p<password>] [-xr!<pattern>...] <out> <folder>`.
// An empty password creates an unencrypted archive.
func (s *SevenZipArchiver) Create(ctx context.Context, folder, out string, password []byte, excludes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := []string{"a", "-t7z", "-mhe=on"}
	args, redact := withPassword(args, password)

	for _, pattern := range excludes {
		args = append(args, "-xr!"+filepath.FromSlash(pattern))
	}

	args = append(args, out, folder)

	_, err := s.runner.Run(process.Command{Name: s.bin, Args: args, Redact: redact})

	return err
}

// Extract runs `7z x [-p<password>] <archive> -o<destParent>`.
// Standard input stays closed, so 7z fails instead of prompting for a missing password.
func (s *SevenZipArchiver) Extract(ctx context.Context, archive, destParent string, password []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args, redact := withPassword([]string{"x"}, password)
	args = append(args, archive, "-o"+destParent)

	_, err := s.runner.Run(process.Command{Name: s.bin, Args: args, Redact: redact})

	return err
}

func withPassword(args []string, password []byte) ([]string, []int) {
	if len(password) == 0 {
		return args, nil
	}

	return append(args, "-p"+string(password)), []int{len(args)}
}

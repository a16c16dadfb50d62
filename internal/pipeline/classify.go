package pipeline

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/idelchi/foldenc/internal/encryption"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/process"
)

// Messages shown for failed stages.
const (
	msgPackFailed      = "Failed to package folder"
	msgEncryptFailed   = "Failed to encrypt file"
	msgDecryptFailed   = "Failed to decrypt file"
	msgExtractFailed   = "Failed to extract file"
	msgWrongPassword   = "Decryption failed: Incorrect password"
	msgToolUnavailable = "backend executable not found"
	msgCancelled       = "cancelled before the backend was started"
)

// classify turns a backend error from stage into a JobError.
// signatures are the diagnostic fragments that mean "wrong password" for the backend in use.
func classify(stage Stage, err error, signatures []string) *errors.JobError {
	if err == nil {
		return nil
	}

	if jobErr, ok := errors.As(err); ok {
		return jobErr.WithStage(string(stage))
	}

	diag := diagnostic(err)

	var (
		code    errors.ErrorCode
		message string
	)

	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		code, message = errors.ErrCancelled, msgCancelled
	case stage == StagePacking:
		code, message = errors.ErrPackagingFailed, msgPackFailed
	case stage == StageUnpacking:
		code, message = errors.ErrPackagingFailed, msgExtractFailed
	case stderrors.Is(err, process.ErrNotFound):
		code, message = errors.ErrCipherToolUnavailable, msgToolUnavailable
	case stage == StageEnciphering:
		code, message = errors.ErrEncryptionFailed, msgEncryptFailed
	case stage == StageDeciphering && isWrongPassword(err, diag, signatures):
		code, message = errors.ErrWrongPassword, msgWrongPassword
	case stage == StageDeciphering:
		code, message = errors.ErrDecryptionFailed, msgDecryptFailed
	default:
		code, message = errors.ErrIOFailure, "unexpected failure"
	}

	return errors.Wrap(err, code, message).WithStage(string(stage)).WithDiagnostic(diag)
}

// isWrongPassword prefers the structured signal of the native ciphers and falls back
// to matching the diagnostic of external tools, case-insensitively.
func isWrongPassword(err error, diag string, signatures []string) bool {
	if stderrors.Is(err, encryption.ErrAuthentication) || stderrors.Is(err, encryption.ErrBadDecrypt) {
		return true
	}

	lower := strings.ToLower(diag)

	for _, sig := range signatures {
		if sig != "" && strings.Contains(lower, strings.ToLower(sig)) {
			return true
		}
	}

	return false
}

// diagnostic is everything an external tool printed; some report errors on stdout.
func diagnostic(err error) string {
	var exitErr *process.ExitError
	if !stderrors.As(err, &exitErr) {
		return ""
	}

	parts := make([]string, 0, 2)

	for _, s := range []string{exitErr.Output.Stderr, exitErr.Output.Stdout} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, "\n")
}

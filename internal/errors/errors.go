// Package errors defines the classified failures a folder encryption job can end in.
//
// Every backend failure is converted into a JobError at the point of detection.
// The ErrorCode is stable and meant for programmatic checks, the Diagnostic carries
// the raw backend output for operators, and UserMessage renders the one line a user sees.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of job failure.
type ErrorCode string

const (
	ErrUnknown ErrorCode = "UNKNOWN"

	// Source and environment.
	ErrInvalidSource       ErrorCode = "INVALID_SOURCE"
	ErrOutputExists        ErrorCode = "OUTPUT_EXISTS"
	ErrUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCancelled           ErrorCode = "CANCELLED"

	// Backends.
	ErrPackagingFailed       ErrorCode = "PACKAGING_FAILED"
	ErrCipherToolUnavailable ErrorCode = "CIPHER_TOOL_UNAVAILABLE"
	ErrEncryptionFailed      ErrorCode = "ENCRYPTION_FAILED"
	ErrDecryptionFailed      ErrorCode = "DECRYPTION_FAILED"
	ErrWrongPassword         ErrorCode = "WRONG_PASSWORD"

	// Filesystem.
	ErrCleanupFailed ErrorCode = "CLEANUP_FAILED"
	ErrIOFailure     ErrorCode = "IO_FAILURE"
)

// JobError is a classified failure, optionally annotated with the stage it happened in
// and the diagnostic output of the backend that produced it.
type JobError struct {
	Code       ErrorCode
	Stage      string
	Message    string
	Diagnostic string
	Wrapped    error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	var b strings.Builder

	b.WriteString("[" + string(e.Code) + "]")

	if e.Stage != "" {
		b.WriteString(" " + e.Stage + ":")
	}

	b.WriteString(" " + e.Message)

	if e.Wrapped != nil {
		b.WriteString(": " + e.Wrapped.Error())
	}

	if diag := strings.TrimSpace(e.Diagnostic); diag != "" {
		b.WriteString(" (" + diag + ")")
	}

	return b.String()
}

// Unwrap implements the errors.Unwrap interface.
func (e *JobError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a JobError with the same code.
func (e *JobError) Is(target error) bool {
	var other *JobError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}

	return false
}

// New creates a JobError with the given code and message.
func New(code ErrorCode, message string) *JobError {
	return &JobError{Code: code, Message: message}
}

// Newf creates a JobError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *JobError {
	return &JobError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err into a JobError. It returns nil if err is nil.
func Wrap(err error, code ErrorCode, message string) *JobError {
	if err == nil {
		return nil
	}

	return &JobError{Code: code, Message: message, Wrapped: err}
}

// Wrapf wraps err into a JobError with a formatted message. It returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...any) *JobError {
	if err == nil {
		return nil
	}

	return &JobError{Code: code, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// WithStage annotates the error with the stage it happened in.
func (e *JobError) WithStage(stage string) *JobError {
	e.Stage = stage

	return e
}

// WithDiagnostic attaches raw backend output to the error.
func (e *JobError) WithDiagnostic(diagnostic string) *JobError {
	e.Diagnostic = diagnostic

	return e
}

// Reclassify returns a copy of the error with a different code, keeping everything else.
func (e *JobError) Reclassify(code ErrorCode, message string) *JobError {
	c := *e
	c.Code = code
	c.Message = message

	return &c
}

// As returns the first JobError in err's chain.
func As(err error) (*JobError, bool) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr, true
	}

	return nil, false
}

// IsErrorCode checks if an error has a specific error code.
func IsErrorCode(err error, code ErrorCode) bool {
	if jobErr, ok := As(err); ok {
		return jobErr.Code == code
	}

	return false
}

// GetErrorCode returns the error code of err, or ErrUnknown if it is not a JobError.
func GetErrorCode(err error) ErrorCode {
	if jobErr, ok := As(err); ok {
		return jobErr.Code
	}

	return ErrUnknown
}

// GetDiagnostic returns the backend diagnostic carried by err, if any.
func GetDiagnostic(err error) string {
	if jobErr, ok := As(err); ok {
		return jobErr.Diagnostic
	}

	return ""
}

// UserMessage renders err as the single line shown to a user.
// A wrong password is always spelled out so it is not mistaken for a corrupt archive.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	jobErr, ok := As(err)
	if !ok {
		return err.Error()
	}

	diag := firstLine(jobErr.Diagnostic)

	switch jobErr.Code {
	case ErrWrongPassword:
		return "Decryption failed: Incorrect password (retry with a different password)"
	case ErrUnsupportedPlatform:
		return "Unsupported operating system: " + jobErr.Message
	case ErrCipherToolUnavailable:
		return "Encryption tool unavailable: " + jobErr.Message
	case ErrPackagingFailed, ErrEncryptionFailed, ErrDecryptionFailed:
		if diag != "" {
			return jobErr.Message + ": " + diag
		}
	}

	if jobErr.Wrapped != nil {
		return jobErr.Message + ": " + jobErr.Wrapped.Error()
	}

	return jobErr.Message
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}

	return s
}

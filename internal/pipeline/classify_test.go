package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/foldenc/internal/encryption"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/process"
)

func exitErr(stdout, stderr string) error {
	return &process.ExitError{
		Name:   "tool",
		Output: process.Output{Stdout: stdout, Stderr: stderr, ExitCode: 1},
		Err:    stderrors.New("exit status 1"),
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	opensslSigs := []string{"bad decrypt"}
	sevenZipSigs := []string{"Wrong password"}

	tests := []struct {
		name       string
		stage      Stage
		err        error
		signatures []string
		want       errors.ErrorCode
	}{
		{
			name:       "openssl bad decrypt",
			stage:      StageDeciphering,
			err:        exitErr("", "bad decrypt\n140:error:digital envelope routines:EVP_DecryptFinal_ex"),
			signatures: opensslSigs,
			want:       errors.ErrWrongPassword,
		},
		{
			name:       "signature is case-insensitive",
			stage:      StageDeciphering,
			err:        exitErr("", "BAD DECRYPT"),
			signatures: opensslSigs,
			want:       errors.ErrWrongPassword,
		},
		{
			name:       "7z reports on stdout",
			stage:      StageDeciphering,
			err:        exitErr("ERROR: project.aes\nCan not open encrypted archive. Wrong password?", ""),
			signatures: sevenZipSigs,
			want:       errors.ErrWrongPassword,
		},
		{
			name:       "unrelated openssl failure",
			stage:      StageDeciphering,
			err:        exitErr("", "error reading input file"),
			signatures: opensslSigs,
			want:       errors.ErrDecryptionFailed,
		},
		{
			name:       "signature of another backend",
			stage:      StageDeciphering,
			err:        exitErr("", "Wrong password"),
			signatures: opensslSigs,
			want:       errors.ErrDecryptionFailed,
		},
		{
			name:  "sealed authentication failure",
			stage: StageDeciphering,
			err:   fmt.Errorf("%w: chunk 0", encryption.ErrAuthentication),
			want:  errors.ErrWrongPassword,
		},
		{
			name:  "cbc padding failure",
			stage: StageDeciphering,
			err:   fmt.Errorf("%w: %w", encryption.ErrBadDecrypt, encryption.ErrInvalidPadding),
			want:  errors.ErrWrongPassword,
		},
		{
			name:  "corrupt native file",
			stage: StageDeciphering,
			err:   encryption.ErrInvalidHeader,
			want:  errors.ErrDecryptionFailed,
		},
		{
			name:       "signature text on encrypt is not a wrong password",
			stage:      StageEnciphering,
			err:        exitErr("", "bad decrypt"),
			signatures: opensslSigs,
			want:       errors.ErrEncryptionFailed,
		},
		{
			name:  "missing tool",
			stage: StageEnciphering,
			err:   fmt.Errorf("%w: openssl", process.ErrNotFound),
			want:  errors.ErrCipherToolUnavailable,
		},
		{
			name:  "missing 7z",
			stage: StageDeciphering,
			err:   fmt.Errorf("%w: 7z", process.ErrNotFound),
			want:  errors.ErrCipherToolUnavailable,
		},
		{
			name:  "missing tar on packing",
			stage: StagePacking,
			err:   fmt.Errorf("%w: tar", process.ErrNotFound),
			want:  errors.ErrPackagingFailed,
		},
		{
			name:  "missing tar on unpacking",
			stage: StageUnpacking,
			err:   fmt.Errorf("%w: tar", process.ErrNotFound),
			want:  errors.ErrPackagingFailed,
		},
		{
			name:  "packing",
			stage: StagePacking,
			err:   exitErr("", "tar: project: Cannot stat"),
			want:  errors.ErrPackagingFailed,
		},
		{
			name:  "unpacking",
			stage: StageUnpacking,
			err:   exitErr("", "tar: This does not look like a tar archive"),
			want:  errors.ErrPackagingFailed,
		},
		{
			name:  "cancelled",
			stage: StagePacking,
			err:   context.Canceled,
			want:  errors.ErrCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classify(tt.stage, tt.err, tt.signatures)
			require.NotNil(t, got)

			assert.Equal(t, tt.want, got.Code)
			assert.Equal(t, string(tt.stage), got.Stage)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_KeepsDiagnostic(t *testing.T) {
	t.Parallel()

	got := classify(StageDeciphering, exitErr("", "error reading input file\n"), []string{"bad decrypt"})

	assert.Equal(t, "error reading input file", got.Diagnostic)
	assert.Equal(t, "Failed to decrypt file: error reading input file", errors.UserMessage(got))
	assert.Nil(t, classify(StagePacking, nil, nil))
}

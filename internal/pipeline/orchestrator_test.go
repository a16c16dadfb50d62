package pipeline_test

import (
	"archive/tar"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/foldenc/internal/backend"
	"github.com/idelchi/foldenc/internal/encryption"
	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/pipeline"
)

var fastKDF = encryption.KDFParams{Time: 1, Memory: 64, Threads: 1}

// scenario lays out /work/project/a.txt = "hello" on a fresh in-memory filesystem.
func scenario(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/project/a.txt", []byte("hello"), 0o644))

	return fs
}

func orchestrator(t *testing.T, fs afero.Fs, name backend.Name, opts pipeline.Options) *pipeline.Orchestrator {
	t.Helper()

	strategy, err := backend.Resolve(backend.Options{Backend: name, Fs: fs, KDF: fastKDF})
	require.NoError(t, err)

	return pipeline.New(strategy, opts)
}

func assertAbsent(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()

	for _, path := range paths {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.False(t, exists, "%s should not exist", path)
	}
}

// assertNoStaging fails if a job left its hidden staging folder in dir.
func assertNoStaging(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()

	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)

	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "."), "%s left behind in %s", entry.Name(), dir)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []backend.Name{backend.Native, backend.NativeOpenSSL} {
		t.Run(string(name), func(t *testing.T) {
			t.Parallel()

			fs := scenario(t)
			orch := orchestrator(t, fs, name, pipeline.Options{})
			ctx := context.Background()

			enc := orch.Encrypt(ctx, "/work/project", []byte("s3cret"))
			require.NoError(t, enc.Err)

			assert.Equal(t, "Folder has been encrypted to: /work/project.aes", enc.Message)
			assert.Positive(t, enc.OutputSize)
			assert.NoError(t, enc.CleanupErr)
			assertAbsent(t, fs, "/work/project.tar")

			require.NoError(t, fs.RemoveAll("/work/project"))

			dec := orch.Decrypt(ctx, "/work/project.aes", []byte("s3cret"))
			require.NoError(t, dec.Err)

			assert.Equal(t, "File has been decrypted to: /work/project", dec.Message)
			assert.Equal(t, int64(5), dec.OutputSize)
			assertAbsent(t, fs, "/work/project.tar")

			got, err := afero.ReadFile(fs, "/work/project/a.txt")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(got))
			assertNoStaging(t, fs, "/work")
		})
	}
}

func TestWrongPassword(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	orch := orchestrator(t, fs, backend.Native, pipeline.Options{})
	ctx := context.Background()

	require.NoError(t, orch.Encrypt(ctx, "/work/project", []byte("s3cret")).Err)
	require.NoError(t, fs.RemoveAll("/work/project"))

	result := orch.Decrypt(ctx, "/work/project.aes", []byte("wrong"))

	require.Error(t, result.Err)
	assert.False(t, result.OK())
	assert.Equal(t, errors.ErrWrongPassword, errors.GetErrorCode(result.Err))
	assert.Equal(t, "Decryption failed: Incorrect password (retry with a different password)", errors.UserMessage(result.Err))

	jobErr, ok := errors.As(result.Err)
	require.True(t, ok)
	assert.Equal(t, string(pipeline.StageDeciphering), jobErr.Stage)

	assertAbsent(t, fs, "/work/project", "/work/project.tar")

	exists, err := afero.Exists(fs, "/work/project.aes")
	require.NoError(t, err)
	assert.True(t, exists, "the encrypted file is kept")
}

func TestWrongPassword_UnauthenticatedFormat(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	orch := orchestrator(t, fs, backend.NativeOpenSSL, pipeline.Options{})
	ctx := context.Background()

	require.NoError(t, orch.Encrypt(ctx, "/work/project", []byte("s3cret")).Err)
	require.NoError(t, fs.RemoveAll("/work/project"))

	result := orch.Decrypt(ctx, "/work/project.aes", []byte("wrong"))

	// CBC padding lets about one wrong password in 256 through to the unpacker.
	code := errors.GetErrorCode(result.Err)
	assert.Contains(t, []errors.ErrorCode{errors.ErrWrongPassword, errors.ErrPackagingFailed}, code)
	assertAbsent(t, fs, "/work/project", "/work/project.tar")
}

func TestInvalidSource(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	require.NoError(t, afero.WriteFile(fs, "/work/file.txt", []byte("x"), 0o644))
	require.NoError(t, fs.MkdirAll("/work/dir.aes", 0o755))

	orch := orchestrator(t, fs, backend.Native, pipeline.Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		run    func() pipeline.Result
		absent []string
	}{
		{
			name:   "missing folder",
			run:    func() pipeline.Result { return orch.Encrypt(ctx, "/work/missing", []byte("s3cret")) },
			absent: []string{"/work/missing.aes", "/work/missing.tar"},
		},
		{
			name:   "encrypting a file",
			run:    func() pipeline.Result { return orch.Encrypt(ctx, "/work/file.txt", []byte("s3cret")) },
			absent: []string{"/work/file.txt.aes", "/work/file.txt.tar"},
		},
		{
			name:   "decrypting a folder",
			run:    func() pipeline.Result { return orch.Decrypt(ctx, "/work/dir.aes", []byte("s3cret")) },
			absent: []string{"/work/dir", "/work/dir.tar"},
		},
		{
			name:   "missing archive",
			run:    func() pipeline.Result { return orch.Decrypt(ctx, "/work/nothing.aes", []byte("s3cret")) },
			absent: []string{"/work/nothing", "/work/nothing.tar"},
		},
		{
			name: "archive without extension",
			run:  func() pipeline.Result { return orch.Decrypt(ctx, "/work/project", []byte("s3cret")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.run()

			assert.Equal(t, errors.ErrInvalidSource, errors.GetErrorCode(result.Err), "%v", result.Err)
			assertAbsent(t, fs, tt.absent...)
		})
	}
}

func TestOutputExists(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	require.NoError(t, afero.WriteFile(fs, "/work/project.aes", []byte("precious"), 0o644))

	ctx := context.Background()

	result := orchestrator(t, fs, backend.Native, pipeline.Options{}).Encrypt(ctx, "/work/project", []byte("s3cret"))
	assert.Equal(t, errors.ErrOutputExists, errors.GetErrorCode(result.Err))

	got, err := afero.ReadFile(fs, "/work/project.aes")
	require.NoError(t, err)
	assert.Equal(t, "precious", string(got))
	assertAbsent(t, fs, "/work/project.tar")

	result = orchestrator(t, fs, backend.Native, pipeline.Options{Force: true}).Encrypt(ctx, "/work/project", []byte("s3cret"))
	require.NoError(t, result.Err)

	got, err = afero.ReadFile(fs, "/work/project.aes")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(got, []byte("FOLD")))
}

func TestArtifactPathOccupied(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	require.NoError(t, afero.WriteFile(fs, "/work/project.tar", []byte("someone else's"), 0o644))

	result := orchestrator(t, fs, backend.Native, pipeline.Options{}).Encrypt(context.Background(), "/work/project", []byte("s3cret"))

	assert.Equal(t, errors.ErrIOFailure, errors.GetErrorCode(result.Err))
	assertAbsent(t, fs, "/work/project.aes")

	got, err := afero.ReadFile(fs, "/work/project.tar")
	require.NoError(t, err)
	assert.Equal(t, "someone else's", string(got))
}

// stickyFs refuses to remove temporary archives.
type stickyFs struct {
	afero.Fs
}

func (s stickyFs) Remove(name string) error {
	if strings.HasSuffix(name, ".tar") {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}

	return s.Fs.Remove(name)
}

func TestCleanupFailure(t *testing.T) {
	t.Parallel()

	fs := stickyFs{scenario(t)}
	orch := orchestrator(t, fs, backend.Native, pipeline.Options{})
	ctx := context.Background()

	result := orch.Encrypt(ctx, "/work/project", []byte("s3cret"))

	require.NoError(t, result.Err, "a cleanup failure does not fail the job")
	require.Error(t, result.CleanupErr)
	assert.Equal(t, errors.ErrCleanupFailed, errors.GetErrorCode(result.CleanupErr))
	assert.Contains(t, errors.UserMessage(result.CleanupErr), "Failed to delete temporary file")

	// Left-over artifact from the run above blocks the next one; clear it behind the wrapper's back.
	require.NoError(t, fs.Fs.Remove("/work/project.tar"))
	require.NoError(t, fs.RemoveAll("/work/project"))

	result = orch.Decrypt(ctx, "/work/project.aes", []byte("wrong"))

	require.Error(t, result.Err)
	assert.Equal(t, errors.ErrWrongPassword, errors.GetErrorCode(result.Err), "the stage error comes first")
	assert.ErrorIs(t, result.Err, errors.New(errors.ErrCleanupFailed, ""))
	assert.Error(t, result.CleanupErr)
}

func TestArchiveRootMismatch(t *testing.T) {
	t.Parallel()

	for _, name := range []backend.Name{backend.Native, backend.NativeOpenSSL} {
		t.Run(string(name), func(t *testing.T) {
			t.Parallel()

			fs := scenario(t)
			orch := orchestrator(t, fs, name, pipeline.Options{})
			ctx := context.Background()

			require.NoError(t, orch.Encrypt(ctx, "/work/project", []byte("s3cret")).Err)
			require.NoError(t, fs.Rename("/work/project.aes", "/work/renamed.aes"))

			// Work done since the archive was made must survive decrypting the renamed archive.
			require.NoError(t, afero.WriteFile(fs, "/work/project/a.txt", []byte("NEW WORK"), 0o644))

			result := orch.Decrypt(ctx, "/work/renamed.aes", []byte("s3cret"))

			assert.Equal(t, errors.ErrPackagingFailed, errors.GetErrorCode(result.Err))
			assert.Contains(t, result.Err.Error(), "archive root does not match")
			assertAbsent(t, fs, "/work/renamed", "/work/renamed.tar")
			assertNoStaging(t, fs, "/work")

			got, err := afero.ReadFile(fs, "/work/project/a.txt")
			require.NoError(t, err)
			assert.Equal(t, "NEW WORK", string(got))
		})
	}
}

func TestForce_FailedJobKeepsOutput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("artifact path occupied", func(t *testing.T) {
		t.Parallel()

		fs := scenario(t)
		require.NoError(t, afero.WriteFile(fs, "/work/project.aes", []byte("precious"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/work/project.tar", []byte("someone else's"), 0o644))

		result := orchestrator(t, fs, backend.Native, pipeline.Options{Force: true}).
			Encrypt(ctx, "/work/project", []byte("s3cret"))

		assert.Equal(t, errors.ErrIOFailure, errors.GetErrorCode(result.Err))

		got, err := afero.ReadFile(fs, "/work/project.aes")
		require.NoError(t, err)
		assert.Equal(t, "precious", string(got))
		assertNoStaging(t, fs, "/work")
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()

		fs := scenario(t)
		orch := orchestrator(t, fs, backend.Native, pipeline.Options{Force: true})

		require.NoError(t, orch.Encrypt(ctx, "/work/project", []byte("s3cret")).Err)
		require.NoError(t, afero.WriteFile(fs, "/work/project/a.txt", []byte("NEW WORK"), 0o644))

		result := orch.Decrypt(ctx, "/work/project.aes", []byte("wrong"))

		assert.Equal(t, errors.ErrWrongPassword, errors.GetErrorCode(result.Err))

		got, err := afero.ReadFile(fs, "/work/project/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "NEW WORK", string(got))
		assertAbsent(t, fs, "/work/project.tar")
		assertNoStaging(t, fs, "/work")
	})
}

func TestForce_ReplacesFolder(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	orch := orchestrator(t, fs, backend.Native, pipeline.Options{Force: true})
	ctx := context.Background()

	require.NoError(t, orch.Encrypt(ctx, "/work/project", []byte("s3cret")).Err)
	require.NoError(t, afero.WriteFile(fs, "/work/project/b.txt", []byte("stray"), 0o644))

	result := orch.Decrypt(ctx, "/work/project.aes", []byte("s3cret"))
	require.NoError(t, result.Err)

	got, err := afero.ReadFile(fs, "/work/project/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assertAbsent(t, fs, "/work/project/b.txt", "/work/project.tar")
	assertNoStaging(t, fs, "/work")
}

func TestFailedUnpackLeavesNoPartialOutput(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "junk/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "junk/a.txt", Typeflag: tar.TypeReg, Mode: 0o644, Size: 1}))
	_, err := tw.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "junk/../../evil", Typeflag: tar.TypeReg, Mode: 0o644}))
	require.NoError(t, tw.Close())

	require.NoError(t, afero.WriteFile(fs, "/work/plain", buf.Bytes(), 0o600))
	require.NoError(t, encryption.EncryptFile(fs, encryption.Sealed{Params: fastKDF}, "/work/plain", "/work/junk.aes", []byte("s3cret")))

	result := orchestrator(t, fs, backend.Native, pipeline.Options{}).Decrypt(context.Background(), "/work/junk.aes", []byte("s3cret"))

	assert.Equal(t, errors.ErrPackagingFailed, errors.GetErrorCode(result.Err))
	assert.ErrorIs(t, result.Err, backend.ErrUnsafePath)
	assertAbsent(t, fs, "/work/junk", "/work/junk.tar", "/evil")
}

func TestUnsupportedPlatformTouchesNothing(t *testing.T) {
	t.Parallel()

	fs := scenario(t)

	_, err := backend.Resolve(backend.Options{Platform: "plan9", Fs: fs})
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnsupportedPlatform, errors.GetErrorCode(err))
	assert.Equal(t, "Unsupported operating system: plan9", errors.UserMessage(err))

	var paths []string

	require.NoError(t, afero.Walk(fs, "/", func(path string, _ os.FileInfo, err error) error {
		paths = append(paths, path)

		return err
	}))

	assert.Equal(t, []string{"/", "/work", "/work/project", "/work/project/a.txt"}, paths)
}

func TestCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	fs := scenario(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := orchestrator(t, fs, backend.Native, pipeline.Options{}).Encrypt(ctx, "/work/project", []byte("s3cret"))

	assert.Equal(t, errors.ErrCancelled, errors.GetErrorCode(result.Err))
	assertAbsent(t, fs, "/work/project.aes", "/work/project.tar")
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	fs := scenario(t)
	orch := orchestrator(t, fs, backend.Native, pipeline.Options{Extension: ".sealed"})

	job, err := orch.NewJob(pipeline.Encrypt, "/work/project", []byte("s3cret"))
	require.NoError(t, err)

	assert.Equal(t, "/work/project.sealed", job.Output)
	assert.Equal(t, "/work/project.tar", job.Artifact)

	results := orch.Submit(context.Background(), job)

	result, ok := <-results
	require.True(t, ok)
	require.NoError(t, result.Err)
	assert.Equal(t, "Folder has been encrypted to: /work/project.sealed", result.Message)

	_, ok = <-results
	assert.False(t, ok, "channel is closed after the single result")
}

func TestExtensionCollidingWithArtifact(t *testing.T) {
	t.Parallel()

	fs := scenario(t)

	result := orchestrator(t, fs, backend.Native, pipeline.Options{Extension: ".tar"}).Encrypt(context.Background(), "/work/project", []byte("s3cret"))

	assert.Equal(t, errors.ErrInvalidInput, errors.GetErrorCode(result.Err))
	assertAbsent(t, fs, "/work/project.tar")
}

func requireTools(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available", name)
		}
	}
}

// requireOpenSSL skips unless tar and an openssl that knows -pbkdf2 are installed.
func requireOpenSSL(t *testing.T) {
	t.Helper()
	requireTools(t, "tar", "openssl")

	cmd := exec.Command("openssl", "enc", "-aes-256-cbc", "-salt", "-pbkdf2", "-pass", "pass:x")
	cmd.Stdin = strings.NewReader("x")

	if err := cmd.Run(); err != nil {
		t.Skipf("openssl without -pbkdf2 support: %v", err)
	}
}

func TestRoundTrip_TarOpenSSL(t *testing.T) {
	t.Parallel()
	requireOpenSSL(t)

	dir := t.TempDir()
	folder := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("hello"), 0o644))

	strategy, err := backend.Resolve(backend.Options{Backend: backend.TarOpenSSL})
	require.NoError(t, err)

	orch := pipeline.New(strategy, pipeline.Options{})
	ctx := context.Background()

	enc := orch.Encrypt(ctx, folder, []byte("s3cret"))
	require.NoError(t, enc.Err)
	assert.NoFileExists(t, filepath.Join(dir, "project.tar"))

	require.NoError(t, os.RemoveAll(folder))

	wrong := orch.Decrypt(ctx, filepath.Join(dir, "project.aes"), []byte("wrong"))
	assert.Contains(t, []errors.ErrorCode{errors.ErrWrongPassword, errors.ErrPackagingFailed}, errors.GetErrorCode(wrong.Err))
	assert.NoFileExists(t, filepath.Join(dir, "project.tar"))
	assert.NoDirExists(t, folder)

	dec := orch.Decrypt(ctx, filepath.Join(dir, "project.aes"), []byte("s3cret"))
	require.NoError(t, dec.Err)

	got, err := os.ReadFile(filepath.Join(folder, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.NoFileExists(t, filepath.Join(dir, "project.tar"))

	// The native openssl backend reads what tar and openssl wrote.
	require.NoError(t, os.RemoveAll(folder))

	native, err := backend.Resolve(backend.Options{Backend: backend.NativeOpenSSL})
	require.NoError(t, err)
	require.NoError(t, pipeline.New(native, pipeline.Options{}).Decrypt(ctx, filepath.Join(dir, "project.aes"), []byte("s3cret")).Err)

	got, err = os.ReadFile(filepath.Join(folder, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestArchiveRootMismatch_TarOpenSSL(t *testing.T) {
	t.Parallel()
	requireOpenSSL(t)

	dir := t.TempDir()
	folder := filepath.Join(dir, "project")
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("hello"), 0o644))

	strategy, err := backend.Resolve(backend.Options{Backend: backend.TarOpenSSL})
	require.NoError(t, err)

	orch := pipeline.New(strategy, pipeline.Options{Force: true})
	ctx := context.Background()

	require.NoError(t, orch.Encrypt(ctx, folder, []byte("s3cret")).Err)
	require.NoError(t, os.Rename(filepath.Join(dir, "project.aes"), filepath.Join(dir, "renamed.aes")))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("NEW WORK"), 0o644))

	result := orch.Decrypt(ctx, filepath.Join(dir, "renamed.aes"), []byte("s3cret"))

	assert.Equal(t, errors.ErrPackagingFailed, errors.GetErrorCode(result.Err))
	assert.NoDirExists(t, filepath.Join(dir, "renamed"))
	assert.NoFileExists(t, filepath.Join(dir, "renamed.tar"))
	assertNoStaging(t, afero.NewOsFs(), dir)

	got, err := os.ReadFile(filepath.Join(folder, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "NEW WORK", string(got))
}

func TestMissingTool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  backend.Options
		tools []string
		want  errors.ErrorCode
	}{
		{
			name: "tar",
			opts: backend.Options{Backend: backend.TarOpenSSL, TarBin: "foldenc-no-such-tar"},
			want: errors.ErrPackagingFailed,
		},
		{
			name:  "openssl",
			opts:  backend.Options{Backend: backend.TarOpenSSL, OpenSSLBin: "foldenc-no-such-openssl"},
			tools: []string{"tar"},
			want:  errors.ErrCipherToolUnavailable,
		},
		{
			name: "7z",
			opts: backend.Options{Backend: backend.SevenZip, SevenZipBin: "foldenc-no-such-7z"},
			want: errors.ErrCipherToolUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requireTools(t, tt.tools...)

			dir := t.TempDir()
			folder := filepath.Join(dir, "project")
			require.NoError(t, os.MkdirAll(folder, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("hello"), 0o644))

			strategy, err := backend.Resolve(tt.opts)
			require.NoError(t, err)

			result := pipeline.New(strategy, pipeline.Options{}).Encrypt(context.Background(), folder, []byte("s3cret"))

			assert.Equal(t, tt.want, errors.GetErrorCode(result.Err), "%v", result.Err)
			assert.True(t, stderrors.Is(result.Err, errors.New(tt.want, "")))
			assert.NoFileExists(t, filepath.Join(dir, "project.tar"))
			assert.NoFileExists(t, filepath.Join(dir, "project.aes"))
			assertNoStaging(t, afero.NewOsFs(), dir)
		})
	}
}

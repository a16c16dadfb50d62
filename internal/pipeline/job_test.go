package pipeline_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idelchi/foldenc/internal/errors"
	"github.com/idelchi/foldenc/internal/pipeline"
)

func TestEncryptedPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.FromSlash("/work/project.aes"), pipeline.EncryptedPath("/work/project", ".aes"))
	assert.Equal(t, filepath.FromSlash("/work/project.aes"), pipeline.EncryptedPath("/work/project/", ".aes"))
	assert.Equal(t, filepath.FromSlash("/work/my.project.enc"), pipeline.EncryptedPath("/work/my.project", ".enc"))
}

func TestDecryptedPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		archive string
		ext     string
		want    string
	}{
		{name: "configured extension", archive: "/work/project.aes", ext: ".aes", want: "/work/project"},
		{name: "dots in folder name", archive: "/work/my.project.aes", ext: ".aes", want: "/work/my.project"},
		{name: "other extension", archive: "/work/project.7z", ext: ".aes", want: "/work/project"},
		{name: "multi-part extension", archive: "/work/project.tar.enc", ext: ".tar.enc", want: "/work/project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := pipeline.DecryptedPath(filepath.FromSlash(tt.archive), tt.ext)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}

	for _, bad := range []string{"/work/project", "/work/.aes"} {
		_, err := pipeline.DecryptedPath(filepath.FromSlash(bad), ".aes")
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidSource), bad)
	}
}

func TestNamingIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, folder := range []string{"/work/project", "/a/b/my.folder", "/x/y"} {
		folder = filepath.FromSlash(folder)

		back, err := pipeline.DecryptedPath(pipeline.EncryptedPath(folder, ".aes"), ".aes")
		require.NoError(t, err)
		assert.Equal(t, folder, back)
	}
}

package tempfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFile_RemovedAfterScope(t *testing.T) {
	var name string
	err := WithFile(t.TempDir(), "scoped-*.txt", func(f *os.File) error {
		name = f.Name()
		_, err := f.WriteString("hello")
		return err
	})
	require.NoError(t, err)
	assert.NoFileExists(t, name)
}

func TestWithFile_RemovedOnPanic(t *testing.T) {
	var name string
	assert.Panics(t, func() {
		_ = WithFile(t.TempDir(), "panic-*", func(f *os.File) error {
			name = f.Name()
			panic("boom")
		})
	})
	assert.NoFileExists(t, name)
}

func TestWithDir_RemovesTree(t *testing.T) {
	sentinel := errors.New("stop")
	var path string
	err := WithDir(t.TempDir(), "tree-*", func(p string) error {
		path = p
		require.NoError(t, os.MkdirAll(filepath.Join(p, "a", "b"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p, "a", "b", "c"), []byte("x"), 0o644))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoDirExists(t, path)
}

func TestWriteAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.bin")

	require.NoError(t, WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}))
	require.NoError(t, WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := io.WriteString(w, "second")
		return err
	}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestWriteAtomic_ErrorKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	err := WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("writer failed")
	})
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be cleaned up")
}

package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExpandSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "b.c"), "b")
	writeFile(t, filepath.Join(dir, "src", "a.c"), "a")
	writeFile(t, filepath.Join(dir, "src", "a.h"), "h")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src", "dir.c"), 0o755))

	got, err := ExpandSources(dir, []string{"src/*.c", "src/a.c", "src/a.h"})
	require.NoError(t, err)

	base := filepath.ToSlash(dir)
	assert.Equal(t, []string{base + "/src/a.c", base + "/src/a.h", base + "/src/b.c"}, got)
}

func TestExpandSources_MissingLiteral(t *testing.T) {
	dir := t.TempDir()

	got, err := ExpandSources(dir, []string{"*.none"})
	require.NoError(t, err, "an empty glob is not an error")
	assert.Empty(t, got)

	_, err = ExpandSources(dir, []string{"main.c"})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

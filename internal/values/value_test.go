package values

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_NoContent(t *testing.T) {
	v := NewValue("x", nil)
	assert.False(t, v.Exists())
	assert.True(t, v.Actual())
	assert.Equal(t, "x", v.String())
	assert.True(t, v.Equal(NewValue("x", NoContent)))
}

func TestValue_EqualityUsesNameAndContent(t *testing.T) {
	a := NewStringValue("a", "text")
	assert.True(t, a.Equal(NewStringValue("a", "text")))
	assert.False(t, a.Equal(NewStringValue("b", "text")))
	assert.False(t, a.Equal(NewStringValue("a", "TEXT")))
	assert.False(t, a.Equal(nil))
}

func TestStringValue_IgnoreCase(t *testing.T) {
	a := NewIgnoreCaseStringValue("opt", "Release")
	assert.True(t, a.Equal(NewIgnoreCaseStringValue("opt", "RELEASE")))
	assert.False(t, a.Equal(NewStringValue("opt", "Release")))
	assert.Equal(t, "Release", a.Text())
}

func TestCompositeName(t *testing.T) {
	name := CompositeName("node", "hello", "sources")
	assert.Equal(t, []string{"node", "hello", "sources"}, SplitName(name))
	assert.NotEqual(t, CompositeName("a/b"), CompositeName("a", "b"))
}

func TestFileValue_Checksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.c")
	require.NoError(t, os.WriteFile(path, []byte("int main;"), 0o644))

	v, err := NewFileValue(path, SignatureChecksum)
	require.NoError(t, err)
	assert.True(t, v.Exists())
	assert.True(t, v.Actual())

	sum, ok := v.Content().(FileChecksum)
	require.True(t, ok)
	assert.Equal(t, int64(9), sum.Size)
	assert.Len(t, sum.Sum, 64)

	require.NoError(t, os.WriteFile(path, []byte("int main();"), 0o644))
	assert.False(t, v.Actual())
}

func TestFileValue_Timestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.c")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	v, err := NewFileValue(path, SignatureTimestamp)
	require.NoError(t, err)
	assert.True(t, v.Actual())

	require.NoError(t, os.Chtimes(path, time.Now(), time.Now()))
	assert.False(t, v.Actual())
}

func TestFileValue_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	v, err := NewFileValue(path, SignatureChecksum)
	require.NoError(t, err)
	assert.False(t, v.Exists())
	assert.True(t, v.Actual())

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	assert.False(t, v.Actual())
}

func TestRegisterTypes_RoundTrip(t *testing.T) {
	reg := NewRegistry()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	fv, err := NewFileValue(path, SignatureTimestamp)
	require.NoError(t, err)

	cases := map[string]Value{
		"basic":       NewValue("basic", BytesContent{0, 1, 2}),
		"no content":  NewValue("empty", nil),
		"string":      NewStringValue("s", "text"),
		"ignore case": NewIgnoreCaseStringValue("s", "Text"),
		"file":        fv,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			data, err := reg.Dumps(in)
			require.NoError(t, err)
			out, err := reg.Loads(data)
			require.NoError(t, err)

			got, ok := out.(Value)
			require.True(t, ok)
			assert.IsType(t, in, got)
			assert.True(t, in.Equal(got))
		})
	}
}

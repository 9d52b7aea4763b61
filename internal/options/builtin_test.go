package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_Defaults(t *testing.T) {
	o, err := Builtin()
	require.NoError(t, err)

	assert.Equal(t, "debug", get(t, o, "build_variant"))
	assert.Equal(t, []any{"debug"}, get(t, o, "build_variants"))
	assert.Equal(t, "native_native_debug", get(t, o, "build_dir_name"))
	assert.Equal(t, 0, get(t, o, "warn_level"))
	assert.Equal(t, false, get(t, o, "werror"))
}

func TestBuiltin_DirNameFollowsSettings(t *testing.T) {
	o, err := Builtin()
	require.NoError(t, err)

	require.NoError(t, o.SetString("bv", "rel"))
	require.NoError(t, o.Set("target_os", "linux"))
	require.NoError(t, o.Set("target_arch", "i686"))
	assert.Equal(t, "linux_x86-32_release_speed", get(t, o, "build_dir_name"))

	require.NoError(t, o.Append("bvs", "rz"))
	assert.Equal(t, []any{"debug", "release_size"}, get(t, o, "build_variants"))

	assert.ErrorIs(t, o.Set("warning_level", 9), ErrInvalidOptionValue)
	assert.ErrorIs(t, o.Set("target_os", "plan9"), ErrInvalidOptionValue)
}

func TestBuiltin_Help(t *testing.T) {
	o, err := Builtin()
	require.NoError(t, err)

	help := o.Help()
	for _, group := range []string{"Build output:", "Target system:", "Diagnostic:"} {
		assert.Contains(t, help, group)
	}
	assert.Contains(t, help, "release_speed (or release, rel, rs)")
}

func TestAutoType(t *testing.T) {
	cases := []struct {
		sample any
		name   string
		want   any
	}{
		{true, "Boolean", true},
		{7, "Integer", 7},
		{"gcc", "String", "gcc"},
		{[]any{1, 2}, "List of Integer", []any{1, 2}},
		{[]any{}, "List of String", []any{}},
		{[]string{"a"}, "List of String", []any{"a"}},
	}
	for _, tc := range cases {
		typ, err := AutoType(tc.sample)
		require.NoError(t, err, "%v", tc.sample)
		assert.Equal(t, tc.name, typ.Name())

		got, err := NewValue(typ).Resolve()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := AutoType(3.5)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	_, err = AutoType([]any{[]any{1}})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

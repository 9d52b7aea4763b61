package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqualid/internal/build"
	"aqualid/internal/options"
)

const sample = `
options:
  - name: build_variant
    type: enum
    description: Build variant
    values: [[debug, dbg], [release, rel]]
    default: debug
  - name: warn_level
    type: range
    description: Warning level
    min: 0
    max: 5
    fix: true
  - name: cflags
    type: list
    of: str
    aliases: [ccflags]
  - name: optimization
    type: enum
    values: [none, size, speed]
    default: speed
set:
  warn_level: 2
conditions:
  - when: {build_variant: debug}
    add: {warn_level: 1, cflags: -g}
  - when: {build_variant: [release, rel]}
    add: {cflags: -O2}
  - when: {cflags: -g}
    set: {optimization: none}
nodes:
  - name: hello
    sources: [hello.c]
    targets: [hello]
    run: cc ${cflags} -W${warn_level} -o hello hello.c
  - name: all
    deps: [hello]
`

func parse(t *testing.T, doc string) *File {
	t.Helper()
	f, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return f
}

func snapshot(t *testing.T, o *options.Options) map[string]any {
	t.Helper()
	s, err := o.Snapshot()
	require.NoError(t, err)
	return s
}

func TestOptions_ConditionsFollowTheFinalValues(t *testing.T) {
	f := parse(t, sample)
	o, err := f.Options()
	require.NoError(t, err)

	s := snapshot(t, o)
	assert.Equal(t, "debug", s["build_variant"])
	assert.Equal(t, 3, s["warn_level"])
	assert.Equal(t, []any{"-g"}, s["cflags"])
	assert.Equal(t, "none", s["optimization"])

	require.NoError(t, ApplyOverrides(o, []string{"build_variant=rel", "ccflags+=-Wall"}))
	s = snapshot(t, o)
	assert.Equal(t, "release", s["build_variant"])
	assert.Equal(t, 2, s["warn_level"])
	assert.Equal(t, []any{"-O2", "-Wall"}, s["cflags"])
	assert.Equal(t, "speed", s["optimization"])
}

func TestApplyOverrides_Errors(t *testing.T) {
	o, err := parse(t, sample).Options()
	require.NoError(t, err)

	err = ApplyOverrides(o, []string{"noequals"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ApplyOverrides(o, []string{"missing=1"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, options.ErrUnknownOption)

	err = ApplyOverrides(o, []string{"build_variant=fast"})
	assert.ErrorIs(t, err, options.ErrInvalidOptionValue)

	require.NoError(t, ApplyOverrides(o, []string{"warn_level-=9"}))
	v, err := o.Get("warn_level")
	require.NoError(t, err)
	assert.Equal(t, 0, v, "fixed ranges clamp")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("nodes:\n  - name: a\n    cmd: make\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "cmd")
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"enum without values", "options: [{name: v, type: enum}]", "Options[0].Values is required"},
		{"unknown type", "options: [{name: v, type: float}]", "Options[0].Type must be one of"},
		{"range without bounds", "options: [{name: v, type: range, max: 3}]", "Options[0].Min is required"},
		{"list without element", "options: [{name: v, type: list}]", "Options[0].Of is required"},
		{"unnamed node", "nodes: [{run: make}]", "Nodes[0].Name is required"},
		{"empty when", "conditions: [{when: {}, set: {a: 1}}]", "Conditions[0].When"},
		{"inverted range", "options: [{name: v, type: range, min: 4, max: 1}]", "min 4 is above max 1"},
		{"no type and no default", "options: [{name: v}]", "Options[0].Type is required without Default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	f := parse(t, "")
	o, err := f.Options()
	require.NoError(t, err)
	assert.Empty(t, o.Names())
}

func TestOptions_Builtins(t *testing.T) {
	f := parse(t, `
builtins: true
options:
  - {name: jobs_hint, default: 4, description: Parallel jobs hint}
  - {name: defines, default: [NDEBUG], description: Preprocessor defines}
set:
  bv: rel
conditions:
  - when: {build_variant: release_speed}
    add: {defines: FAST}
nodes:
  - name: out
    targets: ["${build_dir_name}/app"]
    run: mkdir -p ${build_dir_name}
`)
	o, err := f.Options()
	require.NoError(t, err)

	s := snapshot(t, o)
	assert.Equal(t, "native_native_release_speed", s["build_dir_name"])
	assert.Equal(t, 4, s["jobs_hint"])
	assert.Equal(t, []any{"NDEBUG", "FAST"}, s["defines"])

	require.NoError(t, ApplyOverrides(o, []string{"jobs_hint+=2", "target_os=linux"}))
	assert.Equal(t, 6, snapshot(t, o)["jobs_hint"])

	ns, err := f.BuildNodes(o, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"linux_native_release_speed/app"}, ns[0].Targets)

	_, err = parse(t, `builtins: true
options: [{name: warn_level, type: int}]
`).Options()
	assert.ErrorIs(t, err, options.ErrOptionExists)
}

func TestOptions_DeclarationErrors(t *testing.T) {
	_, err := parse(t, `
options:
  - {name: a, type: int}
  - {name: a, type: bool}
`).Options()
	assert.ErrorIs(t, err, options.ErrOptionExists)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = parse(t, `
options:
  - {name: v, type: enum, values: [[a, x], [b, x]]}
`).Options()
	assert.ErrorIs(t, err, options.ErrEnumAliasAlreadySet)

	_, err = parse(t, `
options:
  - {name: n, type: int, default: ten}
`).Options()
	assert.ErrorIs(t, err, options.ErrInvalidOptionValue)

	_, err = parse(t, `
options:
  - {name: n, type: int}
conditions:
  - when: {missing: 1}
    set: {n: 2}
`).Options()
	assert.ErrorIs(t, err, options.ErrUnknownOption)
}

func TestExpand(t *testing.T) {
	o, err := parse(t, sample).Options()
	require.NoError(t, err)
	require.NoError(t, o.Append("cflags", "-pipe"))

	got, err := Expand(o, "cc ${cflags} -W${warn_level} ${HOME} $PATH")
	require.NoError(t, err)
	assert.Equal(t, "cc -g -pipe -W3 ${HOME} $PATH", got)
}

func TestBuildNodes(t *testing.T) {
	f := parse(t, sample)
	o, err := f.Options()
	require.NoError(t, err)

	base := t.TempDir()
	ns, err := f.BuildNodes(o, base, nil)
	require.NoError(t, err)
	require.Len(t, ns, 2)

	hello := ns[0]
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, []string{"hello.c"}, hello.Sources)
	assert.Equal(t, []string{"hello"}, hello.Targets)
	ea, ok := hello.Action.(*build.ExecAction)
	require.True(t, ok)
	assert.Equal(t, "cc -g -W3 -o hello hello.c", ea.Command)
	assert.Equal(t, base, ea.Dir)
	assert.Equal(t, []string{"PATH"}, ea.PassEnv)

	all := ns[1]
	assert.Nil(t, all.Action)
	assert.Equal(t, []string{"hello"}, all.Deps)

	g, err := build.NewGraph(ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "all"}, g.TopologicalOrder())
}

func TestBuildNodes_DirAndEnv(t *testing.T) {
	f := parse(t, `
options:
  - {name: out, type: str, default: build}
nodes:
  - name: gen
    dir: ${out}/gen
    env: {OUT: "${out}"}
    pass_env: []
    run: ./gen.sh
`)
	o, err := f.Options()
	require.NoError(t, err)

	ns, err := f.BuildNodes(o, "/src", nil)
	require.NoError(t, err)
	ea := ns[0].Action.(*build.ExecAction)
	assert.Equal(t, filepath.Join("/src", "build", "gen"), ea.Dir)
	assert.Equal(t, map[string]string{"OUT": "build"}, ea.Env)
	assert.Empty(t, ea.PassEnv)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())
	assert.Len(t, f.Nodes, 2)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("bogus: 1\n"), 0o644))
	_, err = Load(bad)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, bad, ce.Path)
}

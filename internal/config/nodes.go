package config

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"aqualid/internal/build"
	"aqualid/internal/options"
)

// defaultPassEnv applies to nodes that don't list pass_env.
var defaultPassEnv = []string{"PATH"}

var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Expand replaces ${name} with the formatted value of the option name. List
// items are joined by spaces. References to names that are not options are
// left for the shell.
func Expand(o *options.Options, s string) (string, error) {
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := refPattern.FindStringSubmatch(m)[1]
		if !o.Has(name) || firstErr != nil {
			return m
		}
		v, err := formatOption(o, name)
		if err != nil {
			firstErr = err
			return m
		}
		return v
	})
	return out, firstErr
}

func formatOption(o *options.Options, name string) (string, error) {
	x, err := o.Get(name)
	if err != nil {
		return "", err
	}
	t, _ := o.Type(name)
	l, ok := t.(*options.ListType)
	if !ok {
		return t.Format(x), nil
	}
	items, _ := x.([]any)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = l.Elem().Format(item)
	}
	return strings.Join(parts, " "), nil
}

func expandAll(o *options.Options, ss []string) ([]string, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		e, err := Expand(o, s)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// BuildNodes turns the node declarations into build nodes with option
// references expanded. Commands run in baseDir unless a node sets its own
// dir, and write their output to output when it is not nil.
func (f *File) BuildNodes(o *options.Options, baseDir string, output io.Writer) ([]build.Node, error) {
	out := make([]build.Node, 0, len(f.Nodes))
	for _, d := range f.Nodes {
		n, err := d.node(o, baseDir, output)
		if err != nil {
			return nil, f.errorf(err, "node %q", d.Name)
		}
		out = append(out, n)
	}
	return out, nil
}

func (d NodeDecl) node(o *options.Options, baseDir string, output io.Writer) (build.Node, error) {
	sources, err := expandAll(o, d.Sources)
	if err != nil {
		return build.Node{}, fmt.Errorf("sources: %w", err)
	}
	targets, err := expandAll(o, d.Targets)
	if err != nil {
		return build.Node{}, fmt.Errorf("targets: %w", err)
	}
	run, err := Expand(o, d.Run)
	if err != nil {
		return build.Node{}, fmt.Errorf("run: %w", err)
	}

	n := build.Node{Name: d.Name, Sources: sources, Targets: targets, Deps: d.Deps}
	if strings.TrimSpace(run) == "" {
		return n, nil
	}

	dir := baseDir
	if d.Dir != "" {
		if dir, err = Expand(o, d.Dir); err != nil {
			return build.Node{}, fmt.Errorf("dir: %w", err)
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
	}
	env := make(map[string]string, len(d.Env))
	for k, v := range d.Env {
		if env[k], err = Expand(o, v); err != nil {
			return build.Node{}, fmt.Errorf("env %s: %w", k, err)
		}
	}

	pass := d.PassEnv
	if pass == nil {
		pass = defaultPassEnv
	}
	n.Action = &build.ExecAction{
		Command: run,
		Env:     env,
		PassEnv: pass,
		Dir:     dir,
		Output:  output,
	}
	return n, nil
}

package options

import "fmt"

// AutoType picks an option type for a sample value: bool, int and string
// map to Bool, Int and Str, and a slice maps to a List of its first
// element's type (Str when empty). The sample becomes the type's default.
func AutoType(v any, opts ...TypeOption) (Type, error) {
	var t Type
	switch x := v.(type) {
	case bool:
		t = NewBool(opts...)
	case int, int64, uint, uint64:
		t = NewInt(opts...)
	case string:
		t = NewStr(false, opts...)
	case []string:
		t = NewList(NewStr(false), false, opts...)
	case []any:
		var elem Type = NewStr(false)
		if len(x) > 0 {
			e, err := AutoType(x[0])
			if err != nil {
				return nil, err
			}
			if _, nested := e.(*ListType); nested {
				return nil, &OptionError{Value: v, Kind: ErrUnsupportedOperation, Msg: "nested lists"}
			}
			elem = e
		}
		t = NewList(elem, false, opts...)
	default:
		return nil, &OptionError{Value: v, Kind: ErrUnsupportedOperation, Msg: fmt.Sprintf("no option type for %T", v)}
	}
	if err := SetDefault(t, v); err != nil {
		return nil, err
	}
	return t, nil
}

// Builtin returns a scope holding the toolchain-neutral options: the build
// variant, the target system and the diagnostic level. build_dir_name
// defaults to <target_os>_<target_arch>_<build_variant>.
func Builtin() (*Options, error) {
	o := New()
	b := builder{o: o}

	variant := NewEnum(WithDescription("Current build variant"), WithGroup("Build output"))
	b.enumValues(variant,
		[]string{"debug", "dbg", "d"},
		[]string{"release_speed", "release", "rel", "rs"},
		[]string{"release_size", "rz"},
		[]string{"final", "f"})
	b.add("build_variant", variant, "bv")
	b.add("build_variants", NewList(variant, true,
		WithDescription("Active build variants"), WithGroup("Build output")), "bvs")
	b.add("build_dir_name", NewStr(false,
		WithDescription("The building directory name"), WithGroup("Build output")))
	b.add("prefix", NewStr(false,
		WithDescription("Output files prefix"), WithGroup("Build output")))

	targetOS := NewEnum(WithDescription("The target system/OS name"), WithGroup("Target system"))
	b.enumValues(targetOS, []string{"native"}, []string{"windows"}, []string{"linux"},
		[]string{"cygwin"}, []string{"darwin"}, []string{"java"}, []string{"sunos"}, []string{"hpux"})
	b.add("target_os", targetOS)

	targetArch := NewEnum(WithDescription("The target machine type"), WithGroup("Target system"))
	b.enumValues(targetArch,
		[]string{"native"},
		[]string{"x86-32", "x86", "80x86", "i386", "i486", "i586", "i686"},
		[]string{"x86-64"},
		[]string{"arm"})
	b.add("target_arch", targetArch)
	b.add("target_cpu", NewStr(true,
		WithDescription("The target real processor name"), WithGroup("Target system")))

	b.add("warning_level", NewRange(0, 4, false,
		WithDescription("Warning level"), WithGroup("Diagnostic")), "warn_level")
	b.add("warning_as_error", NewBool(
		WithDescription("Treat warnings as errors"), WithGroup("Diagnostic")), "werror")

	if b.err != nil {
		return nil, b.err
	}

	steps := []func() error{
		func() error { return o.Set("build_variants", "debug") },
		func() error { return o.SetRef("build_dir_name", "target_os") },
		func() error { return o.Append("build_dir_name", "_") },
		func() error { return o.Append("build_dir_name", Ref("target_arch")) },
		func() error { return o.Append("build_dir_name", "_") },
		func() error { return o.Append("build_dir_name", Ref("build_variant")) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// builder keeps the first error of a sequence of declarations.
type builder struct {
	o   *Options
	err error
}

func (b *builder) enumValues(e *EnumType, values ...[]string) {
	for _, v := range values {
		if b.err == nil {
			b.err = e.AddValue(v[0], v[1:]...)
		}
	}
}

func (b *builder) add(name string, t Type, aliases ...string) {
	if b.err != nil {
		return
	}
	if b.err = b.o.Add(name, t); b.err != nil {
		return
	}
	for _, a := range aliases {
		if b.err = b.o.Alias(a, name); b.err != nil {
			return
		}
	}
}

package config

import (
	"fmt"
	"sort"
	"strings"

	"aqualid/internal/options"
)

// NewType builds the option type a declaration describes.
func (d OptionDecl) NewType() (options.Type, error) {
	topts := []options.TypeOption{options.WithGroup(d.Group)}
	if d.Description != "" {
		topts = append(topts, options.WithDescription(d.Description))
	}
	if d.Hidden {
		topts = append(topts, options.Hidden())
	}

	var t options.Type
	switch d.Type {
	case "":
		return options.AutoType(d.Default, topts...)
	case "list":
		elem, err := d.scalarType(d.Of)
		if err != nil {
			return nil, err
		}
		l := options.NewList(elem, d.Unique, topts...)
		if d.Separators != "" {
			l.SetSeparators(d.Separators)
		}
		t = l
	case "range":
		t = options.NewRange(*d.Min, *d.Max, d.Fix, topts...)
	default:
		st, err := d.scalarType(d.Type, topts...)
		if err != nil {
			return nil, err
		}
		t = st
	}

	if d.Default != nil {
		if err := options.SetDefault(t, d.Default); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
	}
	return t, nil
}

func (d OptionDecl) scalarType(kind string, topts ...options.TypeOption) (options.Type, error) {
	switch kind {
	case "bool":
		return options.NewBool(topts...), nil
	case "int":
		return options.NewInt(topts...), nil
	case "str":
		return options.NewStr(false, topts...), nil
	case "istr":
		return options.NewStr(true, topts...), nil
	case "enum":
		e := options.NewEnum(topts...).CaseSensitive(d.CaseSensitive)
		for _, v := range d.Values {
			if err := e.AddValue(v[0], v[1:]...); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
	return nil, fmt.Errorf("unsupported option type %q", kind)
}

// Options builds the option scope of the file: the builtin options when
// requested, declarations and aliases next, then the plain settings, then the conditional ones in file order.
func (f *File) Options() (*options.Options, error) {
	o := options.New()
	if f.Builtins {
		var err error
		if o, err = options.Builtin(); err != nil {
			return nil, f.errorf(err, "builtin options")
		}
	}
	for _, d := range f.Options {
		t, err := d.NewType()
		if err != nil {
			return nil, f.errorf(err, "option %q", d.Name)
		}
		if err := o.Add(d.Name, t); err != nil {
			return nil, f.errorf(err, "option %q", d.Name)
		}
		for _, a := range d.Aliases {
			if err := o.Alias(a, d.Name); err != nil {
				return nil, f.errorf(err, "alias %q", a)
			}
		}
	}

	for _, name := range sortedKeys(f.Set) {
		if err := o.Set(name, f.Set[name]); err != nil {
			return nil, f.errorf(err, "set")
		}
	}

	for i, c := range f.Conditions {
		if err := c.apply(o); err != nil {
			return nil, f.errorf(err, "conditions[%d]", i)
		}
	}
	return o, nil
}

func (f *File) errorf(err error, format string, args ...any) error {
	return &ConfigError{Path: f.path, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (c Condition) apply(o *options.Options) error {
	preds := make([]options.Predicate, 0, len(c.When))
	for _, name := range sortedKeys(c.When) {
		if !o.Has(name) {
			return fmt.Errorf("when: %w", &options.OptionError{Option: name, Kind: options.ErrUnknownOption})
		}
		preds = append(preds, whenPredicate(o, name, c.When[name]))
	}
	cond := o.If(preds...)

	for _, name := range sortedKeys(c.Set) {
		if err := cond.Set(name, c.Set[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Add) {
		if err := cond.Append(name, c.Add[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Remove) {
		if err := cond.Remove(name, c.Remove[name]); err != nil {
			return err
		}
	}
	return nil
}

// whenPredicate matches list options by containment and other options by
// equality with the value or, for a list of values, with any of them.
func whenPredicate(o *options.Options, name string, v any) options.Predicate {
	t, _ := o.Type(name)
	items, isList := v.([]any)
	if _, ok := t.(*options.ListType); ok {
		if !isList {
			return options.Has(name, v)
		}
		ps := make([]options.Predicate, len(items))
		for i, item := range items {
			ps[i] = options.Has(name, item)
		}
		return options.And(ps...)
	}
	if isList {
		return options.In(name, items...)
	}
	return options.Eq(name, v)
}

// ApplyOverrides applies command line settings of the form name=value,
// name+=value and name-=value. Values are parsed with the option's type.
func ApplyOverrides(o *options.Options, settings []string) error {
	for _, s := range settings {
		name, op, value, ok := splitSetting(s)
		if !ok {
			return &ConfigError{Msg: fmt.Sprintf("setting %q: expected name=value", s)}
		}

		var err error
		switch op {
		case "=":
			err = o.SetString(name, value)
		case "+=":
			err = o.Append(name, value)
		case "-=":
			err = o.Remove(name, value)
		}
		if err != nil {
			return &ConfigError{Msg: fmt.Sprintf("setting %q", s), Err: err}
		}
	}
	return nil
}

func splitSetting(s string) (name, op, value string, ok bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", "", false
	}
	name, op, value = s[:i], "=", s[i+1:]
	if strings.HasSuffix(name, "+") || strings.HasSuffix(name, "-") {
		op = name[len(name)-1:] + "="
		name = name[:len(name)-1]
	}
	name = strings.TrimSpace(name)
	return name, op, strings.TrimSpace(value), name != ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

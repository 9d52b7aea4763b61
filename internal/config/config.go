// Package config loads YAML build files.
//
// A build file declares typed options, sets their values (plainly or under
// conditions on other options) and lists the build nodes. Node commands,
// sources and targets may reference options as ${name}.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig matches every error about the content of a build file.
var ErrInvalidConfig = errors.New("invalid build file")

// ConfigError locates a build file problem.
type ConfigError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidConfig.Error())
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }
func (e *ConfigError) Unwrap() error        { return e.Err }

// File is a decoded build file.
type File struct {
	// Builtins starts the option scope from options.Builtin.
	Builtins   bool           `yaml:"builtins"`
	Options    []OptionDecl   `yaml:"options" validate:"dive"`
	Set        map[string]any `yaml:"set"`
	Conditions []Condition    `yaml:"conditions" validate:"dive"`
	Nodes      []NodeDecl     `yaml:"nodes" validate:"dive"`

	path string
}

// OptionDecl declares one option.
type OptionDecl struct {
	Name        string   `yaml:"name" validate:"required"`
	// Type may be left out when Default is set; it is then inferred.
	Type        string   `yaml:"type" validate:"required_without=Default,omitempty,oneof=bool int range str istr enum list"`
	Description string   `yaml:"description"`
	Group       string   `yaml:"group"`
	Hidden      bool     `yaml:"hidden"`
	Aliases     []string `yaml:"aliases" validate:"dive,required"`
	Default     any      `yaml:"default"`

	// enum, and lists of enums
	Values        []EnumValue `yaml:"values" validate:"required_if=Type enum,required_if=Of enum"`
	CaseSensitive bool        `yaml:"case_sensitive"`

	// range
	Min *int `yaml:"min" validate:"required_if=Type range"`
	Max *int `yaml:"max" validate:"required_if=Type range"`
	Fix bool `yaml:"fix"`

	// list
	Of         string `yaml:"of" validate:"required_if=Type list,omitempty,oneof=bool int str istr enum"`
	Unique     bool   `yaml:"unique"`
	Separators string `yaml:"separators"`
}

// EnumValue is an enum value followed by its aliases. It decodes from a
// scalar or a sequence.
type EnumValue []string

func (v *EnumValue) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*v = EnumValue{n.Value}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := n.Decode(&ss); err != nil {
			return err
		}
		if len(ss) == 0 {
			return fmt.Errorf("line %d: empty enum value", n.Line)
		}
		*v = ss
		return nil
	}
	return fmt.Errorf("line %d: enum value must be a string or a list of strings", n.Line)
}

// Condition applies its operations when every option in When has the given
// value. A list in When matches any of its items.
type Condition struct {
	When   map[string]any `yaml:"when" validate:"required,min=1"`
	Set    map[string]any `yaml:"set"`
	Add    map[string]any `yaml:"add"`
	Remove map[string]any `yaml:"remove"`
}

// NodeDecl declares a build node run by a shell command.
type NodeDecl struct {
	Name    string            `yaml:"name" validate:"required"`
	Sources []string          `yaml:"sources"`
	Targets []string          `yaml:"targets"`
	Deps    []string          `yaml:"deps"`
	Run     string            `yaml:"run"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
	PassEnv []string          `yaml:"pass_env"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the build file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes and validates a build file. Unknown keys are errors. An
// empty document is an empty build file.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Err: err}
	}
	if err := validate.Struct(&f); err != nil {
		return nil, &ConfigError{Msg: validationMessage(err)}
	}
	for _, d := range f.Options {
		if d.Type == "range" && *d.Min > *d.Max {
			return nil, &ConfigError{Msg: fmt.Sprintf("option %q: min %d is above max %d", d.Name, *d.Min, *d.Max)}
		}
	}
	return &f, nil
}

// Path returns the path the file was loaded from, if any.
func (f *File) Path() string { return f.path }

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "File.")
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, field+" is required")
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required without %s", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

package options

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOptionValue is returned when a value cannot be converted to
	// an option's type. The option is left unchanged.
	ErrInvalidOptionValue = errors.New("invalid option value")

	// ErrEnumValueAlreadySet is returned when a registered enum value is
	// re-registered as an alias of another value.
	ErrEnumValueAlreadySet = errors.New("enum value already set")

	// ErrEnumAliasAlreadySet is returned when an enum alias is rebound to a
	// different value.
	ErrEnumAliasAlreadySet = errors.New("enum alias already set")

	// ErrUnknownOption is returned when a name does not resolve to an option.
	ErrUnknownOption = errors.New("unknown option")

	// ErrOptionExists is returned when a type or alias is installed under a
	// name that already holds an option.
	ErrOptionExists = errors.New("option already exists")

	// ErrUnsupportedOperation is returned when an option type cannot apply a
	// conditional operation (for example subtracting from a boolean).
	ErrUnsupportedOperation = errors.New("unsupported option operation")
)

// OptionError describes a failure related to one option.
type OptionError struct {
	Option string
	Value  any
	Kind   error
	Msg    string
}

func (e *OptionError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Option != "" {
		msg += fmt.Sprintf(": option %q", e.Option)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(", value %v (%T)", e.Value, e.Value)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *OptionError) Unwrap() error { return e.Kind }

func invalidValue(t Type, v any, msg string) error {
	return &OptionError{Value: v, Kind: ErrInvalidOptionValue, Msg: fmt.Sprintf("%s expected, %s", t.Name(), msg)}
}

// withOption fills in the option name of an *OptionError produced by a type.
func withOption(name string, err error) error {
	var oe *OptionError
	if errors.As(err, &oe) {
		cp := *oe
		cp.Option = name
		return &cp
	}
	return err
}

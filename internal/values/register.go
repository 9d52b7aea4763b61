package values

import (
	"fmt"

	"aqualid/internal/serial"
)

// Stable tags of the persisted value and content classes. Changing one
// invalidates existing values files.
const (
	TagValue             = "Value"
	TagStringValue       = "StringValue"
	TagFileValue         = "FileValue"
	TagNoContent         = "NoContent"
	TagStringContent     = "StringContent"
	TagIgnoreCaseContent = "IgnoreCaseContent"
	TagBytesContent      = "BytesContent"
	TagFileChecksum      = "FileChecksum"
	TagFileTimestamp     = "FileTimestamp"
)

// RegisterTypes registers every value and content class of this package.
func RegisterTypes(r *serial.Registry) error {
	regs := []struct {
		tag    string
		sample serial.Persistent
		ctor   serial.Constructor
	}{
		{TagNoContent, noContent{}, func(serial.Args) (any, error) { return NoContent, nil }},
		{TagStringContent, StringContent(""), func(a serial.Args) (any, error) {
			var s string
			err := a.Decode(0, &s)
			return StringContent(s), err
		}},
		{TagIgnoreCaseContent, IgnoreCaseContent(""), func(a serial.Args) (any, error) {
			var s string
			err := a.Decode(0, &s)
			return IgnoreCaseContent(s), err
		}},
		{TagBytesContent, BytesContent(nil), func(a serial.Args) (any, error) {
			var b []byte
			err := a.Decode(0, &b)
			return BytesContent(b), err
		}},
		{TagFileChecksum, FileChecksum{}, func(a serial.Args) (any, error) {
			var c FileChecksum
			if err := a.Decode(0, &c.Size); err != nil {
				return nil, err
			}
			err := a.Decode(1, &c.Sum)
			return c, err
		}},
		{TagFileTimestamp, FileTimestamp{}, func(a serial.Args) (any, error) {
			var c FileTimestamp
			if err := a.Decode(0, &c.Size); err != nil {
				return nil, err
			}
			err := a.Decode(1, &c.ModTime)
			return c, err
		}},
		{TagValue, BasicValue{}, func(a serial.Args) (any, error) {
			return decodeBasic(a)
		}},
		{TagStringValue, StringValue{}, func(a serial.Args) (any, error) {
			b, err := decodeBasic(a)
			if err != nil {
				return nil, err
			}
			return StringValue{b}, nil
		}},
		{TagFileValue, FileValue{}, func(a serial.Args) (any, error) {
			b, err := decodeBasic(a)
			if err != nil {
				return nil, err
			}
			var kind int
			if err := a.Decode(2, &kind); err != nil {
				return nil, err
			}
			return FileValue{BasicValue: b, kind: SignatureKind(kind)}, nil
		}},
	}

	for _, reg := range regs {
		if err := r.Register(reg.tag, reg.sample, reg.ctor); err != nil {
			return err
		}
	}
	return nil
}

func decodeBasic(a serial.Args) (BasicValue, error) {
	var name string
	if err := a.Decode(0, &name); err != nil {
		return BasicValue{}, fmt.Errorf("name: %w", err)
	}
	raw, err := a.Value(1)
	if err != nil {
		return BasicValue{}, err
	}
	content, ok := raw.(Content)
	if !ok {
		return BasicValue{}, fmt.Errorf("content of %q has type %T", name, raw)
	}
	return NewValue(name, content), nil
}

// NewRegistry returns a serial registry with the value classes registered.
func NewRegistry() *serial.Registry {
	r := serial.NewRegistry()
	if err := RegisterTypes(r); err != nil {
		panic(err)
	}
	return r
}

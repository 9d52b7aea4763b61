// Package values implements the leaf data model of the build core and the
// content-addressed store that decides whether a node is up to date.
//
// A Value is an immutable (name, content) pair. Values are kept in a Table
// indexed both by an external key and by the hash of their name, and the
// Table is persisted through a ValuesFile guarded by a sidecar file lock.
package values

import (
	"strings"

	"aqualid/internal/serial"
)

// nameSep cannot appear in file paths, so composite names never collide
// with plain path names.
const nameSep = "\x1f"

// CompositeName joins parts into a single value name.
func CompositeName(parts ...string) string {
	return strings.Join(parts, nameSep)
}

// SplitName is the inverse of CompositeName.
func SplitName(name string) []string {
	return strings.Split(name, nameSep)
}

// Value is a named build fact.
type Value interface {
	serial.Persistent

	Name() string
	Content() Content

	// Exists reports whether the content is not NoContent.
	Exists() bool

	// Actual reports whether the value still describes the world. Values
	// that mirror external state (files) re-check it here.
	Actual() bool

	Equal(other Value) bool
	String() string
}

// BasicValue is a Value with arbitrary content.
type BasicValue struct {
	name    string
	content Content
}

var _ Value = BasicValue{}

// NewValue returns a value; a nil content becomes NoContent.
func NewValue(name string, content Content) BasicValue {
	if content == nil {
		content = NoContent
	}
	return BasicValue{name: name, content: content}
}

func (v BasicValue) Name() string     { return v.name }
func (v BasicValue) Content() Content { return v.content }
func (v BasicValue) Exists() bool     { return !NoContent.Equal(v.content) }
func (v BasicValue) Actual() bool     { return true }
func (v BasicValue) String() string   { return v.name }
func (v BasicValue) NewArgs() []any   { return []any{v.name, v.content} }

// Equal compares name and content.
func (v BasicValue) Equal(other Value) bool {
	if other == nil {
		return false
	}
	return v.name == other.Name() && v.content.Equal(other.Content())
}

// StringValue carries text content, optionally compared case-insensitively.
type StringValue struct {
	BasicValue
}

// NewStringValue returns a case-sensitive string value.
func NewStringValue(name, s string) StringValue {
	return StringValue{BasicValue{name: name, content: StringContent(s)}}
}

// NewIgnoreCaseStringValue returns a string value whose content equality
// ignores case.
func NewIgnoreCaseStringValue(name, s string) StringValue {
	return StringValue{BasicValue{name: name, content: IgnoreCaseContent(s)}}
}

// Text returns the string payload, or "" when the value does not exist.
func (v StringValue) Text() string {
	switch c := v.content.(type) {
	case StringContent:
		return string(c)
	case IgnoreCaseContent:
		return string(c)
	}
	return ""
}

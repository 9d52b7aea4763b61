// Package serial binds persistable value classes to stable string tags.
//
// A registered value is encoded as a persistent-id record: its tag plus the
// constructor arguments returned by NewArgs. Loading looks the tag up and
// hands the arguments back to the registered constructor, so the on-disk
// format depends on tags chosen at registration time and not on Go package
// paths or struct layout.
package serial

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrUnknownType is returned when a record names a tag with no registered constructor.
	ErrUnknownType = errors.New("unknown persistent type")

	// ErrNotRegistered is returned when dumping a Persistent value whose type was never registered.
	ErrNotRegistered = errors.New("persistent type is not registered")

	// ErrDuplicateType is returned when a tag or a Go type is registered twice.
	ErrDuplicateType = errors.New("persistent type already registered")
)

const (
	tagField  = "$t"
	argsField = "$a"
)

// Persistent is implemented by every value that can be stored through a Registry.
type Persistent interface {
	// NewArgs returns the arguments the registered constructor needs to
	// rebuild an equal value.
	NewArgs() []any
}

// Constructor rebuilds a value from its persisted arguments.
type Constructor func(args Args) (any, error)

// DecodeError reports a failure to load a persistent-id record.
type DecodeError struct {
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Tag == "" {
		return fmt.Sprintf("decode persistent value: %v", e.Err)
	}
	return fmt.Sprintf("decode persistent value %q: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type record struct {
	Tag  string            `json:"$t"`
	Args []json.RawMessage `json:"$a"`
}

// Registry maps stable tags to constructors.
//
// It is safe for concurrent use. Registration normally happens once at
// start-up; Dumps and Loads only take the read lock.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	tags  map[reflect.Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[string]Constructor),
		tags:  make(map[reflect.Type]string),
	}
}

// Register binds tag to the dynamic type of sample.
func (r *Registry) Register(tag string, sample Persistent, ctor Constructor) error {
	if tag == "" {
		return errors.New("persistent type tag is required")
	}
	if sample == nil {
		return errors.New("persistent type sample is nil")
	}
	if ctor == nil {
		return fmt.Errorf("persistent type %q: nil constructor", tag)
	}

	typ := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[tag]; exists {
		return fmt.Errorf("%w: tag %q", ErrDuplicateType, tag)
	}
	if other, exists := r.tags[typ]; exists {
		return fmt.Errorf("%w: %s is already registered as %q", ErrDuplicateType, typ, other)
	}
	r.ctors[tag] = ctor
	r.tags[typ] = tag
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(tag string, sample Persistent, ctor Constructor) {
	if err := r.Register(tag, sample, ctor); err != nil {
		panic(err)
	}
}

// Tag returns the tag registered for the dynamic type of v.
func (r *Registry) Tag(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.tags[reflect.TypeOf(v)]
	return tag, ok
}

// Dumps encodes v. Registered values become persistent-id records, anything
// else is encoded as plain JSON.
func (r *Registry) Dumps(v any) ([]byte, error) {
	raw, err := r.encode(v)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// Loads decodes data produced by Dumps.
func (r *Registry) Loads(data []byte) (any, error) {
	return r.decode(json.RawMessage(data))
}

func (r *Registry) encode(v any) (json.RawMessage, error) {
	p, ok := v.(Persistent)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	tag, ok := r.Tag(v)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotRegistered, v)
	}

	args := p.NewArgs()
	rec := record{Tag: tag, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := r.encode(a)
		if err != nil {
			return nil, fmt.Errorf("encode %q argument %d: %w", tag, i, err)
		}
		rec.Args = append(rec.Args, raw)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Registry) decode(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &DecodeError{Err: err}
		}
		if rawTag, ok := fields[tagField]; ok {
			return r.decodeRecord(rawTag, fields[argsField])
		}
	}

	var out any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return out, nil
}

func (r *Registry) decodeRecord(rawTag, rawArgs json.RawMessage) (any, error) {
	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("invalid tag: %w", err)}
	}

	r.mu.RLock()
	ctor, ok := r.ctors[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &DecodeError{Tag: tag, Err: ErrUnknownType}
	}

	var args []json.RawMessage
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, &DecodeError{Tag: tag, Err: fmt.Errorf("invalid arguments: %w", err)}
		}
	}

	v, err := ctor(Args{reg: r, raw: args})
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Tag: tag, Err: err}
	}
	return v, nil
}

// Args gives a constructor access to the persisted arguments of one record.
type Args struct {
	reg *Registry
	raw []json.RawMessage
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.raw) }

// IsNull reports whether argument i is missing or JSON null.
func (a Args) IsNull(i int) bool {
	if i < 0 || i >= len(a.raw) {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(a.raw[i]), []byte("null"))
}

// Decode unmarshals plain argument i into dst.
func (a Args) Decode(i int, dst any) error {
	if i < 0 || i >= len(a.raw) {
		return fmt.Errorf("argument %d out of range (have %d)", i, len(a.raw))
	}
	return json.Unmarshal(a.raw[i], dst)
}

// Value decodes argument i, resolving nested persistent-id records.
func (a Args) Value(i int) (any, error) {
	if i < 0 || i >= len(a.raw) {
		return nil, fmt.Errorf("argument %d out of range (have %d)", i, len(a.raw))
	}
	return a.reg.decode(a.raw[i])
}

package serial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	x, y int
}

func (p point) NewArgs() []any { return []any{p.x, p.y} }

type labelled struct {
	label string
	at    point
}

func (l labelled) NewArgs() []any { return []any{l.label, l.at} }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register("Point", point{}, func(a Args) (any, error) {
		var p point
		if err := a.Decode(0, &p.x); err != nil {
			return nil, err
		}
		if err := a.Decode(1, &p.y); err != nil {
			return nil, err
		}
		return p, nil
	}))
	require.NoError(t, r.Register("Labelled", labelled{}, func(a Args) (any, error) {
		var l labelled
		if err := a.Decode(0, &l.label); err != nil {
			return nil, err
		}
		v, err := a.Value(1)
		if err != nil {
			return nil, err
		}
		p, ok := v.(point)
		if !ok {
			return nil, errors.New("argument 1 is not a point")
		}
		l.at = p
		return l, nil
	}))
	return r
}

func TestRegistry_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	data, err := r.Dumps(point{x: 3, y: -4})
	require.NoError(t, err)

	got, err := r.Loads(data)
	require.NoError(t, err)
	assert.Equal(t, point{x: 3, y: -4}, got)
}

func TestRegistry_NestedRecords(t *testing.T) {
	r := newTestRegistry(t)
	in := labelled{label: "origin", at: point{x: 1, y: 2}}

	data, err := r.Dumps(in)
	require.NoError(t, err)

	got, err := r.Loads(data)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestRegistry_PlainValues(t *testing.T) {
	r := NewRegistry()

	data, err := r.Dumps(map[string]any{"t": "not a record"})
	require.NoError(t, err)

	got, err := r.Loads(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"t": "not a record"}, got)
}

func TestRegistry_UnknownTypeOnLoad(t *testing.T) {
	writer := newTestRegistry(t)
	data, err := writer.Dumps(point{x: 1, y: 1})
	require.NoError(t, err)

	reader := NewRegistry()
	_, err = reader.Loads(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Point", de.Tag)
}

func TestRegistry_DumpUnregisteredPersistent(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dumps(point{})
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := newTestRegistry(t)
	ctor := func(Args) (any, error) { return point{}, nil }

	assert.ErrorIs(t, r.Register("Point", labelled{}, ctor), ErrDuplicateType)
	assert.ErrorIs(t, r.Register("Other", point{}, ctor), ErrDuplicateType)
}

func TestArgs_OutOfRange(t *testing.T) {
	a := Args{reg: NewRegistry()}
	var x int
	assert.Error(t, a.Decode(0, &x))
	_, err := a.Value(2)
	assert.Error(t, err)
	assert.True(t, a.IsNull(0))
}

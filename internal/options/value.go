package options

import (
	"errors"
	"fmt"
)

// Op is the operation of a conditional entry.
type Op int

const (
	OpSet Op = iota
	OpAdd
	OpSub
	OpCall
	// OpUpdate extends list values and replaces any other value. It is
	// produced by Options.Update.
	OpUpdate
)

func (op Op) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpCall:
		return "call"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// CallFunc computes a new accumulator from the current one.
type CallFunc func(acc any) (any, error)

// Ref is an entry payload that reads another option at resolution time.
type Ref string

// entry is one conditional entry. A nil cond always applies.
type entry struct {
	op      Op
	payload any
	cond    Predicate
}

// Value is an option value: a type and an ordered list of conditional
// entries. Its resolved value is the left fold of the applicable entries
// over the type default, converted by the type.
type Value struct {
	typ     Type
	entries []entry
}

// NewValue returns a value of type t with no entries.
func NewValue(t Type) *Value { return &Value{typ: t} }

func (v *Value) Type() Type { return v.typ }

// Len returns the number of conditional entries.
func (v *Value) Len() int { return len(v.entries) }

func (v *Value) Set(x any) error        { return v.appendChecked(OpSet, x) }
func (v *Value) Add(x any) error        { return v.appendChecked(OpAdd, x) }
func (v *Value) Sub(x any) error        { return v.appendChecked(OpSub, x) }
func (v *Value) Call(fn CallFunc) error { return v.appendChecked(OpCall, fn) }

// Resolve resolves a value that does not depend on other options.
func (v *Value) Resolve() (any, error) {
	return newContext(nil).resolve(v)
}

func (v *Value) clone() *Value {
	return &Value{typ: v.typ, entries: append([]entry(nil), v.entries...)}
}

// appendChecked appends an unconditional entry. If the value resolved before
// and the entry makes it fail with ErrInvalidOptionValue, the entry is
// dropped.
func (v *Value) appendChecked(op Op, x any) error {
	_, prev := v.Resolve()
	n := len(v.entries)
	if err := v.appendEntry(op, x, nil); err != nil {
		return err
	}
	if prev != nil {
		return nil
	}
	if _, err := v.Resolve(); errors.Is(err, ErrInvalidOptionValue) {
		v.entries = v.entries[:n]
		return err
	}
	return nil
}

// appendEntry validates the payload against the type and appends it. An
// invalid payload leaves the value unchanged.
func (v *Value) appendEntry(op Op, payload any, cond Predicate) error {
	if _, ok := payload.(Ref); ok && op != OpCall {
		v.entries = append(v.entries, entry{op: op, payload: payload, cond: cond})
		return nil
	}

	switch op {
	case OpSet:
		c, err := v.typ.Convert(payload)
		if err != nil {
			return err
		}
		payload = c
	case OpAdd:
		a, ok := v.typ.(Adder)
		if !ok {
			return &OptionError{Value: payload, Kind: ErrUnsupportedOperation, Msg: v.typ.Name() + " does not support add"}
		}
		c, err := a.Operand(payload)
		if err != nil {
			return err
		}
		payload = c
	case OpSub:
		s, ok := v.typ.(Subtracter)
		if !ok {
			return &OptionError{Value: payload, Kind: ErrUnsupportedOperation, Msg: v.typ.Name() + " does not support sub"}
		}
		c, err := s.Operand(payload)
		if err != nil {
			return err
		}
		payload = c
	case OpCall:
		if fn, ok := payload.(CallFunc); !ok || fn == nil {
			return &OptionError{Value: payload, Kind: ErrUnsupportedOperation, Msg: "call entry needs a CallFunc"}
		}
	case OpUpdate:
		other, ok := payload.(*Value)
		if !ok || other.typ != v.typ {
			return &OptionError{Value: payload, Kind: ErrInvalidOptionValue, Msg: "update needs a value of the same type"}
		}
	default:
		return &OptionError{Value: payload, Kind: ErrUnsupportedOperation, Msg: op.String()}
	}
	v.entries = append(v.entries, entry{op: op, payload: payload, cond: cond})
	return nil
}

// apply performs one entry on acc.
func (v *Value) apply(ctx *Context, acc any, e entry) (any, error) {
	payload := e.payload
	switch p := payload.(type) {
	case Ref:
		x, err := ctx.Value(string(p))
		if err != nil {
			return nil, err
		}
		payload = x
	case *Value:
		x, err := ctx.resolve(p)
		if err != nil {
			return nil, err
		}
		payload = x
	}

	switch e.op {
	case OpSet:
		return payload, nil
	case OpAdd:
		return v.typ.(Adder).Add(acc, payload)
	case OpSub:
		return v.typ.(Subtracter).Sub(acc, payload)
	case OpCall:
		return payload.(CallFunc)(acc)
	case OpUpdate:
		if l, ok := v.typ.(*ListType); ok {
			return l.Add(acc, payload)
		}
		return payload, nil
	}
	return acc, nil
}

// Context carries one resolution: it caches resolved values and holds the
// accumulator of every value being resolved. A condition that reads an
// option under resolution sees its accumulator as of the entries processed
// so far.
type Context struct {
	scope  *Options
	values map[*Value]any
}

func newContext(scope *Options) *Context {
	return &Context{scope: scope, values: make(map[*Value]any)}
}

// Value returns the resolved value of the named option.
func (c *Context) Value(name string) (any, error) {
	v, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.resolve(v)
}

// Type returns the type of the named option.
func (c *Context) Type(name string) (Type, error) {
	v, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	return v.typ, nil
}

func (c *Context) lookup(name string) (*Value, error) {
	if c.scope == nil {
		return nil, &OptionError{Option: name, Kind: ErrUnknownOption}
	}
	return c.scope.value(name)
}

func (c *Context) resolve(v *Value) (any, error) {
	if acc, ok := c.values[v]; ok {
		return acc, nil
	}

	acc := v.typ.Default()
	c.values[v] = acc
	for _, e := range v.entries {
		if e.cond != nil {
			ok, err := e.cond(c)
			if err != nil {
				delete(c.values, v)
				return nil, err
			}
			if !ok {
				continue
			}
		}
		next, err := v.apply(c, acc, e)
		if err != nil {
			delete(c.values, v)
			return nil, err
		}
		acc = next
		c.values[v] = acc
	}

	final, err := v.typ.Convert(acc)
	if err != nil {
		delete(c.values, v)
		return nil, err
	}
	c.values[v] = final
	return final, nil
}

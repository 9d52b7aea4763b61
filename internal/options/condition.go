package options

import (
	"fmt"
	"strings"
)

// Predicate is a condition evaluated against a resolution context.
type Predicate func(ctx *Context) (bool, error)

type ordering int

const (
	cmpEq ordering = iota
	cmpNe
	cmpLt
	cmpLe
	cmpGt
	cmpGe
)

// Eq holds when the named option equals v. Plain operands are converted
// with the option's type first, so enum aliases compare equal to their
// value. A Ref operand compares against another option.
func Eq(name string, v any) Predicate { return compare(name, cmpEq, v) }
func Ne(name string, v any) Predicate { return compare(name, cmpNe, v) }
func Lt(name string, v any) Predicate { return compare(name, cmpLt, v) }
func Le(name string, v any) Predicate { return compare(name, cmpLe, v) }
func Gt(name string, v any) Predicate { return compare(name, cmpGt, v) }
func Ge(name string, v any) Predicate { return compare(name, cmpGe, v) }

// In holds when the named option equals one of vs.
func In(name string, vs ...any) Predicate {
	ps := make([]Predicate, len(vs))
	for i, v := range vs {
		ps[i] = Eq(name, v)
	}
	return Or(ps...)
}

// Has holds when the named list option contains v, or the named string
// option contains v as a substring.
func Has(name string, v any) Predicate {
	return func(ctx *Context) (bool, error) {
		t, err := ctx.Type(name)
		if err != nil {
			return false, err
		}
		cur, err := ctx.Value(name)
		if err != nil {
			return false, err
		}
		x, err := operandValue(ctx, v)
		if err != nil {
			return false, err
		}

		switch t := t.(type) {
		case *ListType:
			if c, err := t.Elem().Convert(x); err == nil {
				x = c
			}
			return t.Contains(cur, x), nil
		default:
			s, ok1 := cur.(string)
			sub, ok2 := toString(x)
			if !ok1 || !ok2 {
				return false, &OptionError{Option: name, Value: v, Kind: ErrUnsupportedOperation, Msg: "has needs a list or string option"}
			}
			return strings.Contains(s, sub), nil
		}
	}
}

// And holds when every predicate holds. Nil predicates are ignored.
func And(ps ...Predicate) Predicate {
	return func(ctx *Context) (bool, error) {
		for _, p := range ps {
			if p == nil {
				continue
			}
			ok, err := p(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Or holds when any predicate holds.
func Or(ps ...Predicate) Predicate {
	return func(ctx *Context) (bool, error) {
		for _, p := range ps {
			if p == nil {
				continue
			}
			ok, err := p(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

func Not(p Predicate) Predicate {
	return func(ctx *Context) (bool, error) {
		ok, err := p(ctx)
		return !ok && err == nil, err
	}
}

func operandValue(ctx *Context, v any) (any, error) {
	if r, ok := v.(Ref); ok {
		return ctx.Value(string(r))
	}
	return v, nil
}

func compare(name string, op ordering, v any) Predicate {
	return func(ctx *Context) (bool, error) {
		t, err := ctx.Type(name)
		if err != nil {
			return false, err
		}
		cur, err := ctx.Value(name)
		if err != nil {
			return false, err
		}
		x, err := operandValue(ctx, v)
		if err != nil {
			return false, err
		}
		if _, isRef := v.(Ref); !isRef {
			if c, err := t.Convert(x); err == nil {
				x = c
			}
		}

		switch op {
		case cmpEq:
			return Equal(t, cur, x), nil
		case cmpNe:
			return !Equal(t, cur, x), nil
		}

		n, err := order(cur, x)
		if err != nil {
			return false, &OptionError{Option: name, Value: v, Kind: ErrUnsupportedOperation, Msg: err.Error()}
		}
		switch op {
		case cmpLt:
			return n < 0, nil
		case cmpLe:
			return n <= 0, nil
		case cmpGt:
			return n > 0, nil
		default:
			return n >= 0, nil
		}
	}
}

func order(a, b any) (int, error) {
	if x, ok := toInt(a); ok {
		if y, ok := toInt(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	}
	return 0, fmt.Errorf("can't order %T and %T", a, b)
}

// Term is a condition under construction: a named option awaiting a
// comparison.
type Term struct {
	o    *Options
	pred Predicate
	name string
}

// When starts a condition on the named option.
func (o *Options) When(name string) *Term {
	return &Term{o: o, name: name}
}

func (t *Term) then(p Predicate) *Conditional {
	if t.pred != nil {
		p = And(t.pred, p)
	}
	return &Conditional{o: t.o, pred: p}
}

func (t *Term) Eq(v any) *Conditional { return t.then(Eq(t.name, v)) }
func (t *Term) Ne(v any) *Conditional { return t.then(Ne(t.name, v)) }
func (t *Term) Lt(v any) *Conditional { return t.then(Lt(t.name, v)) }
func (t *Term) Le(v any) *Conditional { return t.then(Le(t.name, v)) }
func (t *Term) Gt(v any) *Conditional { return t.then(Gt(t.name, v)) }
func (t *Term) Ge(v any) *Conditional { return t.then(Ge(t.name, v)) }
func (t *Term) In(vs ...any) *Conditional { return t.then(In(t.name, vs...)) }
func (t *Term) Has(v any) *Conditional { return t.then(Has(t.name, v)) }

// Conditional appends entries guarded by a predicate.
type Conditional struct {
	o    *Options
	pred Predicate
}

// If returns a handle whose entries apply when every predicate holds.
func (o *Options) If(preds ...Predicate) *Conditional {
	return &Conditional{o: o, pred: And(preds...)}
}

// When adds another condition that must also hold.
func (c *Conditional) When(name string) *Term {
	return &Term{o: c.o, pred: c.pred, name: name}
}

func (c *Conditional) Set(name string, x any) error {
	return c.o.appendEntry(name, OpSet, x, c.pred)
}

func (c *Conditional) Append(name string, x any) error {
	return c.o.appendEntry(name, OpAdd, x, c.pred)
}

func (c *Conditional) Remove(name string, x any) error {
	return c.o.appendEntry(name, OpSub, x, c.pred)
}

func (c *Conditional) Call(name string, fn CallFunc) error {
	return c.o.appendEntry(name, OpCall, fn, c.pred)
}

func (c *Conditional) SetRef(name, other string) error {
	if !c.o.Has(other) {
		return &OptionError{Option: other, Kind: ErrUnknownOption}
	}
	return c.o.appendEntry(name, OpSet, Ref(other), c.pred)
}

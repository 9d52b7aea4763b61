// Package options implements typed build options whose values are built
// from conditional entries.
//
// An Options scope maps names to option values stored in an arena shared by
// the scope, its overrides and its copies. Several names may hold the same
// value id (aliases). Every write appends a conditional entry; reads fold
// the applicable entries over the type default. An override reads through
// to its parent until it writes: the first write to a parent value clones
// it into the override, so the parent never observes the override's
// changes.
//
// Scopes are not safe for concurrent use.
package options

import (
	"errors"
	"sort"
)

type valueID int

type arena struct {
	values []*Value
}

func (a *arena) add(v *Value) valueID {
	a.values = append(a.values, v)
	return valueID(len(a.values) - 1)
}

// Options is a scope of named options.
type Options struct {
	parent *Options
	arena  *arena
	names  map[string]valueID
	owned  map[valueID]bool
	// remap redirects parent value ids cloned by this scope.
	remap map[valueID]valueID
}

func New() *Options {
	return newScope(nil, &arena{})
}

func newScope(parent *Options, a *arena) *Options {
	return &Options{
		parent: parent,
		arena:  a,
		names:  make(map[string]valueID),
		owned:  make(map[valueID]bool),
		remap:  make(map[valueID]valueID),
	}
}

// Override returns a child scope that reads through to o until it writes.
func (o *Options) Override() *Options {
	return newScope(o, o.arena)
}

// Parent returns the scope o overrides, or nil.
func (o *Options) Parent() *Options { return o.parent }

func (o *Options) lookup(name string) (valueID, bool) {
	id, ok := o.names[name]
	if !ok {
		if o.parent == nil {
			return 0, false
		}
		if id, ok = o.parent.lookup(name); !ok {
			return 0, false
		}
	}
	if r, ok := o.remap[id]; ok {
		return r, true
	}
	return id, true
}

func (o *Options) value(name string) (*Value, error) {
	id, ok := o.lookup(name)
	if !ok {
		return nil, &OptionError{Option: name, Kind: ErrUnknownOption}
	}
	return o.arena.values[id], nil
}

// mutate applies fn to the value of name. A value this scope does not own
// is cloned first, and the clone is installed only when fn succeeds.
//
// With check set, a value that resolved before must still resolve after fn:
// a change that makes it fail with ErrInvalidOptionValue is undone.
func (o *Options) mutate(name string, check bool, fn func(*Value) error) error {
	id, ok := o.lookup(name)
	if !ok {
		return &OptionError{Option: name, Kind: ErrUnknownOption}
	}
	v := o.arena.values[id]

	var prev error
	if check {
		_, prev = newContext(o).resolve(v)
	}

	var undo func()
	if o.owned[id] {
		n := len(v.entries)
		if err := fn(v); err != nil {
			return withOption(name, err)
		}
		undo = func() { v.entries = v.entries[:n] }
	} else {
		c := v.clone()
		if err := fn(c); err != nil {
			return withOption(name, err)
		}
		cid := o.arena.add(c)
		o.owned[cid] = true
		o.remap[id] = cid
		undo = func() {
			delete(o.remap, id)
			delete(o.owned, cid)
		}
	}

	if check && prev == nil {
		cur, _ := o.value(name)
		if _, err := newContext(o).resolve(cur); errors.Is(err, ErrInvalidOptionValue) {
			undo()
			return withOption(name, err)
		}
	}
	return nil
}

// Add installs a new option of type t.
func (o *Options) Add(name string, t Type) error {
	if t == nil {
		return &OptionError{Option: name, Kind: ErrInvalidOptionValue, Msg: "nil type"}
	}
	if o.Has(name) {
		return &OptionError{Option: name, Kind: ErrOptionExists}
	}
	id := o.arena.add(NewValue(t))
	o.owned[id] = true
	o.names[name] = id
	return nil
}

// Alias makes name refer to the same value as target. Writes through
// either name are visible through both.
func (o *Options) Alias(name, target string) error {
	tid, ok := o.lookup(target)
	if !ok {
		return &OptionError{Option: target, Kind: ErrUnknownOption}
	}
	if id, ok := o.lookup(name); ok {
		if id == tid {
			return nil
		}
		return &OptionError{Option: name, Kind: ErrOptionExists, Msg: "can't alias " + target}
	}
	o.names[name] = tid
	return nil
}

// Set appends an unconditional set entry.
func (o *Options) Set(name string, x any) error {
	return o.appendEntry(name, OpSet, x, nil)
}

// Append appends an unconditional add entry (+=).
func (o *Options) Append(name string, x any) error {
	return o.appendEntry(name, OpAdd, x, nil)
}

// Remove appends an unconditional sub entry (-=).
func (o *Options) Remove(name string, x any) error {
	return o.appendEntry(name, OpSub, x, nil)
}

// Call appends an unconditional call entry.
func (o *Options) Call(name string, fn CallFunc) error {
	return o.appendEntry(name, OpCall, fn, nil)
}

// SetString parses free-form input with the option's type and sets it.
func (o *Options) SetString(name, s string) error {
	v, err := o.value(name)
	if err != nil {
		return err
	}
	x, err := v.typ.Parse(s)
	if err != nil {
		return withOption(name, err)
	}
	return o.Set(name, x)
}

// SetRef sets name to the resolved value of other.
func (o *Options) SetRef(name, other string) error {
	if !o.Has(other) {
		return &OptionError{Option: other, Kind: ErrUnknownOption}
	}
	return o.appendEntry(name, OpSet, Ref(other), nil)
}

func (o *Options) appendEntry(name string, op Op, x any, cond Predicate) error {
	return o.mutate(name, cond == nil, func(v *Value) error { return v.appendEntry(op, x, cond) })
}

// Get resolves the named option.
func (o *Options) Get(name string) (any, error) {
	v, err := o.value(name)
	if err != nil {
		return nil, err
	}
	x, err := newContext(o).resolve(v)
	return x, withOption(name, err)
}

// GetString resolves the named option and formats it with its type.
func (o *Options) GetString(name string) (string, error) {
	v, err := o.value(name)
	if err != nil {
		return "", err
	}
	x, err := newContext(o).resolve(v)
	if err != nil {
		return "", withOption(name, err)
	}
	return v.typ.Format(x), nil
}

func (o *Options) Has(name string) bool {
	_, ok := o.lookup(name)
	return ok
}

// Type returns the type of the named option.
func (o *Options) Type(name string) (Type, error) {
	v, err := o.value(name)
	if err != nil {
		return nil, err
	}
	return v.typ, nil
}

// Names returns every visible option name in lexical order.
func (o *Options) Names() []string {
	set := make(map[string]struct{})
	for s := o; s != nil; s = s.parent {
		for name := range s.names {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot resolves every option within one resolution context.
func (o *Options) Snapshot() (map[string]any, error) {
	ctx := newContext(o)
	out := make(map[string]any)
	for _, name := range o.Names() {
		v, _ := o.value(name)
		x, err := ctx.resolve(v)
		if err != nil {
			return nil, withOption(name, err)
		}
		out[name] = x
	}
	return out, nil
}

// Copy returns a scope with the same parent whose own values are cloned.
// Aliases among the cloned values are preserved.
func (o *Options) Copy() *Options {
	c := newScope(o.parent, o.arena)
	ids := make(map[valueID]valueID)
	clone := func(id valueID) valueID {
		if n, ok := ids[id]; ok {
			return n
		}
		n := o.arena.add(o.arena.values[id].clone())
		ids[id] = n
		c.owned[n] = true
		return n
	}

	for name, id := range o.names {
		if o.owned[id] {
			id = clone(id)
		}
		c.names[name] = id
	}
	for from, to := range o.remap {
		c.remap[from] = clone(to)
	}
	return c
}

// Update merges other into o. Options o lacks are installed as clones;
// options both have receive an update entry that extends lists and
// replaces other values with other's resolution.
func (o *Options) Update(other *Options) error {
	if other == nil || other == o {
		return nil
	}

	installed := make(map[*Value]valueID)
	type pair struct{ dst, src *Value }
	merged := make(map[pair]bool)

	for _, name := range other.Names() {
		src, _ := other.value(name)
		if !o.Has(name) {
			id, ok := installed[src]
			if !ok {
				id = o.arena.add(src.clone())
				o.owned[id] = true
				installed[src] = id
			}
			o.names[name] = id
			continue
		}

		dst, _ := o.value(name)
		if dst == src || merged[pair{dst, src}] {
			continue
		}
		err := o.mutate(name, false, func(v *Value) error { return v.appendEntry(OpUpdate, src.clone(), nil) })
		if err != nil {
			return err
		}
		dst, _ = o.value(name)
		merged[pair{dst, src}] = true
	}
	return nil
}

package options

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type describes the domain of an option: its default, the conversion of
// loosely typed input into a canonical value, formatting and help.
type Type interface {
	// Name is the human readable type name used in help and errors.
	Name() string
	Default() any
	Convert(v any) (any, error)
	// Parse converts free-form user input, such as a --set argument.
	Parse(s string) (any, error)
	Format(v any) string
	HelpRange() []string
	Description() string
	Group() string
}

// Adder is implemented by types that support the add operation.
type Adder interface {
	// Operand converts the payload of an add or sub entry.
	Operand(v any) (any, error)
	Add(acc, v any) (any, error)
}

// Subtracter is implemented by types that support the sub operation.
type Subtracter interface {
	Operand(v any) (any, error)
	Sub(acc, v any) (any, error)
}

// Arith is implemented by types that support both add and sub.
type Arith interface {
	Adder
	Subtracter
}

type equaler interface {
	Equal(a, b any) bool
}

// Equal compares two canonical values of t.
func Equal(t Type, a, b any) bool {
	if e, ok := t.(equaler); ok {
		return e.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// base carries the attributes shared by every type.
type base struct {
	description string
	group       string
	hidden      bool
	def         any
	hasDef      bool
}

func (b *base) Description() string { return b.description }
func (b *base) Group() string { return b.group }
func (b *base) info() *base { return b }

type described interface {
	info() *base
}

// TypeOption configures the attributes shared by every type.
type TypeOption func(*base)

// WithDescription sets the help description. Options without a
// description are left out of the help text.
func WithDescription(s string) TypeOption { return func(b *base) { b.description = s } }

// WithGroup sets the help group.
func WithGroup(s string) TypeOption { return func(b *base) { b.group = s } }

// Hidden leaves the option out of the help text.
func Hidden() TypeOption { return func(b *base) { b.hidden = true } }

func apply(b *base, opts []TypeOption) {
	for _, opt := range opts {
		opt(b)
	}
}

// SetDefault converts v with t and makes it t's default.
func SetDefault(t Type, v any) error {
	d, ok := t.(described)
	if !ok {
		return &OptionError{Value: v, Kind: ErrUnsupportedOperation, Msg: fmt.Sprintf("%T has no settable default", t)}
	}
	c, err := t.Convert(v)
	if err != nil {
		return err
	}
	b := d.info()
	b.def, b.hasDef = c, true
	return nil
}

// SetGroup moves t into a help group.
func SetGroup(t Type, group string) {
	if d, ok := t.(described); ok {
		d.info().group = group
	}
}

func isHidden(t Type) bool {
	if d, ok := t.(described); ok && d.info().hidden {
		return true
	}
	return t.Description() == ""
}

//---------------------------------------------------------------------------
// Bool

var (
	defaultTrueWords  = []string{"yes", "true", "on", "enabled", "y", "1", "t"}
	defaultFalseWords = []string{"no", "false", "off", "disabled", "n", "0", "f"}
)

// BoolType accepts booleans, integers and a configurable set of words.
type BoolType struct {
	base
	trueWord, falseWord   string
	trueWords, falseWords map[string]bool
}

func NewBool(opts ...TypeOption) *BoolType {
	t := &BoolType{
		trueWord:   "true",
		falseWord:  "false",
		trueWords:  make(map[string]bool),
		falseWords: make(map[string]bool),
	}
	apply(&t.base, opts)
	t.AddWords(defaultTrueWords, defaultFalseWords)
	return t
}

// SetStyle sets the words used to format true and false.
func (t *BoolType) SetStyle(trueWord, falseWord string) *BoolType {
	t.trueWord, t.falseWord = trueWord, falseWord
	t.AddWords([]string{trueWord}, []string{falseWord})
	return t
}

// AddWords extends the accepted words. Matching ignores case.
func (t *BoolType) AddWords(trueWords, falseWords []string) {
	for _, w := range trueWords {
		t.trueWords[strings.ToLower(w)] = true
	}
	for _, w := range falseWords {
		t.falseWords[strings.ToLower(w)] = true
	}
}

func (t *BoolType) Name() string { return "Boolean" }

func (t *BoolType) Default() any {
	if t.hasDef {
		return t.def
	}
	return false
}

func (t *BoolType) Convert(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		w := strings.ToLower(strings.TrimSpace(x))
		switch {
		case t.trueWords[w]:
			return true, nil
		case t.falseWords[w]:
			return false, nil
		}
		return nil, invalidValue(t, v, "unknown word")
	}
	if n, ok := toInt(v); ok {
		return n != 0, nil
	}
	return nil, invalidValue(t, v, "not a boolean")
}

func (t *BoolType) Parse(s string) (any, error) { return t.Convert(s) }

func (t *BoolType) Format(v any) string {
	if b, _ := v.(bool); b {
		return t.trueWord
	}
	return t.falseWord
}

func (t *BoolType) HelpRange() []string {
	return []string{wordsHelp(t.trueWord, t.trueWords), wordsHelp(t.falseWord, t.falseWords)}
}

func wordsHelp(word string, words map[string]bool) string {
	others := make([]string, 0, len(words))
	for w := range words {
		if w != strings.ToLower(word) {
			others = append(others, w)
		}
	}
	if len(others) == 0 {
		return word
	}
	sort.Strings(others)
	return fmt.Sprintf("%s (or %s)", word, strings.Join(others, ", "))
}

//---------------------------------------------------------------------------
// Int

// IntType is an unbounded integer.
type IntType struct {
	base
}

func NewInt(opts ...TypeOption) *IntType {
	t := &IntType{}
	apply(&t.base, opts)
	return t
}

func (t *IntType) Name() string { return "Integer" }

func (t *IntType) Default() any {
	if t.hasDef {
		return t.def
	}
	return 0
}

func (t *IntType) Convert(v any) (any, error) {
	n, ok := toInt(v)
	if !ok {
		return nil, invalidValue(t, v, "not an integer")
	}
	return n, nil
}

func (t *IntType) Parse(s string) (any, error) { return t.Convert(s) }
func (t *IntType) Format(v any) string { return fmt.Sprint(v) }
func (t *IntType) HelpRange() []string { return nil }
func (t *IntType) Operand(v any) (any, error) { return t.Convert(v) }
func (t *IntType) Add(acc, v any) (any, error) { return intOp(t, acc, v, 1) }
func (t *IntType) Sub(acc, v any) (any, error) { return intOp(t, acc, v, -1) }

func intOp(t Type, acc, v any, sign int) (any, error) {
	a, ok := toInt(acc)
	if !ok {
		return nil, invalidValue(t, acc, "not an integer")
	}
	b, ok := toInt(v)
	if !ok {
		return nil, invalidValue(t, v, "not an integer")
	}
	return a + sign*b, nil
}

//---------------------------------------------------------------------------
// Range

// RangeType is an integer limited to [min, max]. With fix set, values
// outside the range are clamped to the nearest endpoint instead of
// rejected.
type RangeType struct {
	base
	min, max int
	fix      bool
}

func NewRange(min, max int, fix bool, opts ...TypeOption) *RangeType {
	if min > max {
		min, max = max, min
	}
	t := &RangeType{min: min, max: max, fix: fix}
	apply(&t.base, opts)
	return t
}

func (t *RangeType) Min() int { return t.min }
func (t *RangeType) Max() int { return t.max }
func (t *RangeType) Fix() bool { return t.fix }

func (t *RangeType) Name() string { return "Integer" }

func (t *RangeType) Default() any {
	if t.hasDef {
		return t.def
	}
	return t.min
}

func (t *RangeType) Convert(v any) (any, error) {
	n, ok := toInt(v)
	if !ok {
		return nil, invalidValue(t, v, "not an integer")
	}
	if n < t.min || n > t.max {
		if !t.fix {
			return nil, invalidValue(t, v, "out of range "+t.HelpRange()[0])
		}
		n = max(t.min, min(n, t.max))
	}
	return n, nil
}

func (t *RangeType) Parse(s string) (any, error) { return t.Convert(s) }
func (t *RangeType) Format(v any) string { return fmt.Sprint(v) }

func (t *RangeType) HelpRange() []string {
	return []string{fmt.Sprintf("%d ... %d", t.min, t.max)}
}

// Operand converts without range checks: the range applies to the
// resolved value only.
func (t *RangeType) Operand(v any) (any, error) {
	n, ok := toInt(v)
	if !ok {
		return nil, invalidValue(t, v, "not an integer")
	}
	return n, nil
}

func (t *RangeType) Add(acc, v any) (any, error) { return intOp(t, acc, v, 1) }
func (t *RangeType) Sub(acc, v any) (any, error) { return intOp(t, acc, v, -1) }

//---------------------------------------------------------------------------
// Str

// StrType is a free-form string, optionally compared without case.
type StrType struct {
	base
	ignoreCase bool
}

func NewStr(ignoreCase bool, opts ...TypeOption) *StrType {
	t := &StrType{ignoreCase: ignoreCase}
	apply(&t.base, opts)
	return t
}

func (t *StrType) Name() string {
	if t.ignoreCase {
		return "Case Insensitive String"
	}
	return "String"
}

func (t *StrType) Default() any {
	if t.hasDef {
		return t.def
	}
	return ""
}

func (t *StrType) Convert(v any) (any, error) {
	s, ok := toString(v)
	if !ok {
		return nil, invalidValue(t, v, "not a string")
	}
	return s, nil
}

func (t *StrType) Parse(s string) (any, error) { return s, nil }
func (t *StrType) Format(v any) string { return fmt.Sprint(v) }
func (t *StrType) HelpRange() []string { return nil }

func (t *StrType) Equal(a, b any) bool {
	sa, _ := a.(string)
	sb, _ := b.(string)
	if t.ignoreCase {
		return strings.EqualFold(sa, sb)
	}
	return sa == sb
}

func (t *StrType) Operand(v any) (any, error) { return t.Convert(v) }

func (t *StrType) Add(acc, v any) (any, error) {
	a, _ := toString(acc)
	b, _ := toString(v)
	return a + b, nil
}

//---------------------------------------------------------------------------
// Enum

// EnumType is a closed set of string values, each with optional aliases.
// Conversion maps an alias to its value. Matching ignores case unless
// CaseSensitive is set.
type EnumType struct {
	base
	caseSensitive bool
	lenient       bool
	values        []string
	index         map[string]string
	aliases       map[string][]string
}

func NewEnum(opts ...TypeOption) *EnumType {
	t := &EnumType{
		index:   make(map[string]string),
		aliases: make(map[string][]string),
	}
	apply(&t.base, opts)
	return t
}

// CaseSensitive switches case-sensitive matching. Call it before adding values.
func (t *EnumType) CaseSensitive(on bool) *EnumType {
	t.caseSensitive = on
	return t
}

// Lenient makes Convert pass unknown strings through unchanged.
func (t *EnumType) Lenient(on bool) *EnumType {
	t.lenient = on
	return t
}

func (t *EnumType) key(s string) string {
	if t.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// AddValue registers value and its aliases. If value is already an alias,
// the aliases attach to the value it names. Binding an alias that already
// names a different value fails with ErrEnumAliasAlreadySet; using a
// registered value as an alias of another fails with ErrEnumValueAlreadySet.
// A failed call changes nothing.
func (t *EnumType) AddValue(value string, aliases ...string) error {
	canon, known := t.index[t.key(value)]
	if !known {
		canon = value
	}

	for _, a := range aliases {
		cur, ok := t.index[t.key(a)]
		if !ok || t.key(cur) == t.key(canon) {
			continue
		}
		if t.key(cur) == t.key(a) {
			return &OptionError{Value: a, Kind: ErrEnumValueAlreadySet,
				Msg: fmt.Sprintf("value %q can't become an alias of %q", a, canon)}
		}
		return &OptionError{Value: a, Kind: ErrEnumAliasAlreadySet,
			Msg: fmt.Sprintf("alias %q can't be changed to %q from %q", a, canon, cur)}
	}

	if !known {
		t.index[t.key(value)] = canon
		t.values = append(t.values, canon)
	}
	for _, a := range aliases {
		if _, ok := t.index[t.key(a)]; ok {
			continue
		}
		t.index[t.key(a)] = canon
		t.aliases[canon] = append(t.aliases[canon], a)
	}
	return nil
}

// Values returns the registered values in registration order.
func (t *EnumType) Values() []string {
	return append([]string(nil), t.values...)
}

func (t *EnumType) Name() string { return "Enum" }

func (t *EnumType) Default() any {
	if t.hasDef {
		return t.def
	}
	if len(t.values) > 0 {
		return t.values[0]
	}
	return ""
}

func (t *EnumType) Convert(v any) (any, error) {
	s, ok := toString(v)
	if !ok {
		return nil, invalidValue(t, v, "not a string")
	}
	if canon, ok := t.index[t.key(s)]; ok {
		return canon, nil
	}
	if t.lenient {
		return s, nil
	}
	if len(t.values) == 0 {
		return nil, invalidValue(t, v, "enum has no values")
	}
	return nil, invalidValue(t, v, "one of "+strings.Join(t.values, ", "))
}

func (t *EnumType) Parse(s string) (any, error) { return t.Convert(s) }
func (t *EnumType) Format(v any) string { return fmt.Sprint(v) }

func (t *EnumType) Equal(a, b any) bool {
	sa, _ := a.(string)
	sb, _ := b.(string)
	return t.key(sa) == t.key(sb)
}

func (t *EnumType) HelpRange() []string {
	out := make([]string, 0, len(t.values))
	for _, v := range t.values {
		if as := t.aliases[v]; len(as) > 0 {
			out = append(out, fmt.Sprintf("%s (or %s)", v, strings.Join(as, ", ")))
			continue
		}
		out = append(out, v)
	}
	return out
}

//---------------------------------------------------------------------------
// List

// DefaultSeparators split free-form list input.
const DefaultSeparators = ", "

// ListType is a list of elements of another type. Canonical values are
// []any holding canonical element values.
type ListType struct {
	base
	elem       Type
	unique     bool
	separators string
}

// NewList returns a list of elem. Description and group default to the
// element type's.
func NewList(elem Type, unique bool, opts ...TypeOption) *ListType {
	t := &ListType{elem: elem, unique: unique, separators: DefaultSeparators}
	if d := elem.Description(); d != "" {
		t.description = "List of: " + d
	}
	t.group = elem.Group()
	apply(&t.base, opts)
	return t
}

// SetSeparators sets the characters that split string input.
func (t *ListType) SetSeparators(seps string) *ListType {
	t.separators = seps
	return t
}

func (t *ListType) Elem() Type { return t.elem }
func (t *ListType) Unique() bool { return t.unique }

func (t *ListType) Name() string { return "List of " + t.elem.Name() }

func (t *ListType) Default() any {
	if t.hasDef {
		return append([]any(nil), t.def.([]any)...)
	}
	return []any{}
}

func (t *ListType) Convert(v any) (any, error) {
	var raw []any
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case string:
		for _, f := range strings.FieldsFunc(x, func(r rune) bool { return strings.ContainsRune(t.separators, r) }) {
			raw = append(raw, f)
		}
	case []any:
		raw = x
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			raw = make([]any, rv.Len())
			for i := range raw {
				raw[i] = rv.Index(i).Interface()
			}
		} else {
			raw = []any{v}
		}
	}

	out := make([]any, 0, len(raw))
	for _, r := range raw {
		c, err := t.elem.Convert(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if t.unique {
		out = t.dedupe(out)
	}
	return out, nil
}

func (t *ListType) dedupe(in []any) []any {
	out := in[:0:0]
	for _, v := range in {
		if !t.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether list holds an element equal to v.
func (t *ListType) Contains(list any, v any) bool {
	items, _ := list.([]any)
	for _, it := range items {
		if Equal(t.elem, it, v) {
			return true
		}
	}
	return false
}

func (t *ListType) Parse(s string) (any, error) { return t.Convert(s) }

func (t *ListType) Format(v any) string {
	items, _ := v.([]any)
	sep := ", "
	if t.separators != "" && !strings.Contains(t.separators, ",") {
		sep = t.separators[:1]
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = t.elem.Format(it)
	}
	return strings.Join(parts, sep)
}

func (t *ListType) HelpRange() []string { return t.elem.HelpRange() }

func (t *ListType) Equal(a, b any) bool {
	la, _ := a.([]any)
	lb, _ := b.([]any)
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if !Equal(t.elem, la[i], lb[i]) {
			return false
		}
	}
	return true
}

func (t *ListType) Operand(v any) (any, error) { return t.Convert(v) }

func (t *ListType) Add(acc, v any) (any, error) {
	a, err := t.Convert(acc)
	if err != nil {
		return nil, err
	}
	b, err := t.Convert(v)
	if err != nil {
		return nil, err
	}
	out := append(append([]any(nil), a.([]any)...), b.([]any)...)
	if t.unique {
		out = t.dedupe(out)
	}
	return out, nil
}

func (t *ListType) Sub(acc, v any) (any, error) {
	a, err := t.Convert(acc)
	if err != nil {
		return nil, err
	}
	b, err := t.Convert(v)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(a.([]any)))
	for _, it := range a.([]any) {
		if !t.Contains(b, it) {
			out = append(out, it)
		}
	}
	return out, nil
}

//---------------------------------------------------------------------------

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		return int(x), true
	case float32:
		return toInt(float64(x))
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	if _, ok := toInt(v); ok {
		return fmt.Sprint(v), true
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	return "", false
}

var (
	_ Arith = (*IntType)(nil)
	_ Arith = (*RangeType)(nil)
	_ Arith = (*ListType)(nil)
	_ Adder = (*StrType)(nil)
)

package options

import (
	"fmt"
	"sort"
	"strings"
)

const defaultGroup = "Options"

type helpItem struct {
	names []string
	value *Value
}

// Help returns help text for every described, visible option, grouped by
// type group. Aliases share one entry.
func (o *Options) Help() string {
	ctx := newContext(o)

	byValue := make(map[*Value]*helpItem)
	groups := make(map[string][]*helpItem)
	for _, name := range o.Names() {
		v, _ := o.value(name)
		if isHidden(v.typ) {
			continue
		}
		it, ok := byValue[v]
		if !ok {
			it = &helpItem{value: v}
			byValue[v] = it
			g := v.typ.Group()
			if g == "" {
				g = defaultGroup
			}
			groups[g] = append(groups[g], it)
		}
		it.names = append(it.names, name)
	}

	titles := make([]string, 0, len(groups))
	for g := range groups {
		titles = append(titles, g)
	}
	sort.Strings(titles)

	var b strings.Builder
	for i, title := range titles {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s:\n%s\n", title, strings.Repeat("-", len(title)+1))

		items := groups[title]
		width := 0
		for _, it := range items {
			sort.Slice(it.names, func(a, c int) bool {
				return strings.ToLower(it.names[a]) < strings.ToLower(it.names[c])
			})
			for _, n := range it.names {
				width = max(width, len(n)+2)
			}
		}
		sort.Slice(items, func(a, c int) bool {
			return strings.ToLower(items[a].names[0]) < strings.ToLower(items[c].names[0])
		})

		for _, it := range items {
			for _, line := range it.lines(ctx, width+1) {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func (it *helpItem) lines(ctx *Context, width int) []string {
	t := it.value.typ

	details := []string{currentText(ctx, it.value)}
	if d := t.Description(); d != "" {
		details = append(details, d)
	}
	details = append(details, "Type: "+t.Name())
	if r := t.HelpRange(); len(r) > 0 {
		details = append(details, indentItems("Allowed values: ", r)...)
	}
	details = indentItems(": ", details)

	left := make([]string, len(it.names))
	for i, n := range it.names {
		left[i] = "  " + n
	}

	out := make([]string, max(len(left), len(details)))
	for i := range out {
		var l, r string
		if i < len(left) {
			l = left[i]
		}
		if i < len(details) {
			r = details[i]
		}
		if r == "" {
			out[i] = l
			continue
		}
		out[i] = l + strings.Repeat(" ", max(1, width-len(l))) + r
	}
	return out
}

func currentText(ctx *Context, v *Value) string {
	x, err := ctx.resolve(v)
	if err != nil {
		return "N/A"
	}
	if l, ok := v.typ.(*ListType); ok {
		items, _ := x.([]any)
		if len(items) == 0 {
			return "[]"
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = "'" + l.Elem().Format(item) + "'"
		}
		return "[ " + strings.Join(parts, ", ") + " ]"
	}
	if s := v.typ.Format(x); s != "" {
		return s
	}
	return "''"
}

// indentItems prefixes the first value and aligns the rest under it.
func indentItems(prefix string, values []string) []string {
	out := make([]string, len(values))
	pad := strings.Repeat(" ", len(prefix))
	for i, v := range values {
		if i == 0 {
			out[i] = prefix + v
		} else {
			out[i] = pad + v
		}
	}
	return out
}

package values

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key is the external key of a table entry.
type Key uint64

// Entry is one stored (key, value) pair.
type Entry struct {
	Key   Key
	Value Value
}

type slot struct {
	bucket uint64
	pos    int
}

type bucket struct {
	id      uint64
	entries []Entry
	// rank is the bucket's index in Table.order.
	rank int
}

// Table maps external keys to values and indexes the values by the hash of
// their names.
//
// Iteration follows bucket creation order and, within a bucket, insertion
// order, so a given sequence of operations always yields the same order.
// Table is not safe for concurrent use.
type Table struct {
	keys    map[Key]slot
	buckets map[uint64]*bucket
	// order lists buckets by creation. Removed buckets leave nil holes
	// that are compacted once they make up half of order.
	order []*bucket
	holes int
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	t.Clear()
	return t
}

func bucketID(name string) uint64 { return xxhash.Sum64String(name) }

// Insert stores v under key, replacing the entry already stored under key.
func (t *Table) Insert(key Key, v Value) {
	if _, ok := t.keys[key]; ok {
		t.unlink(key)
	}

	id := bucketID(v.Name())
	b, ok := t.buckets[id]
	if !ok {
		b = &bucket{id: id, rank: len(t.order)}
		t.buckets[id] = b
		t.order = append(t.order, b)
	}
	t.keys[key] = slot{bucket: id, pos: len(b.entries)}
	b.entries = append(b.entries, Entry{Key: key, Value: v})
}

// Remove unlinks the entry holding a value equal to v and returns its key.
func (t *Table) Remove(v Value) (Key, error) {
	key, _, ok := t.Find(v)
	if !ok {
		return 0, fmt.Errorf("%w: value %q", ErrKeyNotFound, v.Name())
	}
	t.unlink(key)
	return key, nil
}

// RemoveByKey unlinks the entry stored under key.
func (t *Table) RemoveByKey(key Key) error {
	if _, ok := t.keys[key]; !ok {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}
	t.unlink(key)
	return nil
}

func (t *Table) unlink(key Key) {
	s := t.keys[key]
	delete(t.keys, key)

	b := t.buckets[s.bucket]
	b.entries = append(b.entries[:s.pos], b.entries[s.pos+1:]...)
	for i := s.pos; i < len(b.entries); i++ {
		t.keys[b.entries[i].Key] = slot{bucket: s.bucket, pos: i}
	}
	if len(b.entries) > 0 {
		return
	}

	delete(t.buckets, s.bucket)
	t.order[b.rank] = nil
	t.holes++
	if t.holes*2 >= len(t.order) {
		t.compact()
	}
}

func (t *Table) compact() {
	live := t.order[:0]
	for _, b := range t.order {
		if b != nil {
			b.rank = len(live)
			live = append(live, b)
		}
	}
	clear(t.order[len(live):])
	t.order = live
	t.holes = 0
}

// Find returns the key and stored value equal to v.
func (t *Table) Find(v Value) (Key, Value, bool) {
	b, ok := t.buckets[bucketID(v.Name())]
	if !ok {
		return 0, nil, false
	}
	for _, e := range b.entries {
		if e.Value.Equal(v) {
			return e.Key, e.Value, true
		}
	}
	return 0, nil, false
}

// Contains reports whether a value equal to v is stored.
func (t *Table) Contains(v Value) bool {
	_, _, ok := t.Find(v)
	return ok
}

// Lookup returns the first stored value named name, regardless of content.
func (t *Table) Lookup(name string) (Key, Value, bool) {
	b, ok := t.buckets[bucketID(name)]
	if !ok {
		return 0, nil, false
	}
	for _, e := range b.entries {
		if e.Value.Name() == name {
			return e.Key, e.Value, true
		}
	}
	return 0, nil, false
}

// Get returns the value stored under key.
func (t *Table) Get(key Key) (Value, bool) {
	s, ok := t.keys[key]
	if !ok {
		return nil, false
	}
	return t.buckets[s.bucket].entries[s.pos].Value, true
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.keys) }

// Entries returns every entry in bucket order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.keys))
	for _, b := range t.order {
		if b != nil {
			out = append(out, b.entries...)
		}
	}
	return out
}

// Values returns every stored value in bucket order.
func (t *Table) Values() []Value {
	out := make([]Value, 0, len(t.keys))
	for _, b := range t.order {
		if b == nil {
			continue
		}
		for _, e := range b.entries {
			out = append(out, e.Value)
		}
	}
	return out
}

// Keys returns every key in bucket order.
func (t *Table) Keys() []Key {
	out := make([]Key, 0, len(t.keys))
	for _, b := range t.order {
		if b == nil {
			continue
		}
		for _, e := range b.entries {
			out = append(out, e.Key)
		}
	}
	return out
}

// Clear drops every entry.
func (t *Table) Clear() {
	t.keys = make(map[Key]slot)
	t.buckets = make(map[uint64]*bucket)
	t.order = nil
	t.holes = 0
}

// SelfTest checks that the key index and the bucket index describe the
// same set of entries.
func (t *Table) SelfTest() error {
	total, holes := 0, 0
	seen := make(map[uint64]bool, len(t.order))
	for rank, b := range t.order {
		if b == nil {
			holes++
			continue
		}
		id := b.id
		if seen[id] {
			return fmt.Errorf("%w: bucket %x listed twice", ErrCorruptValueTable, id)
		}
		seen[id] = true

		if t.buckets[id] != b || len(b.entries) == 0 {
			return fmt.Errorf("%w: bucket %x is listed but empty", ErrCorruptValueTable, id)
		}
		if b.rank != rank {
			return fmt.Errorf("%w: bucket %x ranked %d, listed at %d", ErrCorruptValueTable, id, b.rank, rank)
		}
		for pos, e := range b.entries {
			if got := bucketID(e.Value.Name()); got != id {
				return fmt.Errorf("%w: value %q stored in bucket %x, expected %x",
					ErrCorruptValueTable, e.Value.Name(), id, got)
			}
			s, ok := t.keys[e.Key]
			if !ok {
				return fmt.Errorf("%w: key %d missing from key index", ErrCorruptValueTable, e.Key)
			}
			if s.bucket != id || s.pos != pos {
				return fmt.Errorf("%w: key %d indexed at %x/%d, stored at %x/%d",
					ErrCorruptValueTable, e.Key, s.bucket, s.pos, id, pos)
			}
			if _, found, ok := t.Find(e.Value); !ok || !found.Equal(e.Value) {
				return fmt.Errorf("%w: value %q is not reachable by find", ErrCorruptValueTable, e.Value.Name())
			}
		}
		total += len(b.entries)
	}

	if holes != t.holes {
		return fmt.Errorf("%w: %d holes in bucket order, %d counted", ErrCorruptValueTable, holes, t.holes)
	}
	if len(seen) != len(t.buckets) {
		return fmt.Errorf("%w: %d buckets stored, %d listed", ErrCorruptValueTable, len(t.buckets), len(seen))
	}
	if total != len(t.keys) {
		return fmt.Errorf("%w: %d bucket entries, %d keys", ErrCorruptValueTable, total, len(t.keys))
	}
	return nil
}

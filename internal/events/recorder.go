package events

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
)

// Record is one observed event invocation.
type Record struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
}

// Recorder is a concurrency-safe in-memory sink of event invocations,
// attached to a Manager as a user handler.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func NewRecorder() *Recorder { return &Recorder{} }

// Attach registers the recorder for each named event. With no names it
// attaches to every declared event.
func (r *Recorder) Attach(m *Manager, names ...string) ([]HandlerID, error) {
	if len(names) == 0 {
		names = m.Events()
	}

	ids := make([]HandlerID, 0, len(names))
	for _, name := range names {
		typ, ok := m.handlerType(name)
		if !ok {
			return ids, &HandlerError{Event: name, Kind: ErrUnknownEvent}
		}
		id, err := m.AddUserHandler(name, r.handlerFor(name, typ).Interface())
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// handlerFor builds a function of type typ that records its arguments.
func (r *Recorder) handlerFor(name string, typ reflect.Type) reflect.Value {
	return reflect.MakeFunc(typ, func(in []reflect.Value) []reflect.Value {
		args := make([]any, 0, len(in))
		for i, v := range in {
			if typ.IsVariadic() && i == len(in)-1 {
				for j := 0; j < v.Len(); j++ {
					args = append(args, v.Index(j).Interface())
				}
				continue
			}
			args = append(args, v.Interface())
		}
		r.Record(name, args...)

		out := make([]reflect.Value, typ.NumOut())
		for i := range out {
			out[i] = reflect.Zero(typ.Out(i))
		}
		return out
	})
}

// Record appends an invocation.
func (r *Recorder) Record(event string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.records = append(r.records, Record{Event: event, Args: args})
	r.mu.Unlock()
}

// Snapshot returns a copy of the records in arrival order.
func (r *Recorder) Snapshot() []Record {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns how many times event was recorded.
func (r *Recorder) Count(event string) int {
	n := 0
	for _, rec := range r.Snapshot() {
		if rec.Event == event {
			n++
		}
	}
	return n
}

// Reset drops every record.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// Canonical returns the records ordered independently of handler
// scheduling: by the first argument's text (the node for build events),
// then event name, then the remaining arguments.
func (r *Recorder) Canonical() []Record {
	recs := r.Snapshot()
	keys := make([]string, len(recs))
	subjects := make([]string, len(recs))
	for i, rec := range recs {
		if len(rec.Args) > 0 {
			subjects[i] = fmt.Sprint(rec.Args[0])
		}
		keys[i] = fmt.Sprint(rec.Args...)
	}

	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if subjects[i] != subjects[j] {
			return subjects[i] < subjects[j]
		}
		if recs[i].Event != recs[j].Event {
			return recs[i].Event < recs[j].Event
		}
		return keys[i] < keys[j]
	})

	out := make([]Record, len(recs))
	for k, i := range idx {
		out[k] = recs[i]
	}
	return out
}

// WriteJSON writes the canonical records, one JSON object per line. Error
// arguments are written as their messages.
func (r *Recorder) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, rec := range r.Canonical() {
		args := make([]any, len(rec.Args))
		for i, a := range rec.Args {
			if err, ok := a.(error); ok {
				args[i] = err.Error()
				continue
			}
			args[i] = a
		}
		if err := enc.Encode(Record{Event: rec.Event, Args: args}); err != nil {
			return err
		}
	}
	return nil
}

package values

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aqualid/internal/filelock"
	"aqualid/internal/serial"
)

// FileOption configures Open.
type FileOption func(*fileConfig)

type fileConfig struct {
	storage        Storage
	registry       *serial.Registry
	logger         *slog.Logger
	lockTimeout    time.Duration
	discardCorrupt bool
}

// WithStorage replaces the default record file backend.
func WithStorage(s Storage) FileOption {
	return func(c *fileConfig) { c.storage = s }
}

// WithRegistry sets the registry used to encode values. It must know every
// value class that is stored.
func WithRegistry(r *serial.Registry) FileOption {
	return func(c *fileConfig) { c.registry = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FileOption {
	return func(c *fileConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLockTimeout bounds the wait for the sidecar lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(c *fileConfig) { c.lockTimeout = d }
}

// WithDiscardCorrupt keeps the readable prefix of a damaged record file.
func WithDiscardCorrupt() FileOption {
	return func(c *fileConfig) { c.discardCorrupt = true }
}

// ValuesFile is the persistent set of values of a build directory. A value
// name maps to at most one stored value; storing a changed value replaces
// the old one under a fresh key.
//
// The sidecar lock file path+".lock" is held from Open until Close. All
// methods are safe for concurrent use.
type ValuesFile struct {
	path     string
	lock     *filelock.Lock
	storage  Storage
	registry *serial.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	table   *Table
	nextKey Key
	closed  bool
}

// Open locks and loads the values file at path.
func Open(path string, opts ...FileOption) (*ValuesFile, error) {
	cfg := fileConfig{
		logger:      slog.Default(),
		lockTimeout: filelock.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	lock := filelock.New(path+".lock", filelock.WithLogger(cfg.logger))
	if err := lock.LockTimeout(cfg.lockTimeout); err != nil {
		return nil, err
	}

	if cfg.storage == nil {
		ropts := []RecordOption{WithRecordLogger(cfg.logger)}
		if cfg.discardCorrupt {
			ropts = append(ropts, DiscardCorrupt())
		}
		cfg.storage = NewRecordStorage(path, ropts...)
	}

	vf := &ValuesFile{
		path:     path,
		lock:     lock,
		storage:  cfg.storage,
		registry: cfg.registry,
		logger:   cfg.logger,
		table:    NewTable(),
		nextKey:  1,
	}
	if err := vf.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return vf, nil
}

func (f *ValuesFile) load() error {
	var invalid []Key
	err := f.storage.Load(func(key Key, data []byte) error {
		if key >= f.nextKey {
			f.nextKey = key + 1
		}
		v, err := f.decode(data)
		if err != nil {
			f.logger.Warn("dropping unreadable value record",
				slog.String("path", f.path),
				slog.Uint64("key", uint64(key)),
				slog.String("error", err.Error()))
			invalid = append(invalid, key)
			return nil
		}
		if oldKey, _, ok := f.table.Lookup(v.Name()); ok {
			// Later records supersede earlier ones of the same name.
			_ = f.table.RemoveByKey(oldKey)
			invalid = append(invalid, oldKey)
		}
		f.table.Insert(key, v)
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range invalid {
		if err := f.storage.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (f *ValuesFile) decode(data []byte) (Value, error) {
	raw, err := f.registry.Loads(data)
	if err != nil {
		return nil, err
	}
	v, ok := raw.(Value)
	if !ok {
		return nil, fmt.Errorf("record holds %T, not a value", raw)
	}
	return v, nil
}

// Path returns the values file path.
func (f *ValuesFile) Path() string { return f.path }

// FindValues returns, for each requested value, the stored value with the
// same name, or a value of the same class with NoContent when none is stored.
func (f *ValuesFile) FindValues(vs []Value) []Value {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Value, 0, len(vs))
	for _, v := range vs {
		if _, stored, ok := f.table.Lookup(v.Name()); ok {
			out = append(out, stored)
			continue
		}
		out = append(out, emptyTwin(v))
	}
	return out
}

func emptyTwin(v Value) Value {
	base := BasicValue{name: v.Name(), content: NoContent}
	switch t := v.(type) {
	case StringValue:
		return StringValue{base}
	case FileValue:
		return FileValue{BasicValue: base, kind: t.kind}
	default:
		return base
	}
}

// AddValues stores vs. A value equal to the stored one is left alone; a
// value with a new name or changed content is written under a fresh key.
func (f *ValuesFile) AddValues(vs []Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	for _, v := range vs {
		key, stored, ok := f.table.Lookup(v.Name())
		if ok {
			if stored.Equal(v) {
				continue
			}
			if err := f.storage.Delete(key); err != nil {
				return err
			}
			_ = f.table.RemoveByKey(key)
		}

		data, err := f.registry.Dumps(v)
		if err != nil {
			return fmt.Errorf("encode value %q: %w", v.Name(), err)
		}
		key = f.nextKey
		f.nextKey++
		if err := f.storage.Put(key, data); err != nil {
			return err
		}
		f.table.Insert(key, v)
	}
	return nil
}

// Actual reports whether every value in vs is stored, equal to the stored
// value, and still actual.
func (f *ValuesFile) Actual(vs []Value) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range vs {
		_, stored, ok := f.table.Lookup(v.Name())
		if !ok || !stored.Equal(v) || !stored.Actual() {
			return false
		}
	}
	return true
}

// RemoveValues drops the stored values named like vs. Missing names are
// ignored.
func (f *ValuesFile) RemoveValues(vs []Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}

	for _, v := range vs {
		key, _, ok := f.table.Lookup(v.Name())
		if !ok {
			continue
		}
		if err := f.storage.Delete(key); err != nil {
			return err
		}
		_ = f.table.RemoveByKey(key)
	}
	return nil
}

// Clear drops every stored value.
func (f *ValuesFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if err := f.storage.Clear(); err != nil {
		return err
	}
	f.table.Clear()
	return nil
}

// Len returns the number of stored values.
func (f *ValuesFile) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table.Len()
}

// Values returns the stored values.
func (f *ValuesFile) Values() []Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table.Values()
}

// Entries returns the stored values with their keys.
func (f *ValuesFile) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table.Entries()
}

// SelfTest checks the in-memory table and the key allocator.
func (f *ValuesFile) SelfTest() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.table.SelfTest(); err != nil {
		return err
	}
	names := make(map[string]Key, f.table.Len())
	for _, e := range f.table.Entries() {
		if e.Key >= f.nextKey {
			return fmt.Errorf("%w: key %d is not below next key %d", ErrCorruptValueTable, e.Key, f.nextKey)
		}
		if other, dup := names[e.Value.Name()]; dup {
			return fmt.Errorf("%w: name %q stored under keys %d and %d",
				ErrCorruptValueTable, e.Value.Name(), other, e.Key)
		}
		names[e.Value.Name()] = e.Key
	}
	return nil
}

// Flush makes pending changes durable.
func (f *ValuesFile) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	return f.storage.Sync()
}

// Close flushes, closes the storage and releases the lock. Closing twice
// is a no-op.
func (f *ValuesFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	serr := f.storage.Sync()
	cerr := f.storage.Close()
	lerr := f.lock.Unlock()
	f.table.Clear()
	return errors.Join(serr, cerr, lerr)
}

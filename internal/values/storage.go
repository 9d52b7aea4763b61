package values

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"aqualid/internal/tempfile"
)

// Storage persists raw (key, data) records for a ValuesFile.
type Storage interface {
	// Load calls fn for every stored record.
	Load(fn func(key Key, data []byte) error) error
	Put(key Key, data []byte) error
	Delete(key Key) error
	Clear() error
	// Sync makes every change since the last Sync durable.
	Sync() error
	Close() error
}

// recordMagic starts every record file. The trailing digits are the format
// version.
var recordMagic = []byte("AQLVAL01")

const keySize = 8

// RecordStorage keeps records in memory and rewrites a single file of
// length-prefixed records on Sync.
//
// File layout: magic, then records of uvarint(len(payload)) | payload, where
// payload is the big-endian key followed by the record data.
type RecordStorage struct {
	path           string
	discardCorrupt bool
	logger         *slog.Logger

	data map[Key][]byte
	// order lists keys by first insertion; rank is each live key's index
	// in it. Deleted keys leave holes until compaction.
	order []Key
	rank  map[Key]int
	holes int
	dirty bool
}

// RecordOption configures a RecordStorage.
type RecordOption func(*RecordStorage)

// DiscardCorrupt makes Load keep the good prefix of a damaged file instead
// of failing. The damaged tail is dropped on the next Sync.
func DiscardCorrupt() RecordOption {
	return func(s *RecordStorage) { s.discardCorrupt = true }
}

// WithRecordLogger sets the logger used to report discarded records.
func WithRecordLogger(logger *slog.Logger) RecordOption {
	return func(s *RecordStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRecordStorage returns a storage backed by the file at path. Nothing is
// read until Load.
func NewRecordStorage(path string, opts ...RecordOption) *RecordStorage {
	s := &RecordStorage{
		path:   path,
		logger: slog.Default(),
		data:   make(map[Key][]byte),
		rank:   make(map[Key]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the record file path.
func (s *RecordStorage) Path() string { return s.path }

// Load reads the record file. A missing file is an empty store.
func (s *RecordStorage) Load(fn func(key Key, data []byte) error) error {
	s.reset()
	s.dirty = false

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read values file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	good := 0
	corrupt := func(off int, reason string) error {
		cerr := &CorruptionError{Path: s.path, Offset: int64(off), Good: good, Reason: reason}
		if !s.discardCorrupt {
			return cerr
		}
		s.logger.Warn("discarding corrupt tail of values file",
			slog.String("path", s.path),
			slog.Int64("offset", cerr.Offset),
			slog.Int("good_records", good),
			slog.String("reason", reason))
		s.dirty = true
		return nil
	}

	if len(raw) < len(recordMagic) || !bytes.Equal(raw[:len(recordMagic)], recordMagic) {
		return corrupt(0, "bad header")
	}

	off := len(recordMagic)
	for off < len(raw) {
		n, width := binary.Uvarint(raw[off:])
		if width <= 0 {
			return corrupt(off, "truncated record length")
		}
		start := off + width
		if n > uint64(len(raw)-start) {
			return corrupt(off, "truncated record")
		}
		if n < keySize {
			return corrupt(off, "record shorter than its key")
		}
		end := start + int(n)
		key := Key(binary.BigEndian.Uint64(raw[start : start+keySize]))
		payload := raw[start+keySize : end]

		s.put(key, payload)
		if err := fn(key, payload); err != nil {
			return err
		}
		good++
		off = end
	}
	return nil
}

func (s *RecordStorage) reset() {
	s.data = make(map[Key][]byte)
	s.rank = make(map[Key]int)
	s.order = nil
	s.holes = 0
}

func (s *RecordStorage) put(key Key, data []byte) {
	if _, ok := s.data[key]; !ok {
		s.rank[key] = len(s.order)
		s.order = append(s.order, key)
	}
	s.data[key] = data
}

func (s *RecordStorage) live(i int) bool {
	r, ok := s.rank[s.order[i]]
	return ok && r == i
}

func (s *RecordStorage) compact() {
	live := make([]Key, 0, len(s.rank))
	for i, key := range s.order {
		if s.live(i) {
			s.rank[key] = len(live)
			live = append(live, key)
		}
	}
	s.order = live
	s.holes = 0
}

// Put stores data under key.
func (s *RecordStorage) Put(key Key, data []byte) error {
	s.put(key, bytes.Clone(data))
	s.dirty = true
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *RecordStorage) Delete(key Key) error {
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	delete(s.rank, key)
	s.holes++
	if s.holes*2 >= len(s.order) {
		s.compact()
	}
	s.dirty = true
	return nil
}

// Clear removes every record.
func (s *RecordStorage) Clear() error {
	s.reset()
	s.dirty = true
	return nil
}

// Sync rewrites the file atomically if anything changed.
func (s *RecordStorage) Sync() error {
	if !s.dirty {
		return nil
	}
	err := tempfile.WriteAtomic(s.path, 0o644, func(w io.Writer) error {
		if _, err := w.Write(recordMagic); err != nil {
			return err
		}
		var hdr [binary.MaxVarintLen64 + keySize]byte
		for i, key := range s.order {
			if !s.live(i) {
				continue
			}
			data := s.data[key]
			n := binary.PutUvarint(hdr[:], uint64(keySize+len(data)))
			binary.BigEndian.PutUint64(hdr[n:], uint64(key))
			if _, err := w.Write(hdr[:n+keySize]); err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write values file: %w", err)
	}
	s.dirty = false
	return nil
}

// Close syncs pending changes.
func (s *RecordStorage) Close() error { return s.Sync() }

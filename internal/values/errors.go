package values

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptValueTable reports an inconsistency in the value table or in
	// its persisted form.
	ErrCorruptValueTable = errors.New("corrupt value table")

	// ErrKeyNotFound is returned when a remove targets a missing key or value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed is returned by operations on a closed values file.
	ErrClosed = errors.New("values file is closed")
)

// CorruptionError describes a damaged values file.
//
// Records before Offset were decoded successfully; Good is their count.
type CorruptionError struct {
	Path   string
	Offset int64
	Good   int
	Reason string
}

func (e *CorruptionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s at offset %d (%d good records)", e.Path, e.Reason, e.Offset, e.Good)
}

func (e *CorruptionError) Unwrap() error { return ErrCorruptValueTable }

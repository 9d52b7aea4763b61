package values

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"aqualid/internal/serial"
)

// Content is the payload half of a Value.
type Content interface {
	serial.Persistent

	Equal(other Content) bool
	String() string
}

type noContent struct{}

// NoContent marks the absence of content. A value holding it does not exist.
var NoContent Content = noContent{}

func (noContent) Equal(other Content) bool {
	_, ok := other.(noContent)
	return ok
}

func (noContent) String() string { return "<no content>" }
func (noContent) NewArgs() []any { return nil }

// StringContent is case-sensitive text.
type StringContent string

func (c StringContent) Equal(other Content) bool {
	o, ok := other.(StringContent)
	return ok && o == c
}

func (c StringContent) String() string { return string(c) }
func (c StringContent) NewArgs() []any { return []any{string(c)} }

// IgnoreCaseContent is text compared after lower-casing both sides.
type IgnoreCaseContent string

func (c IgnoreCaseContent) Equal(other Content) bool {
	o, ok := other.(IgnoreCaseContent)
	return ok && strings.ToLower(string(o)) == strings.ToLower(string(c))
}

func (c IgnoreCaseContent) String() string { return string(c) }
func (c IgnoreCaseContent) NewArgs() []any { return []any{string(c)} }

// BytesContent is an opaque byte payload.
type BytesContent []byte

func (c BytesContent) Equal(other Content) bool {
	o, ok := other.(BytesContent)
	return ok && bytes.Equal(o, c)
}

func (c BytesContent) String() string { return hex.EncodeToString(c) }
func (c BytesContent) NewArgs() []any { return []any{[]byte(c)} }

// FileChecksum identifies file contents by size and SHA-256 digest.
type FileChecksum struct {
	Size int64
	Sum  string
}

func (c FileChecksum) Equal(other Content) bool {
	o, ok := other.(FileChecksum)
	return ok && o == c
}

func (c FileChecksum) String() string { return fmt.Sprintf("%d:%s", c.Size, c.Sum) }
func (c FileChecksum) NewArgs() []any { return []any{c.Size, c.Sum} }

// FileTimestamp identifies file contents by size and modification time
// (nanoseconds since the Unix epoch).
type FileTimestamp struct {
	Size    int64
	ModTime int64
}

func (c FileTimestamp) Equal(other Content) bool {
	o, ok := other.(FileTimestamp)
	return ok && o == c
}

func (c FileTimestamp) String() string { return fmt.Sprintf("%d@%d", c.Size, c.ModTime) }
func (c FileTimestamp) NewArgs() []any { return []any{c.Size, c.ModTime} }

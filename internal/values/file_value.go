package values

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// SignatureKind selects how a FileValue fingerprints its file.
type SignatureKind int

const (
	// SignatureChecksum hashes the file bytes.
	SignatureChecksum SignatureKind = iota
	// SignatureTimestamp uses size and modification time.
	SignatureTimestamp
)

func (k SignatureKind) String() string {
	switch k {
	case SignatureChecksum:
		return "checksum"
	case SignatureTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("SignatureKind(%d)", int(k))
	}
}

// ParseSignatureKind accepts "checksum" and "timestamp".
func ParseSignatureKind(s string) (SignatureKind, error) {
	switch s {
	case "checksum", "":
		return SignatureChecksum, nil
	case "timestamp":
		return SignatureTimestamp, nil
	}
	return 0, fmt.Errorf("unknown file signature kind %q", s)
}

// FileValue is a value named by a file path whose content is the file's
// signature at the time the value was created. A missing file has
// NoContent.
type FileValue struct {
	BasicValue
	kind SignatureKind
}

// NewFileValue fingerprints path.
func NewFileValue(path string, kind SignatureKind) (FileValue, error) {
	content, err := FileSignature(path, kind)
	if err != nil {
		return FileValue{}, err
	}
	return FileValue{BasicValue: BasicValue{name: path, content: content}, kind: kind}, nil
}

// Kind returns the signature kind.
func (v FileValue) Kind() SignatureKind { return v.kind }

// Actual re-reads the file and compares its current signature with the
// stored one.
func (v FileValue) Actual() bool {
	current, err := FileSignature(v.name, v.kind)
	if err != nil {
		return false
	}
	return v.content.Equal(current)
}

func (v FileValue) NewArgs() []any { return []any{v.name, v.content, int(v.kind)} }

// FileSignature computes the current content of the file at path.
func FileSignature(path string, kind SignatureKind) (Content, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NoContent, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	switch kind {
	case SignatureTimestamp:
		return FileTimestamp{Size: info.Size(), ModTime: info.ModTime().UnixNano()}, nil
	case SignatureChecksum:
		sum, err := fileDigest(path)
		if err != nil {
			return nil, err
		}
		return FileChecksum{Size: info.Size(), Sum: sum}, nil
	default:
		return nil, fmt.Errorf("unknown file signature kind %d", int(kind))
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

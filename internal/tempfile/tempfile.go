// Package tempfile provides scoped temporary files and directories and
// atomic file replacement.
package tempfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WithFile creates a temporary file in dir (os.TempDir when empty), passes
// it to fn and removes it when fn returns or panics. The file is closed
// before removal; fn may close it earlier.
func WithFile(dir, pattern string, fn func(f *os.File) error) error {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(name)
	}()
	return fn(f)
}

// WithDir creates a temporary directory, passes its path to fn and removes
// the whole tree when fn returns or panics.
func WithDir(dir, pattern string, fn func(path string) error) error {
	path, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(path)
	return fn(path)
}

// WriteAtomic replaces path with the bytes written by fn.
//
// The data goes to a temporary file in the same directory which is synced,
// renamed over path and followed by a sync of the directory. On any error
// path is left untouched.
func WriteAtomic(path string, perm os.FileMode, fn func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

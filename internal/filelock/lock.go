// Package filelock provides an exclusive advisory lock on a file path.
//
// The lock is held on an open descriptor of the lock file, so it is released
// by the operating system when the process exits. Two Lock values for the
// same path conflict even inside one process.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultRetryInterval is how often a blocking Lock retries.
	DefaultRetryInterval = 250 * time.Millisecond

	// DefaultTimeout bounds LockTimeout when it is given a zero duration.
	DefaultTimeout = 5 * time.Minute
)

// ErrFileLocked is returned when the lock is held by someone else.
var ErrFileLocked = errors.New("file is locked")

// errWouldBlock is returned by the platform lock call when the lock is busy.
var errWouldBlock = errors.New("lock would block")

// Option configures a Lock.
type Option func(*Lock)

// WithRetryInterval sets the polling interval of blocking acquisition.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Lock is an exclusive lock on one path. The zero value is not usable; call New.
type Lock struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	f  *os.File
}

// New returns an unlocked Lock for path. The file is created on first
// acquisition and never removed.
func New(path string, opts ...Option) *Lock {
	l := &Lock{
		path:     path,
		interval: DefaultRetryInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Locked reports whether this Lock currently holds the lock.
func (l *Lock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f != nil
}

// TryLock acquires the lock without waiting. It returns ErrFileLocked when
// another holder has it. Calling TryLock on a held Lock is a no-op.
func (l *Lock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return fmt.Errorf("%w: %s", ErrFileLocked, l.path)
		}
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	l.f = f
	return nil
}

// Lock waits until the lock is acquired or ctx is done. On cancellation the
// returned error wraps both ErrFileLocked and the context error.
func (l *Lock) Lock(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		err := l.TryLock()
		if err == nil || !errors.Is(err, ErrFileLocked) {
			return err
		}

		select {
		case <-ctx.Done():
			l.logger.Warn("gave up waiting for file lock",
				slog.String("path", l.path),
				slog.Duration("waited", time.Since(start)))
			return fmt.Errorf("%w: %s: %w", ErrFileLocked, l.path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// LockTimeout is Lock bounded by timeout (DefaultTimeout when zero).
func (l *Lock) LockTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return l.Lock(ctx)
}

// Unlock releases the lock. Unlocking an unheld Lock is a no-op.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	uerr := unlockFile(f)
	cerr := f.Close()
	if uerr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, uerr)
	}
	return cerr
}

// Close releases the lock.
func (l *Lock) Close() error { return l.Unlock() }

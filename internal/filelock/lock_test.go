//go:build unix || windows

package filelock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.lock")
	first := New(path)
	second := New(path)

	require.NoError(t, first.TryLock())
	t.Cleanup(func() { _ = first.Close() })
	assert.True(t, first.Locked())

	err := second.TryLock()
	assert.ErrorIs(t, err, ErrFileLocked)
	assert.False(t, second.Locked())

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestLock_TryLockTwiceIsNoop(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "a.lock"))
	require.NoError(t, l.TryLock())
	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())
}

func TestLock_UnlockIsIdempotent(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "a.lock"))
	require.NoError(t, l.Unlock())
	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock())
}

func TestLock_TimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.lock")
	holder := New(path)
	require.NoError(t, holder.TryLock())
	t.Cleanup(func() { _ = holder.Close() })

	waiter := New(path, WithRetryInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := waiter.Lock(ctx)
	assert.ErrorIs(t, err, ErrFileLocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handoff.lock")
	holder := New(path)
	require.NoError(t, holder.TryLock())

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = holder.Unlock()
	}()

	waiter := New(path, WithRetryInterval(5*time.Millisecond))
	require.NoError(t, waiter.LockTimeout(2*time.Second))
	require.NoError(t, waiter.Unlock())
}

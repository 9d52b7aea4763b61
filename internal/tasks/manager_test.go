package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsByID(t *testing.T, results []Result) map[int]error {
	t.Helper()
	out := make(map[int]error, len(results))
	for _, r := range results {
		id, ok := r.ID.(int)
		require.True(t, ok, "unexpected id %v", r.ID)
		_, dup := out[id]
		require.False(t, dup, "task %d reported twice", id)
		out[id] = r.Err
	}
	return out
}

func TestManager_FailureIsolation(t *testing.T) {
	m := New(WithWorkers(4))
	boom := errors.New("task 3 failed")

	for i := 0; i < 8; i++ {
		i := i
		require.NoError(t, m.AddTask(i, func() error {
			if i == 3 {
				return boom
			}
			return nil
		}))
	}
	m.Finish()

	got := resultsByID(t, m.CompletedTasks())
	require.Len(t, got, 8)
	for i := 0; i < 8; i++ {
		if i == 3 {
			assert.ErrorIs(t, got[i], boom)
			continue
		}
		assert.NoError(t, got[i], "task %d", i)
	}
	assert.Equal(t, StateStopped, m.State())
}

func TestManager_ZeroWorkersRunsSynchronously(t *testing.T) {
	m := New()
	ran := false

	require.NoError(t, m.AddTask("sync", func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	results := m.CompletedTasks()
	require.Len(t, results, 1)
	assert.Equal(t, "sync", results[0].ID)
	assert.NoError(t, results[0].Err)
	assert.Empty(t, m.CompletedTasks(), "CompletedTasks drains")
}

// blockWorker occupies the single worker of m until the returned func is called.
func blockWorker(t *testing.T, m *Manager) (release func()) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	require.NoError(t, m.AddTaskPriority(-100, "gate", func() error {
		close(started)
		<-gate
		return nil
	}))
	<-started
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func TestManager_PriorityThenFIFO(t *testing.T) {
	m := New(WithWorkers(1))
	release := blockWorker(t, m)

	var mu sync.Mutex
	var order []string
	add := func(priority int, id string) {
		require.NoError(t, m.AddTaskPriority(priority, id, func() error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}))
	}
	add(5, "low-1")
	add(1, "high-1")
	add(5, "low-2")
	add(1, "high-2")
	add(3, "mid")

	release()
	m.Finish()

	assert.Equal(t, []string{"high-1", "high-2", "mid", "low-1", "low-2"}, order)
}

func TestManager_StopDiscardsQueue(t *testing.T) {
	m := New(WithWorkers(1))
	release := blockWorker(t, m)

	executed := make(chan int, 5)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, m.AddTask(i, func() error {
			executed <- i
			return nil
		}))
	}

	m.Stop()
	m.Stop()
	assert.Equal(t, StateStopping, m.State())
	assert.ErrorIs(t, m.AddTask("late", func() error { return nil }), ErrStopped)

	release()
	m.Join()

	assert.Equal(t, StateStopped, m.State())
	assert.Empty(t, executed)
	results := m.CompletedTasks()
	require.Len(t, results, 1)
	assert.Equal(t, "gate", results[0].ID)
	assert.ErrorIs(t, m.Start(2), ErrStopped)
}

func TestManager_StartGrowsOnly(t *testing.T) {
	m := New()
	require.NoError(t, m.Start(2))
	require.NoError(t, m.Start(1))
	assert.Equal(t, 2, m.Workers())
	require.NoError(t, m.Start(4))
	assert.Equal(t, 4, m.Workers())
	assert.Equal(t, StateRunning, m.State())
	m.Finish()
	assert.Zero(t, m.Workers())
}

func TestManager_StopOnFail(t *testing.T) {
	m := New(WithWorkers(1), WithStopOnFail(true))
	release := blockWorker(t, m)

	require.NoError(t, m.AddTask("bad", func() error { return errors.New("bad") }))
	require.NoError(t, m.AddTask("after", func() error { return nil }))

	release()
	m.Join()

	ids := make([]string, 0)
	for _, r := range m.CompletedTasks() {
		ids = append(ids, r.ID.(string))
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"bad", "gate"}, ids)
	assert.Equal(t, StateStopped, m.State())
}

func TestManager_PanicIsCaptured(t *testing.T) {
	m := New(WithWorkers(2), WithBacktrace(true))
	sentinel := errors.New("inner")

	require.NoError(t, m.AddTask("str", func() error { panic("boom") }))
	require.NoError(t, m.AddTask("err", func() error { panic(sentinel) }))
	m.Finish()

	got := make(map[string]error)
	for _, r := range m.CompletedTasks() {
		got[r.ID.(string)] = r.Err
	}

	var pe *PanicError
	require.ErrorAs(t, got["str"], &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.ErrorIs(t, got["err"], sentinel)
}

func TestManager_WaitCompleted(t *testing.T) {
	m := New(WithWorkers(1))
	t.Cleanup(m.Finish)

	release := blockWorker(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	results, err := m.WaitCompleted(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, results)

	release()
	results, err = m.WaitCompleted(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gate", results[0].ID)

	results, err = m.WaitCompleted(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results, "nothing pending returns immediately")
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := New(WithWorkers(2), WithMetrics(metrics))

	require.NoError(t, m.AddTask(1, func() error { return nil }))
	require.NoError(t, m.AddTask(2, func() error { return errors.New("x") }))
	require.NoError(t, m.AddTask(3, func() error { panic("y") }))
	m.Finish()
	assert.ErrorIs(t, m.AddTask(4, func() error { return nil }), ErrStopped)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.completed.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.completed.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.completed.WithLabelValues(OutcomePanic)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.workers))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.running))
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, isAllowedTransition(StateNew, StateRunning))
	assert.True(t, isAllowedTransition(StateRunning, StateStopping))
	assert.True(t, isAllowedTransition(StateStopping, StateStopped))
	assert.False(t, isAllowedTransition(StateStopped, StateRunning))
	assert.False(t, isAllowedTransition(StateStopping, StateRunning))
	assert.Equal(t, "STOPPING", StateStopping.String())
}

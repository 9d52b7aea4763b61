// Package tasks implements the worker pool that runs build actions.
//
// Tasks are queued by priority (lower runs first, FIFO within a priority)
// and picked up by a fixed set of worker goroutines. Each task produces a
// Result carrying its id and error; failures and panics never reach the
// pool and are only visible through CompletedTasks and WaitCompleted.
//
// A manager with zero workers runs each task synchronously inside AddTask.
package tasks

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Func is the body of a task.
type Func func() error

// Result is the outcome of one task.
type Result struct {
	ID  any
	Err error
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers starts n workers as part of New.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.initialWorkers = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics instruments the manager.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithStopOnFail stops the manager after the first failed task.
func WithStopOnFail(on bool) Option {
	return func(m *Manager) { m.stopOnFail = on }
}

// WithBacktrace captures goroutine stacks for panicking tasks.
func WithBacktrace(on bool) Option {
	return func(m *Manager) { m.backtrace = on }
}

// Manager is a priority worker pool. All methods are safe for concurrent use.
type Manager struct {
	logger         *slog.Logger
	metrics        *Metrics
	stopOnFail     bool
	backtrace      bool
	initialWorkers int

	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	queue   taskQueue
	seq     uint64
	results []Result
	running int
	workers int
	wg      sync.WaitGroup
}

// New returns a manager. Unless WithWorkers is given it has no workers and
// runs tasks synchronously until Start is called.
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	m.cond = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	if m.initialWorkers > 0 {
		_ = m.Start(m.initialWorkers)
	}
	return m
}

// Start makes sure at least n workers exist. It never shrinks the pool.
// Starting a stopped manager returns ErrStopped.
func (m *Manager) Start(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.IsTerminal() {
		return ErrStopped
	}
	if err := m.transition(StateRunning); err != nil {
		return err
	}
	for m.workers < n {
		m.workers++
		m.wg.Add(1)
		go m.worker()
	}
	m.metrics.setWorkers(m.workers)
	return nil
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Workers returns the number of live workers.
func (m *Manager) Workers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workers
}

// AddTask queues fn with the default priority 0.
func (m *Manager) AddTask(id any, fn Func) error {
	return m.AddTaskPriority(0, id, fn)
}

// AddTaskPriority queues fn. Lower priorities run first. A stopped manager
// drops the task and returns ErrStopped.
func (m *Manager) AddTaskPriority(priority int, id any, fn Func) error {
	m.mu.Lock()

	if m.state.IsTerminal() {
		m.mu.Unlock()
		m.metrics.taskRejected()
		m.logger.Debug("task rejected by stopped manager", slog.Any("task", id))
		return ErrStopped
	}
	m.metrics.taskSubmitted()

	if m.workers == 0 {
		m.running++
		m.mu.Unlock()

		err := m.execute(id, fn)

		m.mu.Lock()
		m.finishTask(id, err)
		m.mu.Unlock()
		return nil
	}

	m.seq++
	heap.Push(&m.queue, &task{priority: priority, seq: m.seq, id: id, fn: fn})
	m.metrics.setQueued(m.queue.Len())
	m.cond.Signal()
	m.mu.Unlock()
	return nil
}

func (m *Manager) worker() {
	defer m.wg.Done()

	m.mu.Lock()
	for {
		for m.queue.Len() == 0 && m.state == StateRunning {
			m.cond.Wait()
		}
		if m.state != StateRunning {
			break
		}

		t := heap.Pop(&m.queue).(*task)
		m.running++
		m.metrics.setQueued(m.queue.Len())
		m.metrics.setRunning(m.running)
		m.mu.Unlock()

		err := m.execute(t.id, t.fn)

		m.mu.Lock()
		m.finishTask(t.id, err)
	}

	m.workers--
	m.metrics.setWorkers(m.workers)
	if m.workers == 0 && m.state == StateStopping {
		_ = m.transition(StateStopped)
	}
	m.cond.Broadcast()
	m.mu.Unlock()
}

// finishTask records a result. Callers hold m.mu.
func (m *Manager) finishTask(id any, err error) {
	m.running--
	m.metrics.setRunning(m.running)
	m.results = append(m.results, Result{ID: id, Err: err})
	if err != nil {
		m.logger.Debug("task failed", slog.Any("task", id), slog.String("error", err.Error()))
		if m.stopOnFail && !m.state.IsTerminal() {
			m.logger.Info("stopping task manager after failure", slog.Any("task", id))
			m.stopLocked()
		}
	}
	m.cond.Broadcast()
}

func (m *Manager) execute(id any, fn Func) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r}
			if m.backtrace {
				pe.Stack = debug.Stack()
			}
			m.logger.Error("task panicked", slog.Any("task", id), slog.Any("panic", r))
			err = pe
		}
		m.metrics.taskDone(time.Since(start), err)
	}()
	return fn()
}

// CompletedTasks drains the results accumulated so far without blocking.
func (m *Manager) CompletedTasks() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drainLocked()
}

func (m *Manager) drainLocked() []Result {
	out := m.results
	m.results = nil
	return out
}

// pendingLocked reports whether some task is queued for a worker or running.
func (m *Manager) pendingLocked() bool {
	return m.running > 0 || (m.queue.Len() > 0 && m.state == StateRunning && m.workers > 0)
}

// WaitCompleted blocks until at least one result is available, nothing is
// pending any more, or ctx is done, and then drains the results. It returns
// ctx.Err() only when it gave up with no results.
func (m *Manager) WaitCompleted(ctx context.Context) ([]Result, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.results) == 0 && m.pendingLocked() && ctx.Err() == nil {
		m.cond.Wait()
	}
	out := m.drainLocked()
	if len(out) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}

// Wait blocks until no task is queued or running. The pool keeps running.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.pendingLocked() {
		m.cond.Wait()
	}
}

// Stop discards queued tasks and tells workers to exit after their current
// task. It does not wait. Stopping twice is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	switch m.state {
	case StateStopping, StateStopped:
		return
	}

	if dropped := m.queue.Len(); dropped > 0 {
		m.logger.Debug("discarding queued tasks", slog.Int("count", dropped))
	}
	m.queue = nil
	m.metrics.setQueued(0)

	if m.workers == 0 {
		_ = m.transition(StateStopped)
	} else {
		_ = m.transition(StateStopping)
	}
	m.cond.Broadcast()
}

// Finish waits for every queued task, stops the manager and waits for the
// workers to exit.
func (m *Manager) Finish() {
	m.Wait()
	m.Stop()
	m.wg.Wait()
}

// Join waits for the workers to exit after Stop.
func (m *Manager) Join() {
	m.wg.Wait()
}

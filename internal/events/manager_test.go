package events

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqualid/internal/tasks"
)

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[name]++
}

func (c *counter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestManager_SeverityFilter(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)
	var c counter

	require.NoError(t, em.AddDefaultHandler("e1", func(n int) { c.hit("e1-default") }, Warning))
	require.NoError(t, em.AddDefaultHandler("e2", func(n int) { c.hit("e2-default") }, Status))
	_, err := em.AddUserHandler("e1", func(n int) { c.hit("e1-user") })
	require.NoError(t, err)
	_, err = em.AddUserHandler("e2", func(n int) { c.hit("e2-user") })
	require.NoError(t, err)

	em.DisableEvents(Warning)
	em.Emit("e1", 1)
	em.Emit("e2", 2)
	em.Finish()

	assert.Zero(t, c.get("e1-default"))
	assert.Zero(t, c.get("e1-user"))
	assert.Equal(t, 1, c.get("e2-default"))
	assert.Equal(t, 1, c.get("e2-user"))

	em.EnableEvents(Warning)
	em.Emit("e1", 1)
	em.Finish()
	assert.Equal(t, 1, c.get("e1-default"))
	assert.Equal(t, 1, c.get("e1-user"))
}

func TestManager_UserHandlerBeforeDefault(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)

	_, err := em.AddUserHandler("later", func() {})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestManager_UserHandlerWrongArgs(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)
	require.NoError(t, em.AddDefaultHandler("ev", func(node string, n int) {}, Info))

	_, err := em.AddUserHandler("ev", func(node string) {})
	assert.ErrorIs(t, err, ErrHandlerWrongArgs)

	_, err = em.AddUserHandler("ev", func(node string, n string) {})
	assert.ErrorIs(t, err, ErrHandlerWrongArgs)

	_, err = em.AddUserHandler("ev", func(node any, n int) error { return nil })
	assert.NoError(t, err, "wider parameter types are call-compatible")
}

//go:noinline
func appender(got *[]int, n int) func() {
	return func() { *got = append(*got, n) }
}

func TestManager_DuplicateDefault(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)

	var got []int
	first := appender(&got, 1)
	require.NoError(t, em.AddDefaultHandler("ev", first, Info))
	assert.ErrorIs(t, em.AddDefaultHandler("ev", first, Info), ErrHandlerAlreadyDefined)
	assert.ErrorIs(t, em.AddDefaultHandler("ev", appender(&got, 2), Info), ErrHandlerAlreadyDefined,
		"closures sharing code are distinct handlers")
	assert.ErrorIs(t, em.AddDefaultHandler("ev", func(int) {}, Info), ErrHandlerAlreadyDefined)

	em.Emit("ev")
	em.Finish()
	assert.Equal(t, []int{1}, got)
}

func TestManager_InvalidHandler(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)

	assert.ErrorIs(t, em.AddDefaultHandler("ev", 42, Info), ErrInvalidHandler)
	assert.ErrorIs(t, em.AddDefaultHandler("ev", func() int { return 0 }, Info), ErrInvalidHandler)
}

func TestManager_UnknownEventIsNoop(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)
	assert.NotPanics(t, func() {
		em.Emit("nobody_listens", 1, 2, 3)
		em.Finish()
	})
}

func TestManager_OrderDefaultsThenUsers(t *testing.T) {
	em := New(WithMaxWorkers(0))
	t.Cleanup(em.Close)

	var order []string
	require.NoError(t, em.AddDefaultHandler("ev", func() { order = append(order, "default") }, Info))
	_, err := em.AddUserHandler("ev", func() { order = append(order, "user-1") })
	require.NoError(t, err)
	_, err = em.AddUserHandler("ev", func() { order = append(order, "user-2") })
	require.NoError(t, err)

	em.Emit("ev")
	assert.Equal(t, []string{"default", "user-1", "user-2"}, order)

	order = nil
	em.DisableDefaultHandlers()
	em.Emit("ev")
	assert.Equal(t, []string{"user-1", "user-2"}, order)

	order = nil
	em.EnableDefaultHandlers()
	em.DisableEvent("ev")
	em.Emit("ev")
	assert.Empty(t, order)
	em.EnableEvent("ev")
	em.Emit("ev")
	assert.Len(t, order, 3)
}

func TestManager_EachHandlerOncePerEmit(t *testing.T) {
	em := New(WithMaxWorkers(3))
	t.Cleanup(em.Close)

	var defaults, users atomic.Int64
	require.NoError(t, em.AddDefaultHandler("tick", func(i int) { defaults.Add(1) }, Debug))
	_, err := em.AddUserHandler("tick", func(i int) { users.Add(1) })
	require.NoError(t, err)

	send := em.Sender("tick")
	for i := 0; i < 100; i++ {
		send(i)
	}
	em.Finish()

	assert.Equal(t, int64(100), defaults.Load())
	assert.Equal(t, int64(100), users.Load())
}

func TestManager_RemoveUserHandler(t *testing.T) {
	em := New(WithMaxWorkers(0))
	t.Cleanup(em.Close)

	calls := 0
	require.NoError(t, em.AddDefaultHandler("ev", func() {}, Info))
	id, err := em.AddUserHandler("ev", func() { calls++ })
	require.NoError(t, err)

	assert.True(t, em.RemoveUserHandler(id))
	assert.False(t, em.RemoveUserHandler(id))
	em.Emit("ev")
	assert.Zero(t, calls)
}

func TestManager_HandlerFailuresBecomeMetaEvents(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)
	rec := NewRecorder()
	_, err := rec.Attach(em, MetaEvent)
	require.NoError(t, err)

	boom := errors.New("boom")
	delivered := atomic.Int64{}
	require.NoError(t, em.AddDefaultHandler("ev", func() error { return boom }, Info))
	_, err = em.AddUserHandler("ev", func() error { panic("user handler panic") })
	require.NoError(t, err)
	_, err = em.AddUserHandler("ev", func() error { delivered.Add(1); return nil })
	require.NoError(t, err)

	em.Emit("ev")
	em.Finish()

	assert.Equal(t, int64(1), delivered.Load(), "delivery continues after failures")

	records := rec.Snapshot()
	require.Len(t, records, 2)
	var sawErr, sawPanic bool
	for _, r := range records {
		require.Len(t, r.Args, 2)
		assert.Equal(t, "ev", r.Args[0])
		err, ok := r.Args[1].(error)
		require.True(t, ok)
		var pe *tasks.PanicError
		switch {
		case errors.Is(err, boom):
			sawErr = true
		case errors.As(err, &pe):
			sawPanic = true
		}
	}
	assert.True(t, sawErr)
	assert.True(t, sawPanic)
}

func TestManager_WrongEmitArgumentsReported(t *testing.T) {
	em := New(WithMaxWorkers(0))
	t.Cleanup(em.Close)
	rec := NewRecorder()
	_, err := rec.Attach(em, MetaEvent)
	require.NoError(t, err)

	require.NoError(t, em.AddDefaultHandler("ev", func(n int) {}, Info))
	em.Emit("ev", "not an int")
	em.Emit("ev")

	records := rec.Snapshot()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.ErrorIs(t, r.Args[1].(error), ErrHandlerWrongArgs)
	}
}

func TestManager_NilArgumentsAndVariadic(t *testing.T) {
	em := New(WithMaxWorkers(0))
	t.Cleanup(em.Close)

	var got []string
	var gotErr error = errors.New("unset")
	require.NoError(t, em.AddDefaultHandler("fail", func(node string, err error) {
		gotErr = err
	}, Error))
	require.NoError(t, em.AddDefaultHandler("many", func(prefix string, parts ...string) {
		got = append([]string{prefix}, parts...)
	}, Info))

	em.Emit("fail", "n", nil)
	assert.NoError(t, gotErr)

	em.Emit("many", "a", "b", "c")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRegisterBuiltins(t *testing.T) {
	em := New(WithMaxWorkers(0))
	t.Cleanup(em.Close)
	require.NoError(t, RegisterBuiltins(em, nil))
	require.NoError(t, RegisterBuiltins(em, nil), "re-registering builtins is idempotent")

	sev, ok := em.Severity(EventNodeFailed)
	require.True(t, ok)
	assert.Equal(t, Error, sev)

	for _, name := range []string{
		EventNodeOutdated, EventNodeActual, EventNodeBuilding, EventNodeBuilt,
		EventNodeFailed, EventNodeSkipped, EventBuildFinished, MetaEvent,
	} {
		assert.Contains(t, em.Events(), name)
	}
}

func TestRecorder_CanonicalJSON(t *testing.T) {
	em := New()
	t.Cleanup(em.Close)
	require.NoError(t, RegisterBuiltins(em, nil))
	em.DisableDefaultHandlers()

	rec := NewRecorder()
	_, err := rec.Attach(em)
	require.NoError(t, err)

	em.Emit(EventNodeBuilt, "b")
	em.Emit(EventNodeBuilding, "b")
	em.Emit(EventNodeFailed, "a", errors.New("exit status 1"))
	em.Finish()

	var buf bytes.Buffer
	require.NoError(t, rec.WriteJSON(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		`{"event":"node_failed","args":["a","exit status 1"]}`,
		`{"event":"node_building","args":["b"]}`,
		`{"event":"node_built","args":["b"]}`,
	}, lines)
	assert.Equal(t, 1, rec.Count(EventNodeBuilt))
}

func TestSeverity_StringAndParse(t *testing.T) {
	assert.Equal(t, "status|warning", (Status | Warning).String())
	sev, ok := ParseSeverity("Warning")
	require.True(t, ok)
	assert.Equal(t, Warning, sev)
	_, ok = ParseSeverity("loud")
	assert.False(t, ok)
}

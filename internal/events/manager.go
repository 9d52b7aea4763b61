// Package events dispatches named build events to handlers.
//
// Every event is declared by exactly one default handler, which also fixes
// the event's severity and argument signature. User handlers attach to a
// declared event and must accept the same arguments. Emit never blocks:
// each enabled handler runs as a task on an internal worker pool, defaults
// first and then user handlers in registration order.
//
// A handler that returns a non-nil error or panics does not disturb
// delivery. The failure is re-emitted as MetaEvent so observers can log it.
package events

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"

	"aqualid/internal/tasks"
)

// MetaEvent reports handler failures. Its handlers receive the name of the
// event whose handler failed and the failure.
const MetaEvent = "event_handler_failed"

// DefaultMaxWorkers bounds the handler pool.
const DefaultMaxWorkers = 4

// HandlerID identifies a registered user handler.
type HandlerID string

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type handler struct {
	id   HandlerID
	name string
	fn   reflect.Value
}

type event struct {
	severity Severity
	def      *handler
	users    []*handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and the meta-event default handler.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxWorkers bounds the number of handler workers. Zero runs every
// handler synchronously inside Emit.
func WithMaxWorkers(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxWorkers = n
		}
	}
}

// Manager routes events to handlers. It is safe for concurrent use.
type Manager struct {
	logger     *slog.Logger
	maxWorkers int
	tm         *tasks.Manager

	mu          sync.RWMutex
	events      map[string]*event
	ignored     map[string]bool
	disabled    Severity
	defaultsOff bool
}

// New returns a manager with MetaEvent declared.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:     slog.Default(),
		maxWorkers: DefaultMaxWorkers,
		events:     make(map[string]*event),
		ignored:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tm = tasks.New(tasks.WithLogger(m.logger))

	logger := m.logger
	onFailure := func(event string, err error) {
		logger.Error("event handler failed", slog.String("event", event), slog.String("error", err.Error()))
	}
	if err := m.AddDefaultHandler(MetaEvent, onFailure, Error); err != nil {
		panic(err)
	}
	return m
}

func funcName(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		return f.Name()
	}
	return fn.Type().String()
}

func newHandler(eventName string, fn any) (*handler, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, &HandlerError{Event: eventName, Kind: ErrInvalidHandler, Msg: fmt.Sprintf("%T is not a function", fn)}
	}
	t := v.Type()
	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
	default:
		return nil, &HandlerError{Event: eventName, Handler: funcName(v), Kind: ErrInvalidHandler, Msg: "handler may only return an error"}
	}
	return &handler{name: funcName(v), fn: v}, nil
}

// compatible reports whether every argument list accepted by def is
// accepted by user.
func compatible(def, user reflect.Type) bool {
	if def.NumIn() != user.NumIn() || def.IsVariadic() != user.IsVariadic() {
		return false
	}
	for i := 0; i < def.NumIn(); i++ {
		if !def.In(i).AssignableTo(user.In(i)) {
			return false
		}
	}
	return true
}

// AddDefaultHandler declares event name with severity sev. An event has at
// most one default handler; a second registration fails with
// ErrHandlerAlreadyDefined.
func (m *Manager) AddDefaultHandler(name string, fn any, sev Severity) error {
	h, err := newHandler(name, fn)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.events[name]; ok {
		return &HandlerError{Event: name, Handler: h.name, Kind: ErrHandlerAlreadyDefined,
			Msg: fmt.Sprintf("already handled by %s", e.def.name)}
	}
	m.events[name] = &event{severity: sev, def: h}
	return nil
}

// AddUserHandler attaches fn to the declared event name.
func (m *Manager) AddUserHandler(name string, fn any) (HandlerID, error) {
	h, err := newHandler(name, fn)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[name]
	if !ok {
		return "", &HandlerError{Event: name, Handler: h.name, Kind: ErrUnknownEvent}
	}
	if !compatible(e.def.fn.Type(), h.fn.Type()) {
		return "", &HandlerError{Event: name, Handler: h.name, Kind: ErrHandlerWrongArgs,
			Msg: fmt.Sprintf("want %s, got %s", e.def.fn.Type(), h.fn.Type())}
	}
	h.id = HandlerID(uuid.NewString())
	e.users = append(e.users, h)
	return h.id, nil
}

// RemoveUserHandler detaches a user handler. It reports whether id was found.
func (m *Manager) RemoveUserHandler(id HandlerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		for i, h := range e.users {
			if h.id == id {
				e.users = append(e.users[:i:i], e.users[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Emit schedules every enabled handler of name with args. Emitting an
// undeclared or disabled event does nothing.
func (m *Manager) Emit(name string, args ...any) {
	m.mu.RLock()
	e, ok := m.events[name]
	if !ok || m.ignored[name] || e.severity&m.disabled != 0 {
		m.mu.RUnlock()
		if !ok {
			m.logger.Debug("event without handlers", slog.String("event", name))
		}
		return
	}
	hs := make([]*handler, 0, 1+len(e.users))
	if !m.defaultsOff {
		hs = append(hs, e.def)
	}
	hs = append(hs, e.users...)
	m.mu.RUnlock()

	if len(hs) == 0 {
		return
	}

	// Outcomes are reported through MetaEvent; the pool's own results are not needed.
	_ = m.tm.CompletedTasks()

	if m.maxWorkers > 0 {
		_ = m.tm.Start(min(len(hs), m.maxWorkers))
	}
	for _, h := range hs {
		h := h
		err := m.tm.AddTask(name, func() error {
			err := h.call(name, args)
			if err != nil {
				m.handlerFailed(name, h, err)
			}
			return err
		})
		if err != nil {
			m.logger.Debug("event dropped by stopped manager", slog.String("event", name))
			return
		}
	}
}

// Sender returns a function that emits name.
func (m *Manager) Sender(name string) func(args ...any) {
	return func(args ...any) { m.Emit(name, args...) }
}

func (m *Manager) handlerFailed(name string, h *handler, err error) {
	if name == MetaEvent {
		m.logger.Error("event failure handler failed",
			slog.String("handler", h.name), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("event handler failed",
		slog.String("event", name), slog.String("handler", h.name), slog.String("error", err.Error()))
	m.Emit(MetaEvent, name, err)
}

func (h *handler) call(event string, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &tasks.PanicError{Value: r}
		}
	}()

	in, err := h.arguments(event, args)
	if err != nil {
		return err
	}
	out := h.fn.Call(in)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

func (h *handler) arguments(event string, args []any) ([]reflect.Value, error) {
	t := h.fn.Type()
	n := t.NumIn()
	if (t.IsVariadic() && len(args) < n-1) || (!t.IsVariadic() && len(args) != n) {
		return nil, &HandlerError{Event: event, Handler: h.name, Kind: ErrHandlerWrongArgs,
			Msg: fmt.Sprintf("emitted with %d arguments for %s", len(args), t)}
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := t.In(min(i, n-1))
		if t.IsVariadic() && i >= n-1 {
			pt = t.In(n - 1).Elem()
		}
		if a == nil {
			switch pt.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
				in[i] = reflect.Zero(pt)
				continue
			}
		} else if v := reflect.ValueOf(a); v.Type().AssignableTo(pt) {
			in[i] = v
			continue
		}
		return nil, &HandlerError{Event: event, Handler: h.name, Kind: ErrHandlerWrongArgs,
			Msg: fmt.Sprintf("argument %d: %T is not assignable to %s", i, a, pt)}
	}
	return in, nil
}

// DisableEvents stops delivery of every event whose severity is in mask.
func (m *Manager) DisableEvents(mask Severity) {
	m.mu.Lock()
	m.disabled |= mask
	m.mu.Unlock()
}

// EnableEvents resumes delivery for the bands in mask.
func (m *Manager) EnableEvents(mask Severity) {
	m.mu.Lock()
	m.disabled &^= mask
	m.mu.Unlock()
}

// DisableEvent stops delivery of one event.
func (m *Manager) DisableEvent(name string) {
	m.mu.Lock()
	m.ignored[name] = true
	m.mu.Unlock()
}

// EnableEvent resumes delivery of one event.
func (m *Manager) EnableEvent(name string) {
	m.mu.Lock()
	delete(m.ignored, name)
	m.mu.Unlock()
}

// DisableDefaultHandlers skips default handlers; user handlers still run.
func (m *Manager) DisableDefaultHandlers() {
	m.mu.Lock()
	m.defaultsOff = true
	m.mu.Unlock()
}

// EnableDefaultHandlers re-enables default handlers.
func (m *Manager) EnableDefaultHandlers() {
	m.mu.Lock()
	m.defaultsOff = false
	m.mu.Unlock()
}

// Events returns the declared event names in lexical order.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.events))
	for name := range m.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Severity returns the severity of a declared event.
func (m *Manager) Severity(name string) (Severity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[name]
	if !ok {
		return 0, false
	}
	return e.severity, true
}

func (m *Manager) handlerType(name string) (reflect.Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[name]
	if !ok {
		return nil, false
	}
	return e.def.fn.Type(), true
}

// Finish blocks until every scheduled handler invocation, including those
// of meta-events raised meanwhile, has completed.
func (m *Manager) Finish() {
	m.tm.Wait()
	_ = m.tm.CompletedTasks()
}

// Close finishes pending handlers and stops the pool. Events emitted after
// Close are dropped.
func (m *Manager) Close() {
	m.tm.Finish()
	_ = m.tm.CompletedTasks()
}

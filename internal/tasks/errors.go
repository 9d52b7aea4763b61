package tasks

import (
	"errors"
	"fmt"
)

// ErrStopped is returned when a task is submitted to a stopped manager. The
// task is dropped; callers draining a stopped manager may ignore it.
var ErrStopped = errors.New("task manager is stopped")

// PanicError is the outcome of a task that panicked.
type PanicError struct {
	Value any
	// Stack is the goroutine stack at the panic, captured only when the
	// manager was created WithBacktrace(true).
	Stack []byte
}

func (e *PanicError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Stack) == 0 {
		return fmt.Sprintf("task panicked: %v", e.Value)
	}
	return fmt.Sprintf("task panicked: %v\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

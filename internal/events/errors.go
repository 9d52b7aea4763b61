package events

import (
	"errors"
	"fmt"
)

var (
	// ErrHandlerAlreadyDefined is returned when a second default handler is
	// registered for an event.
	ErrHandlerAlreadyDefined = errors.New("event handler already defined")

	// ErrUnknownEvent is returned when a user handler targets an event that
	// has no default handler.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrHandlerWrongArgs is returned when a handler's parameters are not
	// call-compatible with the event's default handler, or when an event is
	// emitted with arguments the handler cannot accept.
	ErrHandlerWrongArgs = errors.New("event handler has wrong arguments")

	// ErrInvalidHandler is returned when a handler is not a function or has
	// results other than a single error.
	ErrInvalidHandler = errors.New("invalid event handler")
)

// HandlerError identifies the event and handler a registration or
// invocation failure refers to.
type HandlerError struct {
	Event   string
	Handler string
	Kind    error
	Msg     string
}

func (e *HandlerError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: event %q", e.Kind, e.Event)
	if e.Handler != "" {
		msg += fmt.Sprintf(", handler %s", e.Handler)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *HandlerError) Unwrap() error { return e.Kind }

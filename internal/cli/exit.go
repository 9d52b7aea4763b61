package cli

import (
	"context"
	"errors"
	"fmt"

	"aqualid/internal/build"
	"aqualid/internal/config"
	"aqualid/internal/options"
)

const (
	ExitSuccess           = 0
	ExitBuildFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError carries the exit code of a failed command.
type InvocationError struct {
	ExitCode int
	Message  string
	Err      error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *InvocationError) Unwrap() error { return e.Err }

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr.ExitCode != 0 {
		return invErr.ExitCode
	}

	switch {
	case errors.Is(err, build.ErrBuildFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ExitBuildFailure
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, build.ErrInvalidGraph),
		errors.Is(err, build.ErrCycleFound),
		errors.Is(err, options.ErrInvalidOptionValue),
		errors.Is(err, options.ErrUnknownOption),
		errors.Is(err, options.ErrOptionExists):
		return ExitConfigError
	}
	return ExitInternalError
}

package build

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph   = errors.New("invalid build graph")
	ErrCycleFound     = errors.New("cycle detected")
	ErrSourceNotFound = errors.New("source not found")
	ErrTargetMissing  = errors.New("target was not produced")
	ErrBuildFailed    = errors.New("build failed")
)

// GraphError wraps deterministic graph validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

// CycleError reports a dependency cycle. Path is one cycle from dependency
// to dependant, closed on its first node. Blocked lists every node that
// can never become ready: the cycle members and everything depending on
// them.
type CycleError struct {
	Path    []string
	Blocked []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s (%d nodes blocked: %s)", ErrCycleFound,
		strings.Join(e.Path, " -> "), len(e.Blocked), strings.Join(e.Blocked, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycleFound }

// NodeError reports why a node could not be brought up to date.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// FailedError is returned by Manager.Build when some node failed or was
// skipped. It matches ErrBuildFailed.
type FailedError struct {
	Failed  []string
	Skipped []string
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("%s: %d failed", ErrBuildFailed, len(e.Failed))
	if len(e.Failed) > 0 {
		msg += " (" + strings.Join(e.Failed, ", ") + ")"
	}
	if len(e.Skipped) > 0 {
		msg += fmt.Sprintf(", %d skipped", len(e.Skipped))
	}
	return msg
}

func (e *FailedError) Unwrap() error { return ErrBuildFailed }

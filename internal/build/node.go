package build

import "context"

// Action brings a node's targets up to date.
type Action interface {
	Run(ctx context.Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Run(ctx context.Context) error { return f(ctx) }

// Signer is implemented by actions whose definition takes part in the node
// signature. Changing the signature makes the node outdated.
type Signer interface {
	Signature() string
}

// Node is a unit of the build graph.
//
// Sources are file patterns read by the action, Deps name the nodes that
// must be up to date first, and Targets are the files the action produces.
// A node without targets is always outdated. A nil Action does nothing.
type Node struct {
	Name    string
	Sources []string
	Deps    []string
	Targets []string
	Action  Action
}

// NodeState is the runtime state of a node within one build.
type NodeState string

const (
	NodePending NodeState = "PENDING"
	NodeRunning NodeState = "RUNNING"
	NodeBuilt   NodeState = "BUILT"
	NodeFailed  NodeState = "FAILED"
	NodeSkipped NodeState = "SKIPPED"
	NodeCached  NodeState = "CACHED"
)

// ExecutionState maps node name to its state.
type ExecutionState map[string]NodeState

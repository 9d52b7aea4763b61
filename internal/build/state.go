package build

import (
	"container/heap"
	"fmt"
	"sort"
)

// IsTerminal reports whether the node is finished for this build.
func IsTerminal(s NodeState) bool {
	switch s {
	case NodeBuilt, NodeFailed, NodeSkipped, NodeCached:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether the state satisfies dependants.
func IsSuccessful(s NodeState) bool {
	return s == NodeBuilt || s == NodeCached
}

// Transition moves name from one state to another. The state is changed
// only when name is currently in from and the move is allowed.
func Transition(state ExecutionState, name string, from, to NodeState) error {
	cur, ok := state[name]
	if !ok {
		return fmt.Errorf("unknown node in state: %q", name)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	state[name] = to
	return nil
}

func isAllowedTransition(from, to NodeState) bool {
	switch from {
	case NodePending:
		return to == NodeRunning || to == NodeCached || to == NodeSkipped || to == NodeFailed
	case NodeRunning:
		// Skipped covers tasks discarded by a stopped task manager.
		return to == NodeBuilt || to == NodeFailed || to == NodeSkipped
	default:
		return false
	}
}

// ReadyNodes returns the pending nodes whose dependencies all succeeded,
// sorted by (depth, name).
func ReadyNodes(g *Graph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	var ready []int
	for i, n := range g.nodes {
		if state[n.Name] != NodePending {
			continue
		}
		ok := true
		for _, p := range g.incoming[i] {
			if !IsSuccessful(state[g.nodes[p].Name]) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, i)
		}
	}

	sort.Slice(ready, func(a, b int) bool {
		ia, ib := ready[a], ready[b]
		if g.depth[ia] != g.depth[ib] {
			return g.depth[ia] < g.depth[ib]
		}
		return ia < ib
	})
	return g.names(ready)
}

// FailAndPropagate marks name failed and every pending node reachable from
// it skipped. It returns the skipped names in index order.
func FailAndPropagate(g *Graph, state ExecutionState, name string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	start, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown node: %q", name)
	}

	switch cur := state[name]; cur {
	case NodeRunning, NodePending:
		state[name] = NodeFailed
	case NodeFailed:
	default:
		return nil, fmt.Errorf("cannot fail %q from state %s", name, cur)
	}

	visited := make([]bool, len(g.nodes))
	visited[start] = true
	hq := &intMinHeap{}
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		n := g.nodes[u].Name
		switch st := state[n]; st {
		case NodePending:
			state[n] = NodeSkipped
			skipped = append(skipped, n)
		case NodeRunning:
			return skipped, fmt.Errorf("downstream node %q is running during failure propagation", n)
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return skipped, nil
}

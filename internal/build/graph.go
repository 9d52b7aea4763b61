package build

import (
	"sort"
)

// Graph is an immutable, validated node graph. It is safe for concurrent
// read access.
type Graph struct {
	byName map[string]int
	nodes  []Node // sorted by name

	outgoing [][]int // dependants, ascending
	incoming [][]int // dependencies, ascending
	indeg    []int
	depth    []int
	order    []int // build order: by depth, then name
}

// NewGraph builds and validates a graph. It rejects empty or duplicate
// node names, unknown or repeated dependencies, self-loops, targets
// claimed by two nodes and any cycle.
func NewGraph(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no nodes")
	}

	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	byName := make(map[string]int, len(sorted))
	producer := make(map[string]string)
	for i, n := range sorted {
		if n.Name == "" {
			return nil, invalidf("node name is required")
		}
		if _, exists := byName[n.Name]; exists {
			return nil, invalidf("duplicate node name: %q", n.Name)
		}
		byName[n.Name] = i

		for _, t := range n.Targets {
			if other, ok := producer[t]; ok {
				return nil, invalidf("target %q is produced by %q and %q", t, other, n.Name)
			}
			producer[t] = n.Name
		}
	}

	g := &Graph{
		byName:   byName,
		nodes:    sorted,
		outgoing: make([][]int, len(sorted)),
		incoming: make([][]int, len(sorted)),
		indeg:    make([]int, len(sorted)),
	}

	for to, n := range sorted {
		seen := make(map[int]struct{}, len(n.Deps))
		for _, d := range n.Deps {
			from, ok := byName[d]
			if !ok {
				return nil, invalidf("node %q depends on unknown node %q", n.Name, d)
			}
			if from == to {
				return nil, invalidf("self-loop: %q", n.Name)
			}
			if _, dup := seen[from]; dup {
				return nil, invalidf("duplicate dependency: %q -> %q", d, n.Name)
			}
			seen[from] = struct{}{}
			g.outgoing[from] = append(g.outgoing[from], to)
			g.incoming[to] = append(g.incoming[to], from)
			g.indeg[to]++
		}
	}
	for i := range sorted {
		sort.Ints(g.outgoing[i])
		sort.Ints(g.incoming[i])
	}

	order, depth := g.level()
	if len(order) < len(sorted) {
		return nil, g.cycleError(order)
	}
	g.order, g.depth = order, depth
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.byName[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes ordered by name.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Deps returns the names of the direct dependencies of name, sorted.
func (g *Graph) Deps(name string) []string {
	i, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.incoming[i])
}

// Dependants returns the names of the nodes that depend directly on name.
func (g *Graph) Dependants(name string) []string {
	i, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.names(g.outgoing[i])
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i].Name
	}
	return out
}

// Depth returns the length of the longest dependency path ending at name.
func (g *Graph) Depth(name string) (int, bool) {
	i, ok := g.byName[name]
	if !ok {
		return 0, false
	}
	return g.depth[i], true
}

// TopologicalOrder returns the node names in build order: every node
// follows its dependencies, shallower nodes come first and ties are broken
// by name.
func (g *Graph) TopologicalOrder() []string {
	return g.names(g.order)
}

// InitialState returns a state with every node pending.
func (g *Graph) InitialState() ExecutionState {
	st := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		st[n.Name] = NodePending
	}
	return st
}

package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(specs ...Node) []Node { return specs }

func TestGraph_DependencyChain(t *testing.T) {
	g, err := NewGraph(nodes(
		Node{Name: "C", Deps: []string{"B"}},
		Node{Name: "A"},
		Node{Name: "B", Deps: []string{"A"}},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, g.TopologicalOrder())
	for name, want := range map[string]int{"A": 0, "B": 1, "C": 2} {
		d, ok := g.Depth(name)
		require.True(t, ok)
		assert.Equal(t, want, d, name)
	}
	assert.Equal(t, []string{"B"}, g.Deps("C"))
	assert.Equal(t, []string{"C"}, g.Dependants("B"))
}

func TestGraph_DiamondDepthIsLongestPath(t *testing.T) {
	g, err := NewGraph(nodes(
		Node{Name: "A"},
		Node{Name: "B", Deps: []string{"A"}},
		Node{Name: "C", Deps: []string{"B"}},
		Node{Name: "D", Deps: []string{"A", "C"}},
	))
	require.NoError(t, err)

	d, _ := g.Depth("D")
	assert.Equal(t, 3, d)
	assert.Equal(t, []string{"A", "B", "C", "D"}, g.TopologicalOrder())
}

func TestGraph_InsertionOrderDoesNotMatter(t *testing.T) {
	a, err := NewGraph(nodes(Node{Name: "x"}, Node{Name: "y", Deps: []string{"x"}}, Node{Name: "w"}))
	require.NoError(t, err)
	b, err := NewGraph(nodes(Node{Name: "w"}, Node{Name: "y", Deps: []string{"x"}}, Node{Name: "x"}))
	require.NoError(t, err)

	assert.Equal(t, a.TopologicalOrder(), b.TopologicalOrder())
	assert.Equal(t, []string{"w", "x", "y"}, a.TopologicalOrder())
}

func TestGraph_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		nodes []Node
	}{
		{"empty", nil},
		{"unnamed", nodes(Node{})},
		{"duplicate name", nodes(Node{Name: "a"}, Node{Name: "a"})},
		{"unknown dep", nodes(Node{Name: "a", Deps: []string{"missing"}})},
		{"self loop", nodes(Node{Name: "a", Deps: []string{"a"}})},
		{"duplicate dep", nodes(Node{Name: "a"}, Node{Name: "b", Deps: []string{"a", "a"}})},
		{"shared target", nodes(Node{Name: "a", Targets: []string{"out"}}, Node{Name: "b", Targets: []string{"out"}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGraph(tc.nodes)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestGraph_CycleWitness(t *testing.T) {
	_, err := NewGraph(nodes(
		Node{Name: "a", Deps: []string{"c"}},
		Node{Name: "b", Deps: []string{"a"}},
		Node{Name: "c", Deps: []string{"b"}},
		Node{Name: "d"},
		Node{Name: "e", Deps: []string{"c", "d"}},
	))
	require.ErrorIs(t, err, ErrCycleFound)

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "c", "a"}, ce.Path)
	assert.Equal(t, []string{"a", "b", "c", "e"}, ce.Blocked)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestGraph_CycleBehindPlacedNodes(t *testing.T) {
	_, err := NewGraph(nodes(
		Node{Name: "a"},
		Node{Name: "b", Deps: []string{"a"}},
		Node{Name: "x", Deps: []string{"b", "z"}},
		Node{Name: "y", Deps: []string{"x"}},
		Node{Name: "z", Deps: []string{"y"}},
		Node{Name: "after", Deps: []string{"x"}},
	))
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"x", "y", "z", "x"}, ce.Path)
	assert.Equal(t, []string{"after", "x", "y", "z"}, ce.Blocked)
}

func TestGraph_OrderFollowsDepth(t *testing.T) {
	g, err := NewGraph(nodes(
		Node{Name: "a"},
		Node{Name: "b", Deps: []string{"a"}},
		Node{Name: "c"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, g.TopologicalOrder())
}

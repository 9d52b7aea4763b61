package build

import (
	"slices"
	"sort"
)

// level places nodes in waves: a node joins the wave after the one that
// placed its last dependency, so its wave number is its depth. Placed nodes
// are returned in build order, by depth and then name. Nodes on a cycle, or
// depending on one, are never placed.
func (g *Graph) level() (order, depth []int) {
	depth = make([]int, len(g.nodes))
	waiting := slices.Clone(g.indeg)

	var wave []int
	for i, n := range waiting {
		if n == 0 {
			wave = append(wave, i)
		}
	}
	for d := 0; len(wave) > 0; d++ {
		order = append(order, wave...)
		var next []int
		for _, u := range wave {
			depth[u] = d
			for _, v := range g.outgoing[u] {
				waiting[v]--
				if waiting[v] == 0 {
					next = append(next, v)
				}
			}
		}
		sort.Ints(next)
		wave = next
	}
	return order, depth
}

// cycleError reports the nodes level could not place and one cycle among
// them. Every unplaced node has an unplaced dependency, so walking those
// dependencies must revisit a node.
func (g *Graph) cycleError(placed []int) error {
	done := make([]bool, len(g.nodes))
	for _, i := range placed {
		done[i] = true
	}
	var blocked []int
	for i := range g.nodes {
		if !done[i] {
			blocked = append(blocked, i)
		}
	}

	var walk []int
	seenAt := make(map[int]int)
	for u := blocked[0]; ; {
		if at, ok := seenAt[u]; ok {
			walk = walk[at:]
			break
		}
		seenAt[u] = len(walk)
		walk = append(walk, u)
		for _, p := range g.incoming[u] {
			if !done[p] {
				u = p
				break
			}
		}
	}

	// The walk runs against the edges; report the cycle from dependency to
	// dependant, starting at its first node by name.
	slices.Reverse(walk)
	start := slices.Index(walk, slices.Min(walk))
	cycle := slices.Concat(walk[start:], walk[:start], walk[start:start+1])

	return &CycleError{Path: g.names(cycle), Blocked: g.names(blocked)}
}

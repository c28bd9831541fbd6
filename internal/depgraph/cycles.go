package depgraph

import (
	"sort"
	"strings"
)

type color int

const (
	white color = iota
	gray
	black
)

// FindCycles runs a three-color depth-first search over edges, starting at
// roots and then at every remaining node in lexical order. Each back edge into
// a gray node yields the path from that node around to the edge's source.
// Rotations of one cycle are reported once, starting at the smallest name.
func FindCycles(roots []string, edges map[string][]string) ([][]string, [][2]string) {
	state := make(map[string]color)
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string
	var backEdges [][2]string

	var visit func(name string)
	visit = func(name string) {
		state[name] = gray
		stack = append(stack, name)
		for _, to := range edges[name] {
			switch state[to] {
			case white:
				visit(to)
			case gray:
				backEdges = append(backEdges, [2]string{name, to})
				start := len(stack) - 1
				for stack[start] != to {
					start--
				}
				cycle := canonical(stack[start:])
				key := strings.Join(cycle, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = black
	}

	for _, root := range roots {
		if state[root] == white {
			visit(root)
		}
	}

	rest := make([]string, 0, len(edges))
	for name := range edges {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		if state[name] == white {
			visit(name)
		}
	}
	return cycles, backEdges
}

// canonical copies a cycle rotated to begin at its smallest member
func canonical(path []string) []string {
	first := 0
	for i, name := range path {
		if name < path[first] {
			first = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[first:]...)
	return append(out, path[:first]...)
}

// DetectCycles fills g.Cycles and g.BackEdges
func (g *Graph) DetectCycles() [][]string {
	g.Cycles, g.BackEdges = FindCycles([]string{g.Root}, g.Edges)
	return g.Cycles
}

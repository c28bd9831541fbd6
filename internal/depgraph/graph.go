// Package depgraph builds the module dependency graph of a conversion and
// finds its cycles.
package depgraph

import (
	"sort"
	"strings"
)

// EdgeKind tells how a dependency is addressed
type EdgeKind int

const (
	// EdgeRelative addresses a file of the importing package
	EdgeRelative EdgeKind = iota
	// EdgeBare addresses another package
	EdgeBare
	// EdgeBuiltin addresses a Node core module
	EdgeBuiltin
)

// String returns the kind name
func (k EdgeKind) String() string {
	switch k {
	case EdgeRelative:
		return "relative"
	case EdgeBare:
		return "bare"
	case EdgeBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// ExternalVersion is the version recorded for unresolved nodes
const ExternalVersion = "external"

// Node is one module of the graph
type Node struct {
	Name string `json:"name" yaml:"name"`
	// Version is the resolved version or "external"
	Version    string `json:"version" yaml:"version"`
	IsExternal bool   `json:"is_external" yaml:"is_external"`
	Builtin    bool   `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	// Resolved is false when no source could be found
	Resolved bool `json:"resolved" yaml:"resolved"`
	// Size is the byte length of the resolved code
	Size    int      `json:"size" yaml:"size"`
	Package string   `json:"package,omitempty" yaml:"package,omitempty"`
	Path    string   `json:"path,omitempty" yaml:"path,omitempty"`
	Exports []string `json:"exports,omitempty" yaml:"exports,omitempty"`
	Code    string   `json:"-" yaml:"-"`
}

// Edge is a dependency reference from one module to another
type Edge struct {
	From      string
	To        string
	Specifier string
	Kind      EdgeKind
}

// Graph is the dependency graph of one conversion
type Graph struct {
	Root  string
	Nodes map[string]*Node
	// Edges maps a module to the modules it depends on, in first-reference order
	Edges map[string][]string
	// Specifiers maps importer → literal specifier → node name
	Specifiers map[string]map[string]string
	// Kinds records the edge kind of every importer → node pair
	Kinds  map[string]map[string]EdgeKind
	Cycles [][]string
	// BackEdges are the edges the cycle search broke, as [from, to]
	BackEdges [][2]string
}

// New creates an empty graph rooted at root
func New(root string) *Graph {
	return &Graph{
		Root:       root,
		Nodes:      make(map[string]*Node),
		Edges:      make(map[string][]string),
		Specifiers: make(map[string]map[string]string),
		Kinds:      make(map[string]map[string]EdgeKind),
	}
}

// AddNode inserts n unless a node of that name exists; it returns the stored node
func (g *Graph) AddNode(n *Node) *Node {
	if existing, ok := g.Nodes[n.Name]; ok {
		return existing
	}
	g.Nodes[n.Name] = n
	return n
}

// AddEdge records a dependency; repeated references keep their first position
func (g *Graph) AddEdge(e Edge) {
	if g.Specifiers[e.From] == nil {
		g.Specifiers[e.From] = make(map[string]string)
		g.Kinds[e.From] = make(map[string]EdgeKind)
	}
	g.Specifiers[e.From][e.Specifier] = e.To
	if _, seen := g.Kinds[e.From][e.To]; seen {
		return
	}
	g.Kinds[e.From][e.To] = e.Kind
	g.Edges[e.From] = append(g.Edges[e.From], e.To)
}

// Kind returns the kind of the from → to edge
func (g *Graph) Kind(from, to string) EdgeKind {
	return g.Kinds[from][to]
}

// Dependents lists the modules that depend on name, sorted
func (g *Graph) Dependents(name string) []string {
	var out []string
	for from, tos := range g.Edges {
		for _, to := range tos {
			if to == name {
				out = append(out, from)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// SortedNames returns every node name in lexical order
func (g *Graph) SortedNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Closure returns name and every module reachable from it through relative
// edges, which is the file set of one package entry
func (g *Graph) Closure(name string) []string {
	seen := map[string]bool{name: true}
	order := []string{name}
	for i := 0; i < len(order); i++ {
		for _, to := range g.Edges[order[i]] {
			if g.Kind(order[i], to) == EdgeRelative && !seen[to] {
				seen[to] = true
				order = append(order, to)
			}
		}
	}
	return order
}

// PostOrder lists modules reachable from the root in dependency-first order,
// following only edges accepted by follow. The root comes last. Cycles are
// broken where the walk meets a module already on its path.
func (g *Graph) PostOrder(follow func(from, to string) bool) []string {
	var order []string
	state := make(map[string]color)
	var visit func(name string)
	visit = func(name string) {
		state[name] = gray
		for _, to := range g.Edges[name] {
			if state[to] != white || !follow(name, to) {
				continue
			}
			visit(to)
		}
		state[name] = black
		order = append(order, name)
	}
	visit(g.Root)
	return order
}

// FormatCycle renders a cycle as a → b → a
func FormatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(append(append([]string{}, cycle...), cycle[0]), " → ")
}

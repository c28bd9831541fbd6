package depgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/resolve"
)

func TestFindCycles(t *testing.T) {
	tests := []struct {
		name  string
		roots []string
		edges map[string][]string
		want  [][]string
	}{
		{
			name:  "three node cycle",
			roots: []string{"A"},
			edges: map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}},
			want:  [][]string{{"A", "B", "C"}},
		},
		{
			name:  "acyclic",
			roots: []string{"A"},
			edges: map[string][]string{"A": {"B", "C"}, "B": {"C"}, "C": nil},
			want:  nil,
		},
		{
			name:  "self loop",
			roots: []string{"A"},
			edges: map[string][]string{"A": {"A"}},
			want:  [][]string{{"A"}},
		},
		{
			name:  "rotation starts at smallest member",
			roots: []string{"root"},
			edges: map[string][]string{"root": {"C"}, "C": {"A"}, "A": {"B"}, "B": {"C"}},
			want:  [][]string{{"A", "B", "C"}},
		},
		{
			name:  "unreachable nodes are searched too",
			roots: []string{"A"},
			edges: map[string][]string{"A": nil, "X": {"Y"}, "Y": {"X"}},
			want:  [][]string{{"X", "Y"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles, _ := FindCycles(tt.roots, tt.edges)
			assert.Equal(t, tt.want, cycles)
		})
	}
}

func TestFindCycles_Coalesces(t *testing.T) {
	// the second root reaches the cycle again through B
	edges := map[string][]string{"A": {"B"}, "B": {"A"}, "C": {"B"}}
	cycles, backEdges := FindCycles([]string{"A", "C"}, edges)
	assert.Equal(t, [][]string{{"A", "B"}}, cycles)
	assert.Equal(t, [][2]string{{"B", "A"}}, backEdges)
}

func TestFormatCycle(t *testing.T) {
	assert.Equal(t, "a → b → a", FormatCycle([]string{"a", "b"}))
	assert.Equal(t, "", FormatCycle(nil))
}

func TestGraph_AddEdgeKeepsFirstOrder(t *testing.T) {
	g := New("root")
	g.AddEdge(Edge{From: "root", To: "b", Specifier: "b", Kind: EdgeBare})
	g.AddEdge(Edge{From: "root", To: "a", Specifier: "./a", Kind: EdgeRelative})
	g.AddEdge(Edge{From: "root", To: "b", Specifier: "b/index", Kind: EdgeBare})

	assert.Equal(t, []string{"b", "a"}, g.Edges["root"])
	assert.Equal(t, "b", g.Specifiers["root"]["b/index"])
	assert.Equal(t, EdgeRelative, g.Kind("root", "a"))
	assert.Equal(t, []string{"root"}, g.Dependents("a"))
}

func TestGraph_PostOrderAndClosure(t *testing.T) {
	g := New("root")
	g.AddEdge(Edge{From: "root", To: "x", Specifier: "x", Kind: EdgeBare})
	g.AddEdge(Edge{From: "root", To: "./a.js", Specifier: "./a", Kind: EdgeRelative})
	g.AddEdge(Edge{From: "x", To: "x/util.js", Specifier: "./util", Kind: EdgeRelative})
	g.AddEdge(Edge{From: "x/util.js", To: "x", Specifier: "x", Kind: EdgeBare})

	all := g.PostOrder(func(string, string) bool { return true })
	assert.Equal(t, []string{"x/util.js", "x", "./a.js", "root"}, all)

	relativeOnly := g.PostOrder(func(from, to string) bool { return g.Kind(from, to) == EdgeRelative })
	assert.Equal(t, []string{"./a.js", "root"}, relativeOnly)

	assert.Equal(t, []string{"x", "x/util.js"}, g.Closure("x"))
}

func TestBuilder_Build(t *testing.T) {
	files := &resolve.FilesResolver{Files: map[string]string{
		"index.js": `var _ = require('lodash');
var helper = require('./lib/helper');
var fs = require('fs');
var missing = require('left-pad');
module.exports = _.map([helper], String);`,
		"lib/helper.js": "exports.help = function () { return require('../index'); };",
	}}
	deps := resolve.MapResolver{
		"lodash": "exports.map = function () {}; exports.filter = function () {};",
	}
	root := files.Module("index.js")

	b := NewBuilder(resolve.Chain{files, deps}, Options{ForceInline: []string{"lodash"}})
	g, issues, err := b.Build(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "./index.js", g.Root)
	assert.Equal(t, []string{"lodash", "./lib/helper.js", "fs", "left-pad"}, g.Edges["./index.js"])

	lodash := g.Nodes["lodash"]
	require.NotNil(t, lodash)
	assert.True(t, lodash.Resolved)
	assert.False(t, lodash.IsExternal, "force-inline dependencies are not external")
	assert.Equal(t, []string{"map", "filter"}, lodash.Exports)

	fs := g.Nodes["fs"]
	assert.True(t, fs.Builtin)
	assert.False(t, fs.IsExternal)
	assert.Equal(t, EdgeBuiltin, g.Kind("./index.js", "fs"))

	leftPad := g.Nodes["left-pad"]
	assert.False(t, leftPad.Resolved)
	assert.True(t, leftPad.IsExternal)
	assert.Equal(t, ExternalVersion, leftPad.Version)

	helper := g.Nodes["./lib/helper.js"]
	assert.False(t, helper.IsExternal)
	assert.Equal(t, []string{"help"}, helper.Exports)

	require.Len(t, g.Cycles, 1)
	assert.ElementsMatch(t, []string{"./index.js", "./lib/helper.js"}, g.Cycles[0])
	assert.Equal(t, 1, diagnostic.Count(issues, diagnostic.LevelWarning))
}

func TestBuilder_SkipBare(t *testing.T) {
	files := &resolve.FilesResolver{Files: map[string]string{
		"index.js": "import { map } from 'lodash';\nexport const x = map;\n",
	}}
	b := NewBuilder(files, Options{SkipBare: true})
	g, issues, err := b.Build(context.Background(), files.Module("index.js"))
	require.NoError(t, err)
	assert.Empty(t, issues)

	node := g.Nodes["lodash"]
	require.NotNil(t, node)
	assert.True(t, node.IsExternal)
	assert.False(t, node.Resolved)
	assert.Empty(t, g.Cycles)
}

func TestBuilder_SkipBareResolvesForceInline(t *testing.T) {
	files := &resolve.FilesResolver{Files: map[string]string{
		"index.js": "var ms = require('ms');\nvar _ = require('lodash');\n",
	}}
	deps := resolve.MapResolver{"ms": "module.exports = function () {};\n", "lodash": "module.exports = {};\n"}
	b := NewBuilder(resolve.Chain{files, deps}, Options{SkipBare: true, ForceInline: []string{"ms"}})
	g, _, err := b.Build(context.Background(), files.Module("index.js"))
	require.NoError(t, err)

	require.Contains(t, g.Nodes, "ms")
	assert.True(t, g.Nodes["ms"].Resolved)
	assert.False(t, g.Nodes["ms"].IsExternal)

	require.Contains(t, g.Nodes, "lodash")
	assert.False(t, g.Nodes["lodash"].Resolved, "bare dependencies that are not forced stay unresolved")
	assert.True(t, g.Nodes["lodash"].IsExternal)
}

func TestBuilder_UnparseableFallsBack(t *testing.T) {
	files := &resolve.FilesResolver{Files: map[string]string{
		"index.js": "var a = require('a'); function (",
	}}
	b := NewBuilder(files, Options{SkipBare: true})
	g, issues, err := b.Build(context.Background(), files.Module("index.js"))
	require.NoError(t, err)

	assert.Contains(t, g.Nodes, "a")
	require.Len(t, issues, 1)
	assert.Equal(t, diagnostic.LevelInfo, issues[0].Level)
}

func TestExtract(t *testing.T) {
	code := "const a = require('a');\nimport b from 'b';\nconst again = require('a');\nconst lazy = import('c');\nrequire(dynamic);\n"
	assert.Equal(t, []string{"a", "b"}, Extract(context.Background(), "index.js", code))
}

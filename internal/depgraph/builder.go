package depgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
	"github.com/fluxbase-eu/outpack/internal/nodeapi"
	"github.com/fluxbase-eu/outpack/internal/npm"
	"github.com/fluxbase-eu/outpack/internal/resolve"
)

// Options tune graph construction
type Options struct {
	// ForceInline names dependencies never tagged external
	ForceInline []string
	// SkipBare records bare dependencies without resolving them. Force-inlined
	// dependencies are still resolved.
	SkipBare bool
}

// Builder extracts dependency edges from module source and resolves them
type Builder struct {
	resolver    resolve.Resolver
	opts        Options
	forceInline map[string]bool
}

// NewBuilder creates a graph builder
func NewBuilder(resolver resolve.Resolver, opts Options) *Builder {
	return &Builder{
		resolver:    resolver,
		opts:        opts,
		forceInline: lo.SliceToMap(opts.ForceInline, func(s string) (string, bool) { return s, true }),
	}
}

// Build walks every module reachable from root. Unresolvable specifiers
// become unresolved nodes; strategies decide whether that is fatal.
func (b *Builder) Build(ctx context.Context, root *resolve.Module) (*Graph, []diagnostic.Issue, error) {
	g := New(root.Name)
	var issues []diagnostic.Issue

	rootNode := g.AddNode(nodeFor(root))
	rootNode.Resolved = true

	modules := map[string]*resolve.Module{root.Name: root}
	queue := []string{root.Name}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := queue[0]
		queue = queue[1:]
		mod := modules[name]

		refs, exports, issue := scan(ctx, mod)
		if issue != nil {
			issues = append(issues, *issue)
		}
		g.Nodes[name].Exports = exports

		for _, ref := range refs {
			if ref.TypeOnly || ref.Kind == jsast.KindDynamic {
				continue
			}
			spec := ref.Specifier

			if !resolve.IsRelative(spec) && nodeapi.IsBuiltin(spec) {
				n := g.AddNode(&Node{Name: spec, Version: ExternalVersion, Builtin: true})
				g.AddEdge(Edge{From: name, To: n.Name, Specifier: spec, Kind: EdgeBuiltin})
				continue
			}

			kind := EdgeBare
			if resolve.IsRelative(spec) {
				kind = EdgeRelative
			}

			if kind == EdgeBare && b.opts.SkipBare && !b.isForced(spec) {
				n := g.AddNode(&Node{Name: spec, Version: ExternalVersion, IsExternal: b.isExternal(spec)})
				g.AddEdge(Edge{From: name, To: n.Name, Specifier: spec, Kind: kind})
				continue
			}

			resolved, err := b.resolver.Resolve(ctx, spec, mod)
			if err != nil {
				if !errors.Is(err, resolve.ErrNotFound) {
					return nil, nil, fmt.Errorf("failed to resolve %s from %s: %w", spec, name, err)
				}
				log.Debug().Str("specifier", spec).Str("importer", name).Msg("Dependency not resolved")
				target := spec
				if kind == EdgeRelative {
					target = resolve.NodeName(mod.Package, resolve.Join(mod.Path, spec))
					issues = append(issues, diagnostic.Warning(fmt.Sprintf("cannot resolve %s", spec)).InFile(name))
				}
				n := g.AddNode(&Node{Name: target, Version: ExternalVersion, IsExternal: kind == EdgeBare && b.isExternal(spec)})
				g.AddEdge(Edge{From: name, To: n.Name, Specifier: spec, Kind: kind})
				continue
			}

			if _, known := modules[resolved.Name]; !known {
				modules[resolved.Name] = resolved
				n := nodeFor(resolved)
				n.Resolved = true
				n.IsExternal = kind == EdgeBare && b.isExternal(spec)
				g.AddNode(n)
				queue = append(queue, resolved.Name)
			}
			g.AddEdge(Edge{From: name, To: resolved.Name, Specifier: spec, Kind: kind})
		}
	}

	for _, cycle := range g.DetectCycles() {
		issues = append(issues, diagnostic.Warning("circular dependency: "+FormatCycle(cycle)).
			WithSuggestion("the cycle is broken at its closing edge; the module on that edge sees a partially initialized export"))
	}

	log.Debug().
		Int("nodes", len(g.Nodes)).
		Int("cycles", len(g.Cycles)).
		Msg("Dependency graph built")
	return g, issues, nil
}

// isExternal applies the naming rule to a bare specifier
func (b *Builder) isExternal(spec string) bool {
	if resolve.IsRelative(spec) || nodeapi.IsBuiltin(spec) {
		return false
	}
	return !b.isForced(spec)
}

func (b *Builder) isForced(spec string) bool {
	name, _ := npm.SplitSpecifier(spec)
	return b.forceInline[spec] || b.forceInline[name]
}

func nodeFor(mod *resolve.Module) *Node {
	version := mod.Version
	if version == "" {
		version = "0.0.0"
	}
	return &Node{
		Name:    mod.Name,
		Version: version,
		Size:    len(mod.Code),
		Package: mod.Package,
		Path:    mod.Path,
		Exports: mod.Exports,
		Code:    mod.Code,
	}
}

// scan extracts references and exports, falling back to a regex scan
func scan(ctx context.Context, mod *resolve.Module) ([]jsast.ImportRef, []string, *diagnostic.Issue) {
	path := mod.Path
	if path == "" {
		path = mod.Name
	}
	f, err := jsast.Parse(ctx, path, mod.Code, jsast.DetectSyntax(path, mod.Code))
	if err != nil {
		issue := diagnostic.Info("dependency scan used pattern matching: " + err.Error()).InFile(mod.Name)
		return jsast.ScanImports(mod.Code), mod.Exports, &issue
	}
	defer f.Close()
	exports := f.Exports()
	if len(exports) == 0 {
		exports = mod.Exports
	}
	return f.Imports(), exports, nil
}

// Extract returns the distinct dependency names referenced by one source
// text, in first-reference order. Type-only and dynamic imports are ignored.
func Extract(ctx context.Context, path, code string) []string {
	refs, _, _ := scan(ctx, &resolve.Module{Name: path, Path: path, Code: code})
	var names []string
	for _, ref := range refs {
		if !ref.TypeOnly && ref.Kind != jsast.KindDynamic {
			names = append(names, ref.Specifier)
		}
	}
	return lo.Uniq(names)
}

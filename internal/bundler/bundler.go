// Package bundler assembles a converted package and its dependencies into one
// factory body.
//
// Every module of the bundle is evaluated once inside its own function scope
// and stored on a local `__deps` object; literal require calls are rewritten
// to read from it. The main module runs last against the factory's own
// `module` and `exports`.
package bundler

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/depgraph"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
)

const (
	// MainMarker precedes the main module in the assembled body
	MainMarker = "// === Main Module ==="
	// StrictDirective opens the assembled body
	StrictDirective = "'use strict';"

	depsObject = "__deps"
	rootObject = "__root"
	emptyValue = "({})"
)

// BundledCode is the assembled body of one conversion
type BundledCode struct {
	Code string `json:"code" yaml:"code"`
	// BundledDependencies lists the dependencies physically included, in emission order
	BundledDependencies []string `json:"bundled_dependencies" yaml:"bundled_dependencies"`
	// UnminifiedSize is the byte length before optimization
	UnminifiedSize int         `json:"unminified_size" yaml:"unminified_size"`
	Plan           *BundlePlan `json:"plan" yaml:"plan"`
}

// Bundle plans the graph, assembles the body, optimizes and validates it.
// Size and balance violations are returned as *BundleTooLargeError and
// *AssemblyImbalanceError.
func (b *Bundler) Bundle(ctx context.Context, g *depgraph.Graph) (*BundledCode, []diagnostic.Issue, error) {
	if g == nil || g.Nodes[g.Root] == nil {
		return nil, nil, fmt.Errorf("dependency graph has no root module")
	}
	log.Info().Str("strategy", b.opts.Strategy.String()).Int("modules", len(g.Nodes)).Msg("Bundling dependencies")

	plan, issues, err := b.Plan(ctx, g)
	if err != nil {
		return nil, nil, err
	}

	assembled, bundled, more, err := b.assemble(ctx, g, plan)
	if err != nil {
		return nil, nil, err
	}
	issues = append(issues, more...)

	optimized := Optimize(ctx, assembled, b.opts.StripComments)
	if err := Validate(optimized, b.opts.MaxSize); err != nil {
		log.Error().Err(err).Msg("Bundle validation failed")
		return nil, nil, err
	}

	log.Info().
		Strs("bundled", bundled).
		Int("unminified_size", len(assembled)).
		Int("size", len(optimized)).
		Msg("Bundle assembled")
	return &BundledCode{
		Code:                optimized,
		BundledDependencies: bundled,
		UnminifiedSize:      len(assembled),
		Plan:                plan,
	}, issues, nil
}

// assemble writes the body: directive, factory locals, external guards,
// module sections in dependency order and finally the main module
func (b *Bundler) assemble(ctx context.Context, g *depgraph.Graph, plan *BundlePlan) (string, []string, []diagnostic.Issue, error) {
	order := g.PostOrder(func(_, to string) bool { return plan.modules[to] })

	binds := newBindings()
	for _, name := range sortedKeys(plan.modules) {
		if name != g.Root {
			binds.assign(name)
		}
	}
	for _, name := range plan.externals {
		binds.assign(name)
	}

	var issues []diagnostic.Issue
	var body strings.Builder
	body.WriteString(StrictDirective + "\n")
	body.WriteString("var module = { exports: {} };\n")
	body.WriteString("var exports = module.exports;\n")
	body.WriteString("var " + depsObject + " = {};\n\n")

	if len(plan.externals) > 0 {
		body.WriteString("var " + rootObject + " = typeof globalThis !== 'undefined' ? globalThis : typeof window !== 'undefined' ? window : typeof self !== 'undefined' ? self : {};\n\n")
		for _, name := range plan.externals {
			id, _ := binds.lookup(name)
			global := rootObject + memberAccess(GlobalName(name, b.opts.Globals))
			fmt.Fprintf(&body, "// === External: %s ===\n", name)
			fmt.Fprintf(&body, "if (typeof %s === 'undefined') {\n", global)
			fmt.Fprintf(&body, "  throw new Error(%s);\n", quote("External dependency not found: "+name))
			body.WriteString("}\n")
			fmt.Fprintf(&body, "%s.%s = %s;\n\n", depsObject, id, global)
		}
	}

	var bundled []string
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return "", nil, nil, err
		}
		if name == g.Root {
			continue
		}
		node := g.Nodes[name]
		code, rewriteIssues := rewriteRequires(ctx, g, name, node.Code, binds)
		issues = append(issues, rewriteIssues...)
		id, _ := binds.lookup(name)

		switch plan.decisions[name] {
		case DecisionInline:
			fmt.Fprintf(&body, "// === Dependency: %s ===\n", name)
			bundled = append(bundled, name)
		case DecisionTreeShake:
			fmt.Fprintf(&body, "// === Dependency: %s ===\n", name)
			bundled = append(bundled, name)
			writeStub(&body, id, code, plan.TreeShakenExports[name])
			continue
		default:
			fmt.Fprintf(&body, "// === Module: %s ===\n", name)
		}
		writeModule(&body, depsObject+"."+id, code)
	}

	root := g.Nodes[g.Root]
	main, rootIssues := rewriteRequires(ctx, g, g.Root, root.Code, binds)
	issues = append(issues, rootIssues...)
	body.WriteString(MainMarker + "\n")
	body.WriteString(main)
	if !strings.HasSuffix(main, "\n") {
		body.WriteString("\n")
	}
	body.WriteString("return module.exports;\n")

	return body.String(), bundled, issues, nil
}

// writeModule evaluates code in an isolated CommonJS scope and stores its exports
func writeModule(body *strings.Builder, target, code string) {
	body.WriteString(target + " = (function () {\n")
	writeScope(body, code)
	body.WriteString("})();\n\n")
}

func writeScope(body *strings.Builder, code string) {
	body.WriteString("var module = { exports: {} };\n")
	body.WriteString("var exports = module.exports;\n")
	body.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		body.WriteString("\n")
	}
	body.WriteString("return module.exports;\n")
}

// writeStub evaluates the full module and exposes only the kept exports
func writeStub(body *strings.Builder, id, code string, exports []string) {
	body.WriteString(depsObject + "." + id + " = (function () {\n")
	body.WriteString("var __full = (function () {\n")
	writeScope(body, code)
	body.WriteString("})();\n")
	props := make([]string, 0, len(exports))
	for _, name := range exports {
		key := name
		if !isIdentifier(name) {
			key = quote(name)
		}
		props = append(props, key+": __full"+memberAccess(name))
	}
	body.WriteString("return { " + strings.Join(props, ", ") + " };\n")
	body.WriteString("})();\n\n")
}

var requireCall = regexp.MustCompile(`require\s*\(\s*(['"])([^'"]+)['"]\s*\)`)

// rewriteRequires points literal require calls at bundle bindings. Calls of
// modules without a binding get an empty object; the ones naming Node
// built-ins are reported.
func rewriteRequires(ctx context.Context, g *depgraph.Graph, name, code string, binds *bindings) (string, []diagnostic.Issue) {
	var issues []diagnostic.Issue
	reported := make(map[string]bool)
	replacement := func(spec string) (string, bool) {
		to, ok := g.Specifiers[name][spec]
		if !ok {
			return "", false
		}
		if id, ok := binds.lookup(to); ok {
			return depsObject + "." + id, true
		}
		if g.Kind(name, to) == depgraph.EdgeBuiltin && !reported[spec] {
			reported[spec] = true
			issues = append(issues, diagnostic.Warning(fmt.Sprintf("Node built-in %q has no browser polyfill; require replaced with an empty object", spec)).
				InFile(name).
				ForAPI(spec))
		}
		return emptyValue, true
	}

	path := g.Nodes[name].Path
	if path == "" {
		path = "index.js"
	}
	f, err := jsast.Parse(ctx, path, code, jsast.DetectSyntax(path, code))
	if err != nil {
		log.Debug().Err(err).Str("module", name).Msg("Rewriting requires by pattern")
		return requireCall.ReplaceAllStringFunc(code, func(call string) string {
			m := requireCall.FindStringSubmatch(call)
			if r, ok := replacement(m[2]); ok {
				return r
			}
			return call
		}), issues
	}
	defer f.Close()

	var edits []jsast.Edit
	for _, ref := range f.Imports() {
		if ref.Kind != jsast.KindRequire {
			continue
		}
		if r, ok := replacement(ref.Specifier); ok {
			edits = append(edits, jsast.Replace(ref.Node, r))
		}
	}
	out, err := jsast.Apply(f.Source, edits)
	if err != nil {
		return code, issues
	}
	return out, issues
}

func sortedKeys(m map[string]bool) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

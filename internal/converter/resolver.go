package converter

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
	"github.com/fluxbase-eu/outpack/internal/resolve"
	"github.com/fluxbase-eu/outpack/internal/transform"
)

// transformingResolver runs dependency sources through the transformer as
// they are resolved, so bundled dependencies get the same rewrite as the
// package itself
type transformingResolver struct {
	inner       resolve.Resolver
	transformer *transform.Transformer

	mu   sync.Mutex
	done map[string]*transformed
}

type transformed struct {
	code      string
	polyfills []string
	issues    []diagnostic.Issue
	target    transform.Target
}

func newTransformingResolver(inner resolve.Resolver, t *transform.Transformer) *transformingResolver {
	return &transformingResolver{inner: inner, transformer: t, done: make(map[string]*transformed)}
}

// Resolve resolves through the wrapped resolver and transforms the module's code
func (r *transformingResolver) Resolve(ctx context.Context, specifier string, importer *resolve.Module) (*resolve.Module, error) {
	mod, err := r.inner.Resolve(ctx, specifier, importer)
	if err != nil || !jsast.IsSourceFile(mod.Path) {
		return mod, err
	}

	r.mu.Lock()
	t, ok := r.done[mod.Name]
	r.mu.Unlock()
	if !ok {
		result, issues := r.transformer.Apply(ctx, analyzer.SourceFile{Path: mod.Path, Content: mod.Code})
		t = &transformed{code: result.Code, polyfills: result.Polyfills, issues: relocate(issues, mod.Name), target: result.Target}
		log.Debug().Str("module", mod.Name).Strs("polyfills", t.polyfills).Msg("Dependency transformed")
		r.mu.Lock()
		r.done[mod.Name] = t
		r.mu.Unlock()
	}

	out := *mod
	out.Code = t.code
	return &out, nil
}

// collected returns the polyfills, issues and highest emitted target of the
// dependency modules the plan put in the bundle
func (r *transformingResolver) collected(plan *bundler.BundlePlan, target transform.Target) ([]string, []diagnostic.Issue, transform.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := lo.Filter(lo.Keys(r.done), func(name string, _ int) bool { return plan.Includes(name) })
	sort.Strings(names)
	var polyfills []string
	var issues []diagnostic.Issue
	for _, name := range names {
		polyfills = append(polyfills, r.done[name].polyfills...)
		issues = append(issues, r.done[name].issues...)
		target = max(target, r.done[name].target)
	}
	polyfills = lo.Uniq(polyfills)
	sort.Strings(polyfills)
	return polyfills, issues, target
}

// relocate points issue locations at the module's graph name
func relocate(issues []diagnostic.Issue, name string) []diagnostic.Issue {
	return lo.Map(issues, func(issue diagnostic.Issue, _ int) diagnostic.Issue {
		if issue.Location == nil {
			return issue.InFile(name)
		}
		return issue.At(name, issue.Location.Line, issue.Location.Column)
	})
}

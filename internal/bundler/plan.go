package bundler

import (
	"context"
	"fmt"
	"sort"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/depgraph"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/npm"
)

// DefaultSmallUtilities are dependencies Hybrid inlines regardless of size
var DefaultSmallUtilities = []string{"classnames", "clsx", "ms", "nanoid", "tiny-invariant", "tiny-warning", "uuid"}

// Decision is the fate of one dependency
type Decision int

const (
	// DecisionNone means the dependency was not reached
	DecisionNone Decision = iota
	// DecisionInline includes the dependency in full
	DecisionInline
	// DecisionTreeShake includes the dependency behind a stub exposing only used exports
	DecisionTreeShake
	// DecisionExternal expects the dependency as a host global
	DecisionExternal
	// DecisionDrop leaves the dependency out
	DecisionDrop
)

// String returns the decision name
func (d Decision) String() string {
	switch d {
	case DecisionInline:
		return "inline"
	case DecisionTreeShake:
		return "tree-shake"
	case DecisionExternal:
		return "external"
	case DecisionDrop:
		return "drop"
	default:
		return "none"
	}
}

// BundlePlan records what happens to every dependency of a conversion
type BundlePlan struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	// Inlined lists included dependencies, in full or tree-shaken, sorted
	Inlined  []string `json:"inlined" yaml:"inlined"`
	External []string `json:"external" yaml:"external"`
	Dropped  []string `json:"dropped" yaml:"dropped"`
	// TreeShakenExports maps each tree-shaken dependency to the exports kept
	TreeShakenExports map[string][]string `json:"tree_shaken_exports" yaml:"tree_shaken_exports"`

	decisions map[string]Decision
	// modules are the graph nodes whose code goes into the bundle
	modules map[string]bool
	// externals in first-reference order
	externals []string
}

// Decision returns the decision recorded for a dependency
func (p *BundlePlan) Decision(name string) Decision {
	return p.decisions[name]
}

// Includes reports whether a module's code is part of the bundle
func (p *BundlePlan) Includes(name string) bool {
	return p.modules[name]
}

// Options configure a Bundler
type Options struct {
	Strategy Strategy
	// MaxSize is the byte budget of the optimized bundle; zero disables the check
	MaxSize int
	// Exclude holds glob patterns of dependencies to leave out
	Exclude []string
	// ForceInline names dependencies always included in full
	ForceInline []string
	// SmallUtilities are inlined by Hybrid regardless of size
	SmallUtilities []string
	// InlineThreshold is the Hybrid size limit for inlining; zero uses MaxSize/10
	InlineThreshold int
	// Globals maps dependencies to the global names External expects
	Globals map[string]string
	// StripComments removes comments other than legal and section markers
	StripComments bool
}

// Bundler assembles converted modules into one body
type Bundler struct {
	opts           Options
	exclude        []glob.Glob
	forceInline    map[string]bool
	smallUtilities map[string]bool
}

// New creates a bundler; it fails on malformed exclude patterns
func New(opts Options) (*Bundler, error) {
	b := &Bundler{
		opts:           opts,
		forceInline:    lo.SliceToMap(opts.ForceInline, func(s string) (string, bool) { return s, true }),
		smallUtilities: lo.SliceToMap(opts.SmallUtilities, func(s string) (string, bool) { return s, true }),
	}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		b.exclude = append(b.exclude, g)
	}
	if b.opts.InlineThreshold <= 0 {
		b.opts.InlineThreshold = b.opts.MaxSize / 10
	}
	return b, nil
}

// isForced applies the force-inline list to a specifier or its package
func (b *Bundler) isForced(name string) bool {
	pkg, _ := npm.SplitSpecifier(name)
	return b.forceInline[name] || b.forceInline[pkg]
}

// isExcluded matches exclude patterns against a specifier or its package
func (b *Bundler) isExcluded(name string) bool {
	pkg, _ := npm.SplitSpecifier(name)
	for _, g := range b.exclude {
		if g.Match(name) || g.Match(pkg) {
			return true
		}
	}
	return false
}

func (b *Bundler) isSmallUtility(name string) bool {
	pkg, _ := npm.SplitSpecifier(name)
	return b.smallUtilities[name] || b.smallUtilities[pkg]
}

// Plan walks the graph from its root and decides the fate of every
// dependency an included module reaches. Relative modules follow their
// importer. Force-inline beats exclude, which beats the strategy.
func (b *Bundler) Plan(ctx context.Context, g *depgraph.Graph) (*BundlePlan, []diagnostic.Issue, error) {
	plan := &BundlePlan{
		Strategy:          b.opts.Strategy,
		Inlined:           []string{},
		External:          []string{},
		Dropped:           []string{},
		TreeShakenExports: map[string][]string{},
		decisions:         make(map[string]Decision),
		modules:           map[string]bool{g.Root: true},
	}
	var issues []diagnostic.Issue
	used := make(map[string]map[string]bool)

	queue := []string{g.Root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := queue[0]
		queue = queue[1:]

		var usage map[string][]string
		if b.opts.Strategy == Selective {
			usage = b.usage(ctx, g, name)
		}

		for _, to := range g.Edges[name] {
			node := g.Nodes[to]
			switch g.Kind(name, to) {
			case depgraph.EdgeBuiltin:
				continue
			case depgraph.EdgeRelative:
				if node.Resolved && !plan.modules[to] {
					plan.modules[to] = true
					queue = append(queue, to)
				}
				continue
			}

			prev := plan.decisions[to]
			if prev == DecisionInline || prev == DecisionExternal {
				continue
			}
			decision, err := b.decide(g, node, name, usage[to])
			if err != nil {
				return nil, nil, err
			}
			switch decision {
			case DecisionDrop:
				if prev == DecisionNone {
					plan.decisions[to] = DecisionDrop
				}
				continue
			case DecisionExternal:
				plan.decisions[to] = DecisionExternal
				plan.externals = append(plan.externals, to)
				continue
			case DecisionTreeShake:
				if used[to] == nil {
					used[to] = make(map[string]bool)
				}
				for _, p := range exportedProps(node, usage[to]) {
					used[to][p] = true
				}
			}
			plan.decisions[to] = decision
			if !plan.modules[to] {
				plan.modules[to] = true
				queue = append(queue, to)
			}
		}
	}

	for name, d := range plan.decisions {
		switch d {
		case DecisionInline:
			plan.Inlined = append(plan.Inlined, name)
		case DecisionTreeShake:
			plan.Inlined = append(plan.Inlined, name)
			plan.TreeShakenExports[name] = lo.Keys(used[name])
			sort.Strings(plan.TreeShakenExports[name])
		case DecisionExternal:
			plan.External = append(plan.External, name)
		case DecisionDrop:
			plan.Dropped = append(plan.Dropped, name)
			issues = append(issues, diagnostic.Info(fmt.Sprintf("dependency %s is not included in the bundle", name)).ForAPI(name))
		}
	}
	sort.Strings(plan.Inlined)
	sort.Strings(plan.External)
	sort.Strings(plan.Dropped)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].API < issues[j].API })

	log.Debug().
		Str("strategy", b.opts.Strategy.String()).
		Strs("inlined", plan.Inlined).
		Strs("external", plan.External).
		Strs("dropped", plan.Dropped).
		Msg("Bundle plan ready")
	return plan, issues, nil
}

// decide applies the precedence rules to one bare dependency as seen from
// one importer. props are the exports the importer reads (Selective only).
func (b *Bundler) decide(g *depgraph.Graph, node *depgraph.Node, importer string, props []string) (Decision, error) {
	missing := func() (Decision, error) {
		return DecisionNone, &MissingDependencyError{Dependency: node.Name, RequiredBy: importer}
	}

	if b.isForced(node.Name) {
		if !node.Resolved {
			return missing()
		}
		return DecisionInline, nil
	}
	if b.isExcluded(node.Name) {
		return DecisionDrop, nil
	}

	switch b.opts.Strategy {
	case External:
		return DecisionExternal, nil
	case Selective:
		if len(exportedProps(node, props)) == 0 {
			return DecisionDrop, nil
		}
		if !node.Resolved {
			return missing()
		}
		return DecisionTreeShake, nil
	case Hybrid:
		if !node.Resolved {
			return DecisionExternal, nil
		}
		if b.isSmallUtility(node.Name) || closureSize(g, node.Name) < b.opts.InlineThreshold {
			return DecisionInline, nil
		}
		return DecisionExternal, nil
	default:
		if !node.Resolved {
			return missing()
		}
		return DecisionInline, nil
	}
}

// exportedProps keeps the props a dependency declares, when its exports are known
func exportedProps(node *depgraph.Node, props []string) []string {
	if len(node.Exports) == 0 {
		return props
	}
	declared := lo.SliceToMap(node.Exports, func(s string) (string, bool) { return s, true })
	return lo.Filter(props, func(p string, _ int) bool { return declared[p] })
}

// closureSize sums the code size of a package entry and the files it pulls in
func closureSize(g *depgraph.Graph, name string) int {
	return lo.SumBy(g.Closure(name), func(n string) int {
		if node := g.Nodes[n]; node != nil {
			return node.Size
		}
		return 0
	})
}

// usage scans one module for the exports it reads from its bare dependencies
func (b *Bundler) usage(ctx context.Context, g *depgraph.Graph, name string) map[string][]string {
	node := g.Nodes[name]
	if node == nil || node.Code == "" {
		return nil
	}
	targets := make(map[string]string)
	names := make(map[string]string)
	for spec, to := range g.Specifiers[name] {
		if g.Kind(name, to) != depgraph.EdgeBare {
			continue
		}
		targets[spec] = to
		names[Sanitize(to)] = to
	}
	if len(targets) == 0 {
		return nil
	}
	path := node.Path
	if path == "" {
		path = "index.js"
	}
	return usageScan{targets: targets, names: names}.run(ctx, path, node.Code)
}

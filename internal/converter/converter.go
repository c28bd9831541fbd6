// Package converter runs a whole conversion: analysis and the feasibility
// gate, transformation, dependency graph construction, bundling, polyfill
// injection and output generation, in that order.
package converter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/depgraph"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
	"github.com/fluxbase-eu/outpack/internal/npm"
	"github.com/fluxbase-eu/outpack/internal/output"
	"github.com/fluxbase-eu/outpack/internal/polyfill"
	"github.com/fluxbase-eu/outpack/internal/resolve"
	"github.com/fluxbase-eu/outpack/internal/transform"
)

var (
	// ErrInfeasible is returned when the analysis rules out a conversion
	ErrInfeasible = errors.New("conversion is not feasible")
	// ErrNoEntryPoint is returned when none of the package's entry files exist
	ErrNoEntryPoint = errors.New("entry point not found")
)

// Result is the outcome of one conversion
type Result struct {
	RunID    string                   `json:"run_id" yaml:"run_id"`
	Analysis *analyzer.AnalysisResult `json:"analysis" yaml:"analysis"`
	Plan     *bundler.BundlePlan      `json:"plan,omitempty" yaml:"plan,omitempty"`
	// BundledDependencies lists dependencies physically included, in emission order
	BundledDependencies []string `json:"bundled_dependencies" yaml:"bundled_dependencies"`
	// Polyfills are the injected polyfill names, sorted
	Polyfills []string `json:"polyfills" yaml:"polyfills"`
	// Cycles found among the bundled modules
	Cycles [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	// Issues from every stage, analysis first
	Issues []diagnostic.Issue `json:"issues" yaml:"issues"`
	// Target is the language level the bundle was emitted at, which is above
	// the configured target when some module could not be lowered
	Target   transform.Target `json:"target" yaml:"target"`
	Output   *output.Output   `json:"output,omitempty" yaml:"output,omitempty"`
	Code     string           `json:"-" yaml:"-"`
	Duration time.Duration    `json:"duration" yaml:"duration"`
}

// Converter holds the configured pipeline stages
type Converter struct {
	opts        Options
	analyzer    *analyzer.Analyzer
	transformer *transform.Transformer
	bundler     *bundler.Bundler
	injector    *polyfill.Injector
	generator   *output.Generator
	// deps resolves bare specifiers; nil leaves every dependency unresolved
	deps resolve.Resolver
}

// New creates a converter. registry supplies polyfill bodies and deps
// resolves the package's dependencies.
func New(opts Options, registry *polyfill.Registry, deps resolve.Resolver) (*Converter, error) {
	b, err := bundler.New(opts.bundlerOptions())
	if err != nil {
		return nil, err
	}
	gen, err := output.NewGenerator(opts.outputOptions())
	if err != nil {
		return nil, err
	}
	if registry == nil {
		registry = polyfill.Builtin()
	}
	return &Converter{
		opts:        opts,
		analyzer:    analyzer.New(analyzer.Options{Workers: opts.Workers}),
		transformer: transform.New(opts.transformOptions()),
		bundler:     b,
		injector:    polyfill.NewInjector(registry),
		generator:   gen,
		deps:        deps,
	}, nil
}

// Analyze runs the read-only compatibility pass over a package
func (c *Converter) Analyze(ctx context.Context, pkg *npm.Package) (*analyzer.AnalysisResult, error) {
	info, err := analyzer.PackageInfoFrom(pkg.Manifest)
	if err != nil {
		return nil, err
	}
	return c.analyzer.Analyze(ctx, info, SourceFiles(pkg))
}

// Convert runs the full pipeline. An infeasible package returns the
// analysis in the result together with an error wrapping ErrInfeasible.
func (c *Converter) Convert(ctx context.Context, pkg *npm.Package) (*Result, error) {
	started := time.Now()
	result := &Result{RunID: uuid.NewString()}
	logger := log.With().Str("run_id", result.RunID).Str("package", pkg.Name).Logger()
	logger.Info().Str("version", pkg.Version).Str("strategy", c.opts.Strategy.String()).Msg("Starting conversion")

	analysis, err := c.Analyze(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	result.Analysis = analysis
	result.Issues = append(result.Issues, analysis.Issues...)
	if !analysis.Feasible {
		logger.Warn().Int("errors", analysis.ErrorCount()).Msg(analysis.Verdict())
		return result, fmt.Errorf("%w: %s", ErrInfeasible, analysis.Verdict())
	}

	files := SourceFiles(pkg)
	batch, err := c.transformer.Transform(ctx, files, analysis)
	if err != nil {
		return nil, err
	}
	result.Issues = append(result.Issues, batch.Issues...)

	root, rootFiles, err := c.rootModule(pkg, batch)
	if err != nil {
		return nil, err
	}
	var deps *transformingResolver
	resolver := resolve.Chain{rootFiles}
	if c.deps != nil {
		deps = newTransformingResolver(c.deps, c.transformer)
		resolver = append(resolver, deps)
	}
	graph, graphIssues, err := depgraph.NewBuilder(resolver, depgraph.Options{
		ForceInline: c.opts.ForceInline,
		SkipBare:    c.opts.Strategy == bundler.External || c.deps == nil,
	}).Build(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("dependency graph: %w", err)
	}
	result.Cycles = graph.Cycles
	result.Issues = append(result.Issues, graphIssues...)

	bundled, bundleIssues, err := c.bundler.Bundle(ctx, graph)
	if err != nil {
		logger.Error().Err(err).Msg("Bundling failed")
		return nil, err
	}
	result.Plan = bundled.Plan
	result.BundledDependencies = bundled.BundledDependencies
	result.Issues = append(result.Issues, bundleIssues...)

	used := batch.Polyfills
	target := emittedTarget(c.opts.Target, batch, rootFiles, bundled.Plan)
	if deps != nil {
		depPolyfills, depIssues, depTarget := deps.collected(bundled.Plan, target)
		used = lo.Uniq(append(used, depPolyfills...))
		result.Issues = append(result.Issues, depIssues...)
		target = depTarget
	}
	result.Target = target
	if target != c.opts.Target {
		logger.Warn().Str("target", c.opts.Target.String()).Str("emitted", target.String()).Msg("Bundle contains code above the configured target")
	}
	result.Polyfills = polyfill.Select(used, c.opts.PolyfillIncludes, c.opts.PolyfillExcludes)
	code, injectIssues := c.injector.Inject(bundled.Code, result.Polyfills)
	result.Issues = append(result.Issues, injectIssues...)
	if err := bundler.Validate(code, c.opts.MaxSize); err != nil {
		logger.Error().Err(err).Msg("Bundle with polyfills failed validation")
		return nil, err
	}

	out, err := c.generator.Generate(ctx, output.Input{
		Package:        analysis.Package,
		Code:           code,
		UnminifiedSize: bundled.UnminifiedSize,
		Target:         target,
	})
	if err != nil {
		return nil, fmt.Errorf("output generation failed: %w", err)
	}
	result.Output = out
	result.Code = out.Code
	result.Duration = time.Since(started)

	logger.Info().
		Strs("bundled", result.BundledDependencies).
		Strs("polyfills", result.Polyfills).
		Int("issues", len(result.Issues)).
		Int("size", out.Size).
		Dur("duration", result.Duration).
		Msg("Conversion complete")
	return result, nil
}

// rootModule builds the resolver over the package's own files, with source
// files replaced by their transformed code, and returns its entry module
func (c *Converter) rootModule(pkg *npm.Package, batch *transform.Batch) (*resolve.Module, *resolve.FilesResolver, error) {
	files := make(map[string]string, len(pkg.Files))
	for p, content := range pkg.Files {
		files[p] = content
	}
	for p, code := range batch.Code() {
		files[p] = code
	}
	fr := &resolve.FilesResolver{Version: pkg.Version, Files: files}

	candidates := []string{pkg.Manifest.BrowserMain()}
	candidates = append(candidates, pkg.Manifest.EntryPoints()...)
	for _, entry := range candidates {
		if p, ok := resolve.Probe(files, entry); ok {
			return fr.Module(p), fr, nil
		}
	}
	return nil, nil, fmt.Errorf("%s: %w (tried %v)", pkg.Name, ErrNoEntryPoint, lo.Uniq(candidates))
}

// emittedTarget is the highest level among the package's own bundled files
func emittedTarget(target transform.Target, batch *transform.Batch, files *resolve.FilesResolver, plan *bundler.BundlePlan) transform.Target {
	for _, f := range batch.Files {
		if plan.Includes(resolve.NodeName(files.Package, f.Path)) {
			target = max(target, f.Target)
		}
	}
	return target
}

// SourceFiles lists the package files analysis and transformation work on,
// sorted by path
func SourceFiles(pkg *npm.Package) []analyzer.SourceFile {
	paths := lo.Filter(lo.Keys(pkg.Files), func(p string, _ int) bool {
		return jsast.IsSourceFile(p) && !npm.ShouldSkip(p)
	})
	sort.Strings(paths)
	return lo.Map(paths, func(p string, _ int) analyzer.SourceFile {
		return analyzer.SourceFile{Path: p, Content: pkg.Files[p]}
	})
}

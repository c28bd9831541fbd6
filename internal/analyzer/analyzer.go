package analyzer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/outpack/internal/depgraph"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
	"github.com/fluxbase-eu/outpack/internal/nodeapi"
	"github.com/fluxbase-eu/outpack/internal/resolve"
)

const (
	// maxErrors is the first error count that makes a conversion infeasible
	maxErrors = 5
	// polyfillEstimate is the assumed size of one polyfill
	polyfillEstimate = 2048
)

// Options configure an Analyzer
type Options struct {
	// Workers bounds per-file parallelism; zero uses GOMAXPROCS
	Workers int
}

// Analyzer runs the read-only compatibility pass
type Analyzer struct {
	workers int
}

// New creates an analyzer
func New(opts Options) *Analyzer {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Analyzer{workers: workers}
}

type fileResult struct {
	module *ModuleDescriptor
	issues []diagnostic.Issue
}

// Analyze inspects every source file and aggregates the result. Files that
// fail to parse are scanned with patterns and reported as a warning; they
// never abort the run. Only cancellation returns an error.
func (a *Analyzer) Analyze(ctx context.Context, pkg *PackageInfo, files []SourceFile) (*AnalysisResult, error) {
	sources := lo.Filter(files, func(f SourceFile, _ int) bool { return jsast.IsSourceFile(f.Path) })
	log.Info().Str("package", pkg.Name).Int("files", len(sources)).Msg("Analyzing package")

	results := make([]fileResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, file := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			module, issues := a.AnalyzeFile(gctx, file)
			results[i] = fileResult{module: module, issues: issues}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	result := &AnalysisResult{
		Package:           *pkg,
		Issues:            []diagnostic.Issue{},
		RequiredPolyfills: []string{},
	}
	polyfills := make(map[string]bool)
	for _, r := range results {
		result.Modules = append(result.Modules, r.module)
		result.Issues = append(result.Issues, r.issues...)
		for _, usage := range r.module.Usages {
			if nodeapi.Classify(usage.API) == nodeapi.ClassPolyfillable {
				polyfills[usage.API] = true
			}
		}
	}
	result.RequiredPolyfills = lo.Keys(polyfills)
	sort.Strings(result.RequiredPolyfills)

	result.Dependencies = ClassifyDependencies(pkg.Dependencies)
	result.Dependencies.Circular = fileCycles(sources, result.Modules)
	result.EstimatedSize = EstimateSize(result.Modules, len(result.RequiredPolyfills))
	result.CompatibilityScore = Score(result.ErrorCount(), result.WarningCount(), len(result.Modules))
	result.Feasible = Feasible(result.ErrorCount(), result.Dependencies)

	log.Info().
		Str("package", pkg.Name).
		Int("errors", result.ErrorCount()).
		Int("warnings", result.WarningCount()).
		Float64("score", result.CompatibilityScore).
		Bool("feasible", result.Feasible).
		Msg("Analysis complete")
	return result, nil
}

// AnalyzeFile analyzes one file
func (a *Analyzer) AnalyzeFile(ctx context.Context, file SourceFile) (*ModuleDescriptor, []diagnostic.Issue) {
	module := &ModuleDescriptor{
		Path:       file.Path,
		Syntax:     file.Syntax(),
		ModuleType: DetectModuleType(file.Content),
		Size:       len(file.Content),
	}

	f, err := jsast.Parse(ctx, file.Path, file.Content, module.Syntax)
	if err != nil {
		log.Warn().Err(err).Str("file", file.Path).Msg("Falling back to pattern analysis")
		module.Degraded = true
		issues := []diagnostic.Issue{
			diagnostic.Warning("Failed to parse file, analysis degraded: " + err.Error()).
				InFile(file.Path).
				WithSuggestion("File may contain syntax errors or unsupported features"),
		}
		return module, append(issues, classifyRefs(module, file.Path, jsast.ScanImports(file.Content))...)
	}
	defer f.Close()

	module.Exports = f.Exports()
	issues := classifyRefs(module, file.Path, f.Imports())

	for _, n := range f.ProcessEnvAccesses() {
		line, col := jsast.Position(n)
		loc := &diagnostic.Location{File: file.Path, Line: line, Column: col}
		module.Usages = append(module.Usages, APIUsage{API: "process", Kind: UsagePropertyAccess, Location: loc})
		issues = append(issues, diagnostic.Info("process.env access is served by the process polyfill").
			At(file.Path, line, col).
			ForAPI("process"))
	}

	log.Debug().
		Str("file", file.Path).
		Str("module_type", module.ModuleType.String()).
		Int("imports", len(module.Imports)).
		Int("issues", len(issues)).
		Msg("File analyzed")
	return module, issues
}

// classifyRefs records the imports of a file and reports Node API references
func classifyRefs(module *ModuleDescriptor, path string, refs []jsast.ImportRef) []diagnostic.Issue {
	var issues []diagnostic.Issue
	for _, ref := range refs {
		if ref.TypeOnly {
			continue
		}
		module.Imports = append(module.Imports, ImportEdge{
			Specifier: ref.Specifier,
			Kind:      ref.Kind.String(),
			Names:     ref.Names,
			Line:      ref.Line,
		})

		api := nodeapi.Normalize(ref.Specifier)
		class := nodeapi.Classify(api)
		if class == nodeapi.ClassNone {
			continue
		}

		kind := UsageRequire
		if ref.Kind != jsast.KindRequire {
			kind = UsageImport
		}
		loc := &diagnostic.Location{File: path, Line: ref.Line, Column: ref.Column}
		module.Usages = append(module.Usages, APIUsage{API: api, Kind: kind, Location: loc})

		var issue diagnostic.Issue
		if class == nodeapi.ClassIncompatible {
			issue = diagnostic.Error("Incompatible Node.js API: " + api)
		} else {
			issue = diagnostic.Warning("Node.js API requires a polyfill: " + api)
		}
		issue = issue.At(path, ref.Line, ref.Column).ForAPI(api).WithSuggestion(nodeapi.Suggestion(api))
		issues = append(issues, issue)
	}
	return issues
}

// fileCycles finds import cycles between the package's own files
func fileCycles(files []SourceFile, modules []*ModuleDescriptor) [][]string {
	contents := make(map[string]string, len(files))
	for _, f := range files {
		contents[f.Path] = f.Content
	}
	edges := make(map[string][]string)
	for _, m := range modules {
		edges[m.Path] = nil
		for _, imp := range m.Imports {
			if !resolve.IsRelative(imp.Specifier) {
				continue
			}
			if target, ok := resolve.Probe(contents, resolve.Join(m.Path, imp.Specifier)); ok {
				edges[m.Path] = append(edges[m.Path], target)
			}
		}
		edges[m.Path] = lo.Uniq(edges[m.Path])
	}
	cycles, _ := depgraph.FindCycles(nil, edges)
	if cycles == nil {
		return [][]string{}
	}
	return cycles
}

// EstimateSize derives size bounds from analyzed file sizes
func EstimateSize(modules []*ModuleDescriptor, polyfills int) SizeEstimate {
	base := lo.SumBy(modules, func(m *ModuleDescriptor) int { return m.Size })
	withPolyfills := base + polyfills*polyfillEstimate
	return SizeEstimate{
		Min:           base,
		Max:           base + base/2,
		WithPolyfills: withPolyfills,
		Minified:      withPolyfills / 3,
	}
}

// Score is 1 − (0.1·errors + 0.05·warnings) clamped to [0, 1]; zero files score 0
func Score(errors, warnings, files int) float64 {
	if files == 0 {
		return 0
	}
	penalty := float64(errors)*0.1 + float64(warnings)*0.05
	return math.Max(0, math.Min(1, 1-penalty))
}

// Feasible requires fewer than five errors and at most half the declared
// dependencies to be problematic
func Feasible(errors int, deps DependencyAnalysis) bool {
	return errors < maxErrors && (deps.Total == 0 || len(deps.Problematic)*2 <= deps.Total)
}

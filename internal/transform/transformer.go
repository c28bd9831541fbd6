// Package transform rewrites package sources into browser-safe CommonJS
// factory bodies.
//
// Each file goes through a fixed sequence of steps: polyfill substitution,
// process.env substitution, neutralizing incompatible requires,
// module-system normalization, downleveling, a second substitution pass over
// the downleveled code, and emission. Every step edits the syntax tree and
// reparses, so a step that produces invalid code fails the file instead of
// corrupting later steps.
package transform

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
)

// Options configure a Transformer
type Options struct {
	Target Target
	// Name identifies the package in log output
	Name string
	// Workers bounds per-file parallelism; zero uses GOMAXPROCS
	Workers int
	// Downleveler defaults to EsbuildDownleveler
	Downleveler Downleveler
}

// Result is one transformed file
type Result struct {
	Path string
	Code string
	// Polyfills lists the polyfill names the rewrite introduced, sorted
	Polyfills []string
	// Wrapped is set when the file was wrapped in a CommonJS factory
	Wrapped bool
	// Original is set when the file is included untransformed
	Original bool
	// Target is the language level the code was emitted at. Untransformed
	// files count as esnext.
	Target Target
}

// Batch is the outcome of transforming a package's files
type Batch struct {
	Files     []*Result
	Polyfills []string
	Issues    []diagnostic.Issue
	// Target is the highest language level any file was emitted at
	Target Target
}

// Code returns the transformed files keyed by path
func (b *Batch) Code() map[string]string {
	return lo.SliceToMap(b.Files, func(r *Result) (string, string) { return r.Path, r.Code })
}

// Transformer runs the rewrite steps
type Transformer struct {
	opts      Options
	downlevel Downleveler
}

// New creates a transformer
func New(opts Options) *Transformer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	downlevel := opts.Downleveler
	if downlevel == nil {
		downlevel = EsbuildDownleveler{}
	}
	return &Transformer{opts: opts, downlevel: downlevel}
}

// Transform rewrites every source file of a package. Files the analysis
// could not parse, and files whose rewrite fails, are kept as they are with a
// warning. Only cancellation returns an error.
func (t *Transformer) Transform(ctx context.Context, files []analyzer.SourceFile, analysis *analyzer.AnalysisResult) (*Batch, error) {
	degraded := make(map[string]bool)
	if analysis != nil {
		for _, m := range analysis.Modules {
			if m.Degraded {
				degraded[m.Path] = true
			}
		}
	}

	sources := lo.Filter(files, func(f analyzer.SourceFile, _ int) bool { return jsast.IsSourceFile(f.Path) })
	log.Info().Str("package", t.opts.Name).Int("files", len(sources)).Str("target", t.opts.Target.String()).Msg("Transforming package")

	type fileOutcome struct {
		result *Result
		issues []diagnostic.Issue
	}
	outcomes := make([]fileOutcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, file := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if degraded[file.Path] {
				outcomes[i] = fileOutcome{
					result: original(file),
					issues: []diagnostic.Issue{
						diagnostic.Warning("File was not transformed because it could not be parsed").InFile(file.Path),
					},
				}
				return nil
			}
			result, issues := t.Apply(gctx, file)
			outcomes[i] = fileOutcome{result: result, issues: issues}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transform cancelled: %w", err)
	}

	batch := &Batch{Polyfills: []string{}, Target: t.opts.Target}
	for _, o := range outcomes {
		batch.Target = max(batch.Target, o.result.Target)
		batch.Files = append(batch.Files, o.result)
		batch.Issues = append(batch.Issues, o.issues...)
		batch.Polyfills = append(batch.Polyfills, o.result.Polyfills...)
	}
	batch.Polyfills = lo.Uniq(batch.Polyfills)
	sort.Strings(batch.Polyfills)

	log.Info().
		Str("package", t.opts.Name).
		Int("files", len(batch.Files)).
		Strs("polyfills", batch.Polyfills).
		Int("issues", len(batch.Issues)).
		Str("emitted_target", batch.Target.String()).
		Msg("Transformation complete")
	return batch, nil
}

// Apply transforms one file, falling back to its original text with a
// warning when any step fails
func (t *Transformer) Apply(ctx context.Context, file analyzer.SourceFile) (*Result, []diagnostic.Issue) {
	result, issues, err := t.TransformFile(ctx, file)
	if err != nil {
		log.Warn().Err(err).Str("file", file.Path).Msg("Including file untransformed")
		issue := diagnostic.Warning("Failed to transform file, included untransformed: " + err.Error()).InFile(file.Path)
		return original(file), append(issues, issue)
	}
	return result, issues
}

// TransformFile runs every step on one file
func (t *Transformer) TransformFile(ctx context.Context, file analyzer.SourceFile) (*Result, []diagnostic.Issue, error) {
	f, err := jsast.Parse(ctx, file.Path, file.Content, file.Syntax())
	if err != nil {
		return nil, nil, err
	}
	defer func() { f.Close() }()

	used := make(map[string]bool)
	var issues []diagnostic.Issue
	step := func(name string, edits []jsast.Edit) error {
		next, err := f.Rewrite(ctx, edits)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if next != f {
			f.Close()
			f = next
		}
		return nil
	}

	// 1. polyfillable modules
	if err := step("polyfill substitution", substituteModules(f, used)); err != nil {
		return nil, nil, err
	}
	// 2. process.env
	if err := step("process.env substitution", substituteEnv(f, used)); err != nil {
		return nil, nil, err
	}
	// 3. incompatible modules
	edits, neutralized := neutralize(f)
	if err := step("neutralize incompatible APIs", edits); err != nil {
		return nil, nil, err
	}
	if len(neutralized) > 0 {
		log.Debug().Str("file", file.Path).Strs("apis", neutralized).Msg("Neutralized incompatible requires")
	}
	// 4. module system
	if f.HasModuleSyntax() {
		if err := step("module syntax lowering", lowerModuleSyntax(f)); err != nil {
			return nil, nil, err
		}
	}
	wrapped := f.HasCommonJSMarkers()
	if wrapped {
		if err := step("factory wrap", wrapFactory(f)); err != nil {
			return nil, nil, err
		}
	}

	// 5. downlevel
	code, emitted, warning, err := t.downlevelWithRetry(ctx, file.Path, f.Code(), f.Syntax)
	if err != nil {
		return nil, nil, err
	}
	if warning != nil {
		issues = append(issues, *warning)
	}
	lowered, err := jsast.Parse(ctx, file.Path, code, jsast.SyntaxJS)
	if err != nil {
		return nil, nil, fmt.Errorf("downleveled output: %w", err)
	}
	f.Close()
	f = lowered

	// 6. substitution over the downleveled tree
	if err := step("final substitution", append(substituteModules(f, used), substituteEnv(f, used)...)); err != nil {
		return nil, nil, err
	}

	// 7. emit
	polyfills := lo.Keys(used)
	sort.Strings(polyfills)

	log.Debug().
		Str("file", file.Path).
		Bool("wrapped", wrapped).
		Strs("polyfills", polyfills).
		Msg("File transformed")
	return &Result{
		Path:      file.Path,
		Code:      f.Code(),
		Polyfills: polyfills,
		Wrapped:   wrapped,
		Target:    emitted,
	}, issues, nil
}

// downlevelWithRetry lowers to the configured target. When the target
// cannot express the code it retries at es2015, the lowest level esbuild
// lowers block scoping and classes to, and then at esnext, recording a
// warning that names the level actually emitted.
func (t *Transformer) downlevelWithRetry(ctx context.Context, path, code string, syntax jsast.Syntax) (string, Target, *diagnostic.Issue, error) {
	out, err := t.downlevel.Downlevel(ctx, path, code, syntax, t.opts.Target)
	if err == nil || t.opts.Target == ESNext {
		return out, t.opts.Target, nil, err
	}

	for _, fallback := range fallbackTargets(t.opts.Target) {
		if ctx.Err() != nil {
			return "", 0, nil, ctx.Err()
		}
		log.Debug().Err(err).Str("file", path).Str("retry", fallback.String()).Msg("Retrying downlevel")
		out, retryErr := t.downlevel.Downlevel(ctx, path, code, syntax, fallback)
		if retryErr != nil {
			if fallback == ESNext {
				return "", 0, nil, retryErr
			}
			continue
		}
		warning := diagnostic.Warning(fmt.Sprintf("Could not lower to %s, emitted %s: %v", t.opts.Target, fallback, err)).
			InFile(path).
			WithSuggestion("Choose a newer target or check that the host supports the syntax")
		return out, fallback, &warning, nil
	}
	return "", 0, nil, err
}

// fallbackTargets lists the retry levels above target
func fallbackTargets(target Target) []Target {
	if target < ES2015 {
		return []Target{ES2015, ESNext}
	}
	return []Target{ESNext}
}

func original(file analyzer.SourceFile) *Result {
	return &Result{Path: file.Path, Code: file.Content, Polyfills: []string{}, Original: true, Target: ESNext}
}

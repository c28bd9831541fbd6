package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fluxbase-eu/outpack/cli/output"
	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/config"
	"github.com/fluxbase-eu/outpack/internal/converter"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/metrics"
	"github.com/fluxbase-eu/outpack/internal/polyfill"
	gen "github.com/fluxbase-eu/outpack/internal/output"
)

var (
	convStrategy         string
	convTarget           string
	convOutDir           string
	convName             string
	convNamespace        string
	convMinify           bool
	convMaxSize          int
	convExclude          []string
	convForceInline      []string
	convPolyfillIncludes []string
	convPolyfillExcludes []string
	convNodeModules      string
	convNoCache          bool
	convDryRun           bool
	convStdout           bool
	convMetricsFile      string
)

var convertCmd = &cobra.Command{
	Use:   "convert [package|dir]",
	Short: "Convert a package into an OutSystems module",
	Long: `Convert an npm package into one browser-safe script.

The package is analyzed first; conversion stops when the analysis finds it
infeasible. Flags override the matching outpack.yaml settings.

Examples:
  outpack convert ./my-lib
  outpack convert date-fns@3 --strategy selective --target es2015
  outpack convert axios --strategy external --namespace Vendor --minify
  outpack convert uuid --dry-run -o yaml`,
	Args:    cobra.ExactArgs(1),
	PreRunE: loadConfig,
	RunE:    runConvert,
}

func init() {
	flags := convertCmd.Flags()
	flags.StringVarP(&convStrategy, "strategy", "s", "", "bundle strategy: "+strings.Join(bundler.StrategyNames(), ", "))
	flags.StringVarP(&convTarget, "target", "t", "", "ECMAScript target (es5, es2015 ... esnext)")
	flags.StringVarP(&convOutDir, "out-dir", "d", "", "directory the module is written to")
	flags.StringVar(&convName, "name", "", "global name base (default is the package name)")
	flags.StringVar(&convNamespace, "namespace", "", "attach the module under window.<namespace>")
	flags.BoolVar(&convMinify, "minify", false, "minify the module body")
	flags.IntVar(&convMaxSize, "max-size", 0, "maximum bundle size in bytes")
	flags.StringSliceVar(&convExclude, "exclude", nil, "dependency patterns never bundled")
	flags.StringSliceVar(&convForceInline, "force-inline", nil, "dependencies always bundled whole")
	flags.StringSliceVar(&convPolyfillIncludes, "polyfill", nil, "polyfills injected even when unused")
	flags.StringSliceVar(&convPolyfillExcludes, "no-polyfill", nil, "polyfills never injected")
	flags.StringVar(&convNodeModules, "node-modules", "", "node_modules directory to resolve dependencies from")
	flags.BoolVar(&convNoCache, "no-cache", false, "bypass the registry metadata cache")
	flags.BoolVar(&convDryRun, "dry-run", false, "print the analysis and stop")
	flags.BoolVar(&convStdout, "stdout", false, "write the module to stdout instead of a file")
	flags.StringVar(&convMetricsFile, "metrics-file", "", "write Prometheus metrics for this run to a textfile")
}

// applyConvertFlags copies explicitly set flags over the loaded configuration
func applyConvertFlags(flags *pflag.FlagSet, c *config.Config) error {
	if flags.Changed("strategy") {
		c.Bundle.Strategy = convStrategy
	}
	if flags.Changed("target") {
		c.Output.Target = convTarget
	}
	if flags.Changed("out-dir") {
		c.Output.Directory = convOutDir
	}
	if flags.Changed("namespace") {
		c.Output.Namespace = convNamespace
	}
	if flags.Changed("minify") {
		c.Output.Minify = convMinify
	}
	if flags.Changed("max-size") {
		c.Bundle.MaxSize = convMaxSize
	}
	c.Bundle.ExcludeDependencies = append(c.Bundle.ExcludeDependencies, convExclude...)
	c.Bundle.ForceInline = append(c.Bundle.ForceInline, convForceInline...)
	c.Polyfills.DefaultIncludes = append(c.Polyfills.DefaultIncludes, convPolyfillIncludes...)
	c.Polyfills.DefaultExcludes = append(c.Polyfills.DefaultExcludes, convPolyfillExcludes...)
	return c.Validate()
}

// convertReport is the structured form of a finished conversion
type convertReport struct {
	File             string `json:"file,omitempty" yaml:"file,omitempty"`
	converter.Result `yaml:",inline"`
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := applyConvertFlags(cmd.Flags(), cfg); err != nil {
		return err
	}
	opts, err := converter.FromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Name = convName
	opts.Version = Version

	src := newPackageSource(cfg, !convNoCache)
	defer src.Close()

	pkg, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	registry, err := polyfill.Load(cfg.Polyfills.CustomDir)
	if err != nil {
		return err
	}
	conv, err := converter.New(opts, registry, src.Dependencies(args[0], convNodeModules, pkg))
	if err != nil {
		return err
	}

	if convDryRun {
		analysis, err := conv.Analyze(ctx, pkg)
		if err != nil {
			return err
		}
		return printAnalysis(analysis, true)
	}

	result, err := conv.Convert(ctx, pkg)
	if convMetricsFile != "" {
		writeMetrics(convMetricsFile, pkg.Name, opts.Strategy.String(), result, err)
	}
	if errors.Is(err, converter.ErrInfeasible) && result != nil {
		_ = printAnalysis(result.Analysis, true)
		return err
	}
	if err != nil {
		return err
	}

	if convStdout {
		_, err := fmt.Fprint(cmd.OutOrStdout(), result.Code)
		return err
	}
	path, err := writeModule(cfg.Output, result)
	if err != nil {
		return err
	}
	return printConversion(path, result)
}

func writeModule(c config.OutputConfig, result *converter.Result) (string, error) {
	if err := os.MkdirAll(c.Directory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(c.Directory, gen.FileName(c.NamingPattern, result.Analysis.Package))
	if err := os.WriteFile(path, []byte(result.Code), 0o644); err != nil {
		return "", fmt.Errorf("failed to write module: %w", err)
	}
	log.Debug().Str("path", path).Int("size", len(result.Code)).Msg("Module written")
	return path, nil
}

func printConversion(path string, result *converter.Result) error {
	f := GetFormatter()
	if f.Structured() {
		return f.Print(convertReport{File: path, Result: *result})
	}

	info := result.Analysis.Package
	f.PrintSuccess(fmt.Sprintf("Converted %s@%s", info.Name, info.Version))
	f.PrintKeyValue("Output", path)
	f.PrintKeyValue("Global", result.Output.GlobalName)
	f.PrintKeyValue("Strategy", result.Plan.Strategy.String())
	f.PrintKeyValue("Bundled", joinOrNone(result.BundledDependencies))
	f.PrintKeyValue("Polyfills", joinOrNone(result.Polyfills))
	f.PrintKeyValue("Size", analyzer.FormatBytes(result.Output.Size))
	f.PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String())

	if len(result.Cycles) > 0 {
		f.PrintWarning(fmt.Sprintf("%d circular dependencies were broken", len(result.Cycles)))
	}
	issues := output.IssueTable(result.Issues, diagnostic.LevelWarning)
	if len(issues.Rows) == 0 {
		return nil
	}
	f.PrintSuccess("")
	return f.PrintTable(issues)
}

// writeMetrics records the run; a failed write only warns
func writeMetrics(path, pkg, strategy string, result *converter.Result, err error) {
	m := metrics.New()
	c := metrics.Conversion{Package: pkg, Strategy: strategy, Err: err}
	if result != nil {
		c.Issues = result.Issues
		c.Polyfills = result.Polyfills
		c.Dependencies = len(result.BundledDependencies)
		c.Duration = result.Duration
		if result.Output != nil {
			c.Size = result.Output.Size
		}
	}
	m.Record(c)
	if err := m.WriteFile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Metrics not written")
	}
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

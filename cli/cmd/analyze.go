package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/converter"
)

var (
	analyzeDetails bool
	analyzeNoCache bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [package|dir]",
	Short: "Check whether a package can be converted",
	Long: `Analyze a package for browser compatibility without converting it.

The package is either a local directory or a registry spec such as
lodash, lodash@^4 or @scope/name@latest.

Examples:
  outpack analyze ./my-lib
  outpack analyze uuid@9 --details
  outpack analyze axios -o json`,
	Args:    cobra.ExactArgs(1),
	PreRunE: loadConfig,
	RunE:    runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDetails, "details", false, "list every issue with its location")
	analyzeCmd.Flags().BoolVar(&analyzeNoCache, "no-cache", false, "bypass the registry metadata cache")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := newPackageSource(cfg, !analyzeNoCache)
	defer src.Close()

	pkg, err := src.Load(ctx, args[0])
	if err != nil {
		return err
	}
	opts, err := converter.FromConfig(cfg)
	if err != nil {
		return err
	}
	conv, err := converter.New(opts, nil, nil)
	if err != nil {
		return err
	}
	analysis, err := conv.Analyze(ctx, pkg)
	if err != nil {
		return err
	}
	return printAnalysis(analysis, analyzeDetails)
}

func printAnalysis(analysis *analyzer.AnalysisResult, details bool) error {
	f := GetFormatter()
	if f.Structured() {
		return f.Print(analysis)
	}
	if !f.Quiet {
		analyzer.DisplayAnalysis(f.Writer, analysis, details)
	}
	return nil
}

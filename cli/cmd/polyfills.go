package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/outpack/cli/output"
	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/polyfill"
)

var polyfillsCmd = &cobra.Command{
	Use:   "polyfills",
	Short: "List the registered polyfills",
	Long: `List the built-in polyfills and those loaded from polyfills.custom_dir.

Examples:
  outpack polyfills
  outpack polyfills -o json`,
	Args:    cobra.NoArgs,
	PreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := polyfill.Load(cfg.Polyfills.CustomDir)
		if err != nil {
			return err
		}
		f := GetFormatter()
		if f.Structured() {
			return f.Print(registry.Descriptors())
		}
		data := output.TableData{Headers: []string{"Name", "Size", "Source"}}
		for _, d := range registry.Descriptors() {
			source := "builtin"
			if d.Custom {
				source = "custom"
			}
			data.Rows = append(data.Rows, []string{d.Name, analyzer.FormatBytes(d.Size), source})
		}
		if len(data.Rows) == 0 {
			return fmt.Errorf("no polyfills registered")
		}
		return f.PrintTable(data)
	},
}

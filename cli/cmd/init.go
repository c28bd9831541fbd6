package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/outpack/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default outpack.yaml",
	Long: `Write a commented outpack.yaml holding every setting at its default.

Examples:
  outpack init
  outpack init ./config --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		path, err := config.WriteDefault(dir, initForce)
		if err != nil {
			return err
		}
		GetFormatter().PrintSuccess("Wrote " + path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
}

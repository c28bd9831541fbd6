package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show outpack version information",
	Long:  `Display the version, commit hash, and build date of outpack.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := GetFormatter()
		info := versionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
		if f.Structured() {
			return f.Print(info)
		}
		f.PrintSuccess("outpack " + info.Version)
		f.PrintKeyValue("Commit", info.Commit)
		f.PrintKeyValue("Build Date", info.BuildDate)
		f.PrintKeyValue("Go", info.GoVersion)
		return nil
	},
}

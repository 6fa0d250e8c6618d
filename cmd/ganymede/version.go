package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
)

// Build metadata, overridden by -ldflags at release time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type buildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildInfo{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}

		format, err := cli.ParseFormat(versionFormat)
		if err != nil {
			return cli.NewCommandError("version", err)
		}
		if format == cli.FormatJSON {
			return cli.WriteJSON(os.Stdout, info)
		}

		fmt.Printf("Mercator Ganymede %s (%s, %s) %s %s\n",
			info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "output format: text, json")
}

// SPDX-License-Identifier: MIT

// Command mapsheets is the offline CLI: query the sheet index, download
// map sheets and prepare annotation datasets without running the daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mslog "github.com/mapsheets/mapsheets/internal/log"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "mapsheets",
	Short: "Query, download and stitch historical map sheets",
	Long: `mapsheets works against a GeoJSON sheet index from a tile server
provider. It answers spatial and text queries against the index, downloads
the tiles of selected sheets, stitches them into whole sheet images and
prepares patch annotation datasets for model training.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		mslog.Configure(mslog.Config{
			Level:   logLevel,
			Service: "mapsheets",
			Version: version,
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (commit: %s, built: %s)\n", version, commit, buildDate)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

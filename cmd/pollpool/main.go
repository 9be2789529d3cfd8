// Package main is the entry point for the pollpool CLI.
//
// pollpool can be used as a library (SDK) or run as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pollpool serve -c config.yaml    # Run cycles and serve the API
//	pollpool validate -c config.yaml # Validate configuration
//	pollpool version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pollpool",
	Short: "A self-sizing periodic task runner",
	Long: `pollpool runs HTTP probes in cycles on a worker pool that resizes itself.

Every cycle runs each task once with the interval as its deadline. Tasks
still running at the deadline are cancelled. Each cycle is scored and
compared with the previous one to decide whether the pool should grow,
shrink or hold.

Quick start:
  1. Create a config file (pollpool.yaml)
  2. Run: pollpool serve -c pollpool.yaml
  3. Open http://localhost:8080/api/pool

Example config:
  port: 8080
  interval: 10s
  pool: {min: 1, max: 16, initial: 4}
  tasks:
    - name: GitHub API
      url: https://api.github.com
      check: status:200`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pollpool binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pollpool %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

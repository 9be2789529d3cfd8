package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollpool/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pollpool configuration file without starting the server.

This command parses the YAML, expands environment variables, validates
all fields and builds every task, including grid expansions. It's useful
for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pollpool validate -c config.yaml
  pollpool validate --config /etc/pollpool/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tasks, err := config.BuildTasks(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Tasks)
	fromGrids := len(tasks) - direct

	storage := cfg.Storage.Driver
	if cfg.Storage.Driver == config.DriverSQLite {
		storage += " (" + cfg.Storage.Path + ")"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  Interval:  %s\n", cfg.Interval.Duration())
	fmt.Fprintf(out, "  Pool:      %d-%d workers, starting at %d\n", cfg.Pool.Min, cfg.Pool.Max, cfg.Pool.Initial)
	fmt.Fprintf(out, "  Storage:   %s, %d cycles\n", storage, cfg.Storage.History)
	fmt.Fprintf(out, "  Tasks:     %d direct + %d from grids = %d total\n", direct, fromGrids, len(tasks))

	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollpool"
	"github.com/jpalmerr/pollpool/config"
	"github.com/jpalmerr/pollpool/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd runs cycles and serves the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cycles and serve the API",
	Long: `Run the configured tasks in cycles and serve the HTTP API.

The server will:
  - Load configuration from the specified YAML file
  - Run every task once per interval on the adaptive worker pool
  - Serve /api/cycles, /api/pool, /api/sse, /metrics and /healthz

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pollpool serve -c config.yaml
  pollpool serve --config /etc/pollpool/config.yaml --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("debug", false, "log every cycle, not only those with failures")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"tasks", len(cfg.Tasks),
		"grids", len(cfg.Grids),
		"storage", cfg.Storage.Driver,
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tasks: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	opts = append(opts,
		pollpool.WithLogger(logger),
		pollpool.WithTracerProvider(provider.TracerProvider()),
	)

	runner, err := pollpool.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	logger.Info("starting server",
		"port", cfg.Port,
		"interval", cfg.Interval.Duration().String(),
		"pool_min", cfg.Pool.Min,
		"pool_max", cfg.Pool.Max,
	)

	// blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- runner.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

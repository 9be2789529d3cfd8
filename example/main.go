package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pollpool"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// grid: 3 services × 2 envs = 6 tasks from one declaration
	tasks, err := pollpool.NewTaskGrid("Work",
		pollpool.WithURLTemplate("http://localhost:9999/work?svc={{.svc}}&env={{.env}}"),
		pollpool.WithDimensions(map[string][]string{
			"svc": {"users", "orders", "billing"},
			"env": {"prod", "staging"},
		}),
		pollpool.WithGridCheck(pollpool.ExpectJSONField("status")),
	)
	if err != nil {
		slog.Error("failed to create task grid", "error", err)
		os.Exit(1)
	}

	// plain function tasks run on the same pool
	compact, err := pollpool.NewTask("compact", func(ctx context.Context) error {
		select {
		case <-time.After(300 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		slog.Error("failed to create task", "error", err)
		os.Exit(1)
	}
	tasks = append(tasks, compact)

	r, err := pollpool.New(
		pollpool.WithTasks(tasks...),
		pollpool.WithInterval(2*time.Second),
		pollpool.WithPool(1, 8, 1),
		pollpool.WithPort(8080),
		pollpool.WithCycleCallback(func(cr pollpool.CycleReport) {
			fmt.Printf("%s  %-6s %d → %d  (%s)\n",
				cr.Outcome, cr.Decision.Action, cr.Decision.From, cr.Decision.To, cr.Decision.Reason)
		}),
	)
	if err != nil {
		slog.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pollpool demo")
	fmt.Println()
	fmt.Println("  7 tasks every 2s on a pool of 1-8 workers")
	fmt.Println("  mock latencies shift between 100ms, 400ms and 900ms")
	fmt.Println()
	fmt.Println("  curl localhost:8080/api/pool")
	fmt.Println("  curl localhost:8080/api/cycles?limit=5")
	fmt.Println("  curl -N localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		slog.Error("pollpool error", "error", err)
		os.Exit(1)
	}
}

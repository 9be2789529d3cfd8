// Standalone mock server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pollpool serve -c example/config.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock server starting on %s\n", *addr)
	fmt.Println("GET /work?delay=500ms sleeps for delay, then answers {\"status\":\"ok\"}")
	fmt.Println("GET /work?fail=1 answers 503")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	mux := http.NewServeMux()
	mux.HandleFunc("/work", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		delay, err := time.ParseDuration(r.URL.Query().Get("delay"))
		if err != nil {
			delay = 100 * time.Millisecond
		}

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if err := http.ListenAndServe(*addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

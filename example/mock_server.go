package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// loadLevels are the per-request latencies a mock endpoint moves between.
var loadLevels = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	900 * time.Millisecond,
}

// mockState tracks the load level and next change time for a single endpoint.
type mockState struct {
	levelIdx     int
	nextChangeAt time.Time
}

// StartMockServer runs a mock endpoint whose latency shifts between load
// levels every 15-45 seconds, so the pool has something to adapt to.
// Call this in a goroutine before starting the runner.
func StartMockServer(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/work", func(w http.ResponseWriter, r *http.Request) {
		svc := r.URL.Query().Get("svc")
		env := r.URL.Query().Get("env")
		key := svc + "-" + env

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{
				levelIdx:     rand.Intn(len(loadLevels)),
				nextChangeAt: time.Now().Add(time.Duration(15+rand.Intn(31)) * time.Second),
			}
			states[key] = state
		}
		if time.Now().After(state.nextChangeAt) {
			old := loadLevels[state.levelIdx]
			state.levelIdx = (state.levelIdx + 1) % len(loadLevels)
			state.nextChangeAt = time.Now().Add(time.Duration(15+rand.Intn(31)) * time.Second)
			slog.Info("load change", "endpoint", key, "from", old.String(), "to", loadLevels[state.levelIdx].String())
		}
		latency := loadLevels[state.levelIdx]
		mu.Unlock()

		// jitter of up to 20%
		latency += time.Duration(rand.Int63n(int64(latency) / 5))

		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]string{
			"svc":    svc,
			"env":    env,
			"status": "ok",
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/pollpool/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	defaultCycleLimit = 50
	maxCycleLimit     = 1000
)

// PoolState is the body of GET /api/pool.
type PoolState struct {
	Size         int                `json:"size"`
	Min          int                `json:"min"`
	Max          int                `json:"max"`
	Baseline     *store.CycleRecord `json:"baseline,omitempty"`
	LastDecision *Decision          `json:"last_decision,omitempty"`
}

// Decision summarises the most recent sizing decision.
type Decision struct {
	Action    string   `json:"action"`
	From      int      `json:"from"`
	To        int      `json:"to"`
	Triggered bool     `json:"triggered"`
	Trigger   string   `json:"trigger"`
	Reason    string   `json:"reason"`
	Weight    *float64 `json:"weight"`
}

// PoolReporter reports the live pool state.
type PoolReporter interface {
	PoolState() PoolState
}

// Server handles HTTP requests for the cycle history and pool API.
//
// Endpoints:
//   - GET /api/cycles: Recent cycle records, newest first
//   - GET /api/pool: Current pool size, baseline and last decision
//   - GET /api/sse: Server-Sent Events stream of completed cycles
//   - GET /metrics: Prometheus exposition (when a gatherer is set)
//   - GET /healthz: Liveness probe
type Server struct {
	store      store.Store
	pool       PoolReporter
	gatherer   prom.Gatherer
	port       int
	httpServer *http.Server
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewServer creates a new HTTP [Server].
//
// gatherer may be nil, in which case /metrics is not registered.
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, pool PoolReporter, gatherer prom.Gatherer, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		pool:     pool,
		gatherer: gatherer,
		port:     port,
		logger:   logger,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cycles", s.handleCycles)
	mux.HandleFunc("/api/pool", s.handlePool)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the port and serves requests in a background goroutine.
//
// Start is non-blocking. The server runs until ctx is cancelled, then shuts
// down gracefully. Returns an error if the port cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Wait blocks until a started server has shut down and its in-flight
// requests have finished or hit the shutdown timeout. It returns at once if
// the server was never started.
func (s *Server) Wait() {
	s.wg.Wait()
}

// handleCycles returns up to ?limit= recent records as JSON.
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultCycleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCycleLimit)
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read cycles", "error", err)
		http.Error(w, "failed to read cycles", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.CycleRecord{}
	}

	s.writeJSON(w, records)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pool == nil {
		http.Error(w, "pool state unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.pool.PoolState())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams completed cycles via Server-Sent Events.
//
// The latest record is sent first so new clients render immediately. Every
// write carries a deadline; a blocked write on a slow client would otherwise
// keep the handler from noticing shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// may be unsupported by some ResponseWriter impls
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	if latest, ok, err := s.store.Latest(r.Context()); err != nil {
		s.logger.Warn("failed to read latest cycle", "error", err)
	} else if ok {
		if data, err := json.Marshal(latest); err == nil {
			if err := writeAndFlush(data); err != nil {
				return
			}
		}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

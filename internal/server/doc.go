// Package server provides the HTTP API for pollpool.
//
// It serves recent cycle records at "/api/cycles", the live pool state at
// "/api/pool", a Server-Sent Events stream of completed cycles at
// "/api/sse", Prometheus metrics at "/metrics" and a liveness probe at
// "/healthz".
//
// The server shuts down gracefully when its context is cancelled, with a
// 5-second timeout for in-flight requests. It is started by
// [pollpool.Runner.Start]; library users should not need it directly.
package server

package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// HealthServer exposes /healthz, /readyz and /statusz.
type HealthServer struct {
	ready   atomic.Bool
	readyFn func() bool
	status  func() any
}

// HealthOption configures a HealthServer.
type HealthOption func(*HealthServer)

// WithReadiness adds a check that must also pass for /readyz to report ready.
func WithReadiness(fn func() bool) HealthOption {
	return func(h *HealthServer) { h.readyFn = fn }
}

// WithStatus sets the value rendered as JSON by /statusz.
func WithStatus(fn func() any) HealthOption {
	return func(h *HealthServer) { h.status = fn }
}

// NewHealthServer creates a new health server.
func NewHealthServer(opts ...HealthOption) *HealthServer {
	h := &HealthServer{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetReady marks the process as started (or stopping).
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports the current readiness.
func (h *HealthServer) Ready() bool {
	if !h.ready.Load() {
		return false
	}
	return h.readyFn == nil || h.readyFn()
}

// Handler returns an http.Handler with the health endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	mux.HandleFunc("GET /statusz", h.handleStatus)
	return mux
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if h.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var body any = map[string]any{}
	if h.status != nil {
		body = h.status()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

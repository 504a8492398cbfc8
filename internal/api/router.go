package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	mux      *http.ServeMux
	handlers *Handlers
}

// NewRouter serves progress of a running preparation. stats may be nil when
// the catalog is disabled.
func NewRouter(status StatusSource, stats StatsSource) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: NewHandlers(status, stats),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// Health
	r.mux.HandleFunc("GET /api/health", r.handlers.Health)

	// Progress
	r.mux.HandleFunc("GET /api/status", r.handlers.Status)
	r.mux.HandleFunc("GET /api/stats", r.handlers.Stats)

	// Prometheus
	r.mux.Handle("GET /metrics", promhttp.Handler())
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)

	slog.Debug("HTTP", "method", req.Method, "path", req.URL.Path, "elapsed", time.Since(start))
}

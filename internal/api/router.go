package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drainwatch/internal/middleware"
	"drainwatch/internal/realtime"
)

// Deps are the read-only probes the HTTP surface exposes. None of them
// participate in the ingestion contract.
type Deps struct {
	BrokerConnected func() bool
	Subscribers     func() int
	Stats           func() Stats
	Hub             *realtime.Hub
}

// NewRouter wires the health/metrics/realtime endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	h := &handler{deps: deps}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery)
		r.Use(middleware.Logging)
		r.Get("/healthz", h.health)
		r.Get("/stats", h.stats)
		r.Handle("/metrics", promhttp.Handler())
	})

	// /ws bypasses the logging wrapper; the upgrade needs the raw
	// http.Hijacker from the underlying ResponseWriter
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		realtime.ServeWS(deps.Hub, w, req)
	})

	return r
}

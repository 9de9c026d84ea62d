package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Stats is the ingestion counter snapshot served on /stats.
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

type handler struct {
	deps Deps
}

// health reports broker connectivity and subscriber count for external
// monitoring. 503 when ingestion cannot currently accept messages.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	connected := h.deps.BrokerConnected()

	payload := map[string]any{
		"status":          "healthy",
		"brokerConnected": connected,
		"subscribers":     h.deps.Subscribers(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if !connected {
		payload["status"] = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.deps.Stats())
}

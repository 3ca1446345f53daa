package handlers

import (
	"encoding/json"
	"net/http"

	"gateway-service/internal/gatewaymetrics"
)

// MetricsHandler serves the JSON snapshot endpoints GET /metrics and
// GET /metrics/latency. These are distinct from the Prometheus-format
// /metrics/prometheus scrape target on the separate admin listener — this
// handler always answers with the exact bounded-window percentiles
// computed by the latency estimator, not a client-side approximation.
type MetricsHandler struct {
	store *gatewaymetrics.Store
}

func NewMetricsHandler(store *gatewaymetrics.Store) *MetricsHandler {
	return &MetricsHandler{store: store}
}

type routeMetricsJSON struct {
	RequestsTotal int64           `json:"requests_total"`
	ByStatusClass map[string]int64 `json:"by_status_class"`
	ErrorsTotal   int64           `json:"errors_total"`
}

// Snapshot answers GET /metrics.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	routes := make(map[string]routeMetricsJSON, len(snap.Routes))
	for _, rt := range snap.Routes {
		byClass := make(map[string]int64, len(rt.ByStatusClass))
		for class, count := range rt.ByStatusClass {
			byClass[string(class)] = count
		}
		routes[rt.Route] = routeMetricsJSON{
			RequestsTotal: rt.RequestsTotal,
			ByStatusClass: byClass,
			ErrorsTotal:   rt.ErrorsTotal,
		}
	}

	body := map[string]any{
		"allowed_total":          snap.AllowedTotal,
		"rate_limited_total":     snap.RateLimitedTotal,
		"circuit_rejected_total": snap.CircuitRejectedTotal,
		"routes":                 routes,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

type percentilesJSON struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Latency answers GET /metrics/latency.
func (h *MetricsHandler) Latency(w http.ResponseWriter, r *http.Request) {
	snap := h.store.LatencySnapshot()

	body := make(map[string]percentilesJSON, len(snap))
	for route, p := range snap {
		body[route] = percentilesJSON{P50: p.P50, P90: p.P90, P95: p.P95, P99: p.P99}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

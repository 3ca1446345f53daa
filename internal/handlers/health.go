package handlers

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// HealthHandler serves the liveness/readiness surface. Readiness for
// this gateway only needs to answer "is the process up" — there is no
// required upstream connection to probe, so Readiness and Liveness
// report the same thing unless SetUnavailable has been called during
// shutdown.
type HealthHandler struct {
	unavailable atomic.Bool
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// SetUnavailable marks the process as shutting down, so the readiness
// probe starts failing ahead of the listener actually closing.
func (h *HealthHandler) SetUnavailable() {
	h.unavailable.Store(true)
}

// Health answers GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.unavailable.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.unavailable.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

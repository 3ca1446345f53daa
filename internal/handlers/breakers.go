package handlers

import (
	"encoding/json"
	"net/http"

	"gateway-service/internal/breaker"
)

// BreakerHandler serves GET /circuit-breakers, a point-in-time view of
// every upstream breaker's state for operators.
type BreakerHandler struct {
	breakers *breaker.Registry
}

func NewBreakerHandler(breakers *breaker.Registry) *BreakerHandler {
	return &BreakerHandler{breakers: breakers}
}

type breakerSnapshotJSON struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	OpenedAt            string `json:"opened_at,omitempty"`
	TimeInStateMs       int64  `json:"time_in_state_ms"`
}

func (h *BreakerHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.breakers.Snapshot()

	out := make([]breakerSnapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		entry := breakerSnapshotJSON{
			Name:                s.Name,
			State:               s.State.String(),
			ConsecutiveFailures: s.ConsecutiveFailures,
			TimeInStateMs:       s.TimeInState.Milliseconds(),
		}
		if !s.OpenedAt.IsZero() {
			entry.OpenedAt = s.OpenedAt.Format("2006-01-02T15:04:05.000Z07:00")
		}
		out = append(out, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"breakers": out})
}

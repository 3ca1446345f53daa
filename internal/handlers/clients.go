package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gateway-service/internal/ratelimit"
	"gateway-service/internal/tier"
)

// ClientHandler serves the per-client admin surface: listing known
// clients and changing a client's tier at runtime.
type ClientHandler struct {
	registry *ratelimit.Registry
}

func NewClientHandler(registry *ratelimit.Registry) *ClientHandler {
	return &ClientHandler{registry: registry}
}

type clientSnapshotJSON struct {
	ClientID string  `json:"client_id"`
	Tier     string  `json:"tier"`
	Tokens   float64 `json:"tokens"`
	Capacity int     `json:"capacity"`
}

// List answers GET /clients.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.registry.List()
	out := make([]clientSnapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, clientSnapshotJSON{
			ClientID: s.ClientID,
			Tier:     string(s.Tier),
			Tokens:   s.Tokens,
			Capacity: s.Capacity,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"clients": out})
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

type setTierResponse struct {
	ClientID string `json:"client_id"`
	Tier     string `json:"tier"`
}

// SetTier answers POST /clients/{id}/tier. The client id is taken from
// the path; the new tier name from a JSON body.
func (h *ClientHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/clients/"), "/tier")
	if clientID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "missing client id")
		return
	}

	var req setTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := tier.Lookup(req.Tier)
	if err != nil {
		var unknown tier.ErrUnknownTier
		if errors.As(err, &unknown) {
			writeErrorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid tier")
		return
	}

	h.registry.SetTier(clientID, t)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(setTierResponse{ClientID: clientID, Tier: string(t.Name)})
}

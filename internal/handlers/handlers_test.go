package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gateway-service/internal/breaker"
	"gateway-service/internal/clock"
	"gateway-service/internal/gatewaymetrics"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/tier"
)

func TestHealthHandler_ReportsUnavailableAfterShutdown(t *testing.T) {
	h := NewHealthHandler()

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before shutdown", rec.Code)
	}

	h.SetUnavailable()

	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 after SetUnavailable", rec.Code)
	}

	// Liveness never flips, unlike readiness.
	rec = httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/liveness", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness status = %d, want 200 even while shutting down", rec.Code)
	}
}

func TestClientHandler_SetTierThenList(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	registry := ratelimit.NewRegistry(c, ratelimit.Config{DefaultTier: tier.Free})
	h := NewClientHandler(registry)

	// Seed the client at the default tier.
	registry.Check("acme", 0)

	body := `{"tier":"PREMIUM"}`
	req := httptest.NewRequest(http.MethodPost, "/clients/acme/tier", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SetTier(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("SetTier status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	listRec := httptest.NewRecorder()
	h.List(listRec, httptest.NewRequest(http.MethodGet, "/clients", nil))

	var out struct {
		Clients []clientSnapshotJSON `json:"clients"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(out.Clients) != 1 || out.Clients[0].Tier != "PREMIUM" {
		t.Fatalf("unexpected client list: %+v", out.Clients)
	}
}

func TestClientHandler_SetTierRejectsUnknownTier(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	registry := ratelimit.NewRegistry(c, ratelimit.Config{DefaultTier: tier.Free})
	h := NewClientHandler(registry)

	req := httptest.NewRequest(http.MethodPost, "/clients/acme/tier", strings.NewReader(`{"tier":"GOLD"}`))
	rec := httptest.NewRecorder()
	h.SetTier(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown tier", rec.Code)
	}
}

func TestMetricsHandler_SnapshotAndLatency(t *testing.T) {
	store := gatewaymetrics.NewStore(10, nil)
	store.Record("/api/payments", 200, 12.5)
	store.RecordGate(gatewaymetrics.GateAllowed)

	h := NewMetricsHandler(store)

	rec := httptest.NewRecorder()
	h.Snapshot(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap["allowed_total"].(float64) != 1 {
		t.Fatalf("allowed_total = %v, want 1", snap["allowed_total"])
	}

	latRec := httptest.NewRecorder()
	h.Latency(latRec, httptest.NewRequest(http.MethodGet, "/metrics/latency", nil))
	var lat map[string]percentilesJSON
	if err := json.Unmarshal(latRec.Body.Bytes(), &lat); err != nil {
		t.Fatalf("decoding latency: %v", err)
	}
	if lat["/api/payments"].P50 != 12.5 {
		t.Fatalf("p50 = %v, want 12.5", lat["/api/payments"].P50)
	}
}

func TestBreakerHandler_List(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	registry := breaker.NewRegistry(c, nil, breaker.DefaultConfig())
	registry.Allow("payments")

	h := NewBreakerHandler(registry)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/circuit-breakers", nil))

	var out struct {
		Breakers []breakerSnapshotJSON `json:"breakers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding breaker list: %v", err)
	}
	if len(out.Breakers) != 1 || out.Breakers[0].Name != "payments" || out.Breakers[0].State != "closed" {
		t.Fatalf("unexpected breaker list: %+v", out.Breakers)
	}
}

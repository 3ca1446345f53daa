package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gateway-service/internal/breaker"
	"gateway-service/internal/clock"
	"gateway-service/internal/forwarder"
	"gateway-service/internal/gatewaymetrics"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/routecost"
	"gateway-service/internal/routing"
	"gateway-service/internal/tier"
	"gateway-service/internal/upstream"
)

// stubForwarder lets tests script the forward outcome without opening a
// real network connection.
type stubForwarder struct {
	result forwarder.Result
	panic  any
}

func (s *stubForwarder) Forward(ctx context.Context, baseURL string, r *http.Request, w http.ResponseWriter) forwarder.Result {
	if s.panic != nil {
		panic(s.panic)
	}
	if s.result.StatusCode != 0 {
		w.WriteHeader(s.result.StatusCode)
	}
	return s.result
}

func newTestPipeline(t *testing.T, fw forwarder.Forwarder) (*Pipeline, *ratelimit.Registry, *breaker.Registry, *gatewaymetrics.Store) {
	t.Helper()
	c := clock.NewFake(time.Unix(0, 0))

	upstreams := upstream.Table{
		"payments": upstream.Entry{
			Name:             "payments",
			BaseURL:          "http://payments.internal",
			FailureThreshold: 1,
			SuccessThreshold: 1,
			RecoveryTimeout:  time.Minute,
			Timeout:          time.Second,
		},
	}
	routes := routing.Table{
		Rules: []routing.Rule{{Prefix: "/api/payments", Upstream: "payments"}},
	}

	limiter := ratelimit.NewRegistry(c, ratelimit.Config{DefaultTier: tier.Free})
	breakers := breaker.NewRegistry(c, map[string]breaker.Config{
		"payments": {FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: time.Minute},
	}, breaker.DefaultConfig())
	metrics := gatewaymetrics.NewStore(100, nil)

	p := New(Config{
		Routes:     routes,
		RouteCosts: routecost.Table{},
		Upstreams:  upstreams,
		Clock:      c,
	}, limiter, breakers, metrics, fw)

	return p, limiter, breakers, metrics
}

func TestServeHTTP_UnknownRouteReturns404(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &stubForwarder{result: forwarder.Result{StatusCode: 200}})

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeHTTP_SuccessfulForwardRecordsMetricsAndBreakerSuccess(t *testing.T) {
	p, _, breakers, metrics := newTestPipeline(t, &stubForwarder{result: forwarder.Result{StatusCode: 200}})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	req.Header.Set("X-Client-ID", "acme")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// rec.Result().Header is the snapshot taken when WriteHeader was
	// called, matching what actually reaches the wire on a real
	// http.ResponseWriter — unlike rec.Header(), which stays mutable
	// after WriteHeader and would hide a header set too late to ship.
	if rec.Result().Header.Get("X-Gateway-Latency-Ms") == "" {
		t.Fatalf("expected a latency header on a forwarded response")
	}

	snap := metrics.Snapshot()
	if snap.AllowedTotal != 1 {
		t.Fatalf("AllowedTotal = %d, want 1", snap.AllowedTotal)
	}

	decision := breakers.Allow("payments")
	if !decision.Admit {
		t.Fatalf("breaker should still be closed after a success")
	}
}

func TestServeHTTP_UpstreamErrorTripsBreakerAndReturns502(t *testing.T) {
	p, _, breakers, metrics := newTestPipeline(t, &stubForwarder{result: forwarder.Result{Err: errors.New("dial tcp: refused")}})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if rec.Result().Header.Get("X-Gateway-Latency-Ms") == "" {
		t.Fatalf("expected a latency header even on a transport-error response")
	}

	snap := metrics.Snapshot()
	if snap.AllowedTotal != 1 {
		t.Fatalf("AllowedTotal = %d, want 1 (gate admitted the request even though the forward failed)", snap.AllowedTotal)
	}

	// FailureThreshold is 1, so a single failure opens the breaker.
	decision := breakers.Allow("payments")
	if decision.Admit {
		t.Fatalf("breaker should be open after a single failure at threshold 1")
	}
}

func TestServeHTTP_5xxStatusCountsAsBreakerFailure(t *testing.T) {
	p, _, breakers, _ := newTestPipeline(t, &stubForwarder{result: forwarder.Result{StatusCode: 503}})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if breakers.Allow("payments").Admit {
		t.Fatalf("a 5xx from upstream should count as a breaker failure")
	}
}

func TestServeHTTP_OpenBreakerReturns503WithRetryAfter(t *testing.T) {
	p, _, breakers, metrics := newTestPipeline(t, &stubForwarder{result: forwarder.Result{Err: errors.New("boom")}})

	first := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	p.ServeHTTP(httptest.NewRecorder(), first)
	if breakers.Allow("payments").Admit {
		t.Fatalf("breaker should have opened after the first failure")
	}

	second := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, second)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 once the breaker is open", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header when the breaker rejects")
	}

	snap := metrics.Snapshot()
	if snap.CircuitRejectedTotal != 1 {
		t.Fatalf("CircuitRejectedTotal = %d, want 1", snap.CircuitRejectedTotal)
	}
}

func TestServeHTTP_RateLimitExhaustionReturns429(t *testing.T) {
	p, limiter, _, metrics := newTestPipeline(t, &stubForwarder{result: forwarder.Result{StatusCode: 200}})

	// FREE tier capacity is 10; drain it directly through the registry so
	// the test doesn't depend on the route's configured cost.
	for i := 0; i < 10; i++ {
		if !limiter.Check("drained-client", 1).Allowed {
			t.Fatalf("unexpected denial while draining the bucket")
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	req.Header.Set("X-Client-ID", "drained-client")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header on a rate-limited response")
	}

	snap := metrics.Snapshot()
	if snap.RateLimitedTotal != 1 {
		t.Fatalf("RateLimitedTotal = %d, want 1", snap.RateLimitedTotal)
	}
}

func TestServeHTTP_ForwarderPanicReportsBreakerFailureInsteadOfCrashing(t *testing.T) {
	p, _, breakers, _ := newTestPipeline(t, &stubForwarder{panic: "boom"})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	rec := httptest.NewRecorder()

	func() {
		defer func() {
			if recover() != nil {
				t.Fatalf("ServeHTTP should not let a forwarder panic escape")
			}
		}()
		p.ServeHTTP(rec, req)
	}()

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 after a recovered forwarder panic", rec.Code)
	}
	if breakers.Allow("payments").Admit {
		t.Fatalf("a panicking forward should still count as a breaker failure")
	}
}

func TestClientID_FallsBackToRemoteAddr(t *testing.T) {
	p, _, _, _ := newTestPipeline(t, &stubForwarder{result: forwarder.Result{StatusCode: 200}})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/charge", nil)
	req.RemoteAddr = "203.0.113.9:5555"

	if got := p.clientID(req); got != "203.0.113.9" {
		t.Fatalf("clientID = %q, want 203.0.113.9", got)
	}
}

package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gateway-service/internal/breaker"
	"gateway-service/internal/clock"
	"gateway-service/internal/forwarder"
	"gateway-service/internal/gatewaymetrics"
	"gateway-service/internal/handlers"
	"gateway-service/internal/ingress"
	"gateway-service/internal/pipeline"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/routing"
	"gateway-service/internal/tier"
	"gateway-service/internal/upstream"
)

type noopForwarder struct{}

func (noopForwarder) Forward(ctx context.Context, baseURL string, r *http.Request, w http.ResponseWriter) forwarder.Result {
	w.WriteHeader(http.StatusOK)
	return forwarder.Result{StatusCode: http.StatusOK}
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	c := clock.NewFake(time.Unix(0, 0))

	limiter := ratelimit.NewRegistry(c, ratelimit.Config{DefaultTier: tier.Free})
	breakers := breaker.NewRegistry(c, nil, breaker.DefaultConfig())
	metrics := gatewaymetrics.NewStore(10, nil)
	health := handlers.NewHealthHandler()

	pl := pipeline.New(pipeline.Config{
		Routes: routing.Table{Fallback: "payments"},
		Upstreams: upstream.Table{
			"payments": upstream.Entry{Name: "payments", BaseURL: "http://payments.internal"},
		},
	}, limiter, breakers, metrics, noopForwarder{})

	ingressLimiter := ingress.New(ingress.DefaultConfig())
	t.Cleanup(ingressLimiter.Close)

	return NewRouter(RouterConfig{
		Health:   health,
		Metrics:  handlers.NewMetricsHandler(metrics),
		Breakers: handlers.NewBreakerHandler(breakers),
		Clients:  handlers.NewClientHandler(limiter),
		Pipeline: pl,
		Ingress:  ingressLimiter,
	})
}

func TestRouter_HealthRoute(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_ApiRouteIsForwardedThroughThePipeline(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_MiddlewareChainSetsRequestAndCorrelationHeaders(t *testing.T) {
	r := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected the request id middleware to set X-Request-ID")
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatalf("expected the correlation middleware to set X-Correlation-ID")
	}
}

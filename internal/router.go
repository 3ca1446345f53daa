package internal

import (
	"net/http"

	"gateway-service/internal/handlers"
	"gateway-service/internal/ingress"
	"gateway-service/internal/middlewares"
	"gateway-service/internal/pipeline"
)

// Router mounts the gateway's admin surface (/health, /metrics,
// /circuit-breakers, /clients/{id}/tier) and the /api/** passthrough
// behind the shared middleware chain: recovery, security headers,
// request id, correlation, request log, and the coarse ingress
// limiter, in that order.
type Router struct {
	mux  *http.ServeMux
	root http.Handler
}

// RouterConfig wires the handlers and collaborators a Router mounts.
type RouterConfig struct {
	Health   *handlers.HealthHandler
	Metrics  *handlers.MetricsHandler
	Breakers *handlers.BreakerHandler
	Clients  *handlers.ClientHandler
	Pipeline *pipeline.Pipeline
	Ingress  *ingress.Limiter
}

func NewRouter(cfg RouterConfig) *Router {
	r := &Router{mux: http.NewServeMux()}
	r.setupRoutes(cfg)
	return r
}

func (r *Router) setupRoutes(cfg RouterConfig) {
	r.mux.HandleFunc("GET /health", cfg.Health.Health)
	r.mux.HandleFunc("GET /metrics", cfg.Metrics.Snapshot)
	r.mux.HandleFunc("GET /metrics/latency", cfg.Metrics.Latency)
	r.mux.HandleFunc("GET /circuit-breakers", cfg.Breakers.List)
	r.mux.HandleFunc("GET /clients", cfg.Clients.List)
	r.mux.HandleFunc("POST /clients/{id}/tier", cfg.Clients.SetTier)
	r.mux.Handle("/api/", cfg.Pipeline)

	r.wrap(cfg.Ingress)
}

// wrap installs the shared middleware chain around the already-mounted
// routes. Order matches the rest of the example pack's production
// gateways: recovery outermost so it catches panics from everything
// below it, then security headers, then per-request identifiers, then
// structured logging, then the coarse ingress limiter closest to the
// handlers it protects.
func (r *Router) wrap(limiter *ingress.Limiter) {
	var handler http.Handler = r.mux
	handler = limiter.Middleware(handler)
	handler = middlewares.RequestLog(handler)
	handler = middlewares.CorrelationID(handler)
	handler = middlewares.RequestID(handler)
	handler = middlewares.SecurityHeaders(handler)
	handler = middlewares.Recovery()(handler)
	r.root = handler
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.root.ServeHTTP(w, req)
}

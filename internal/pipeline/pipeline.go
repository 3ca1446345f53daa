// Package pipeline composes the rate limiter, the circuit breaker, and
// the metrics store into the request path. Its only suspension point
// is the forward step; every limiter/breaker operation above it is
// synchronous and bounded-time.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"gateway-service/internal/breaker"
	"gateway-service/internal/clock"
	"gateway-service/internal/forwarder"
	"gateway-service/internal/gatewaymetrics"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/routecost"
	"gateway-service/internal/routing"
	"gateway-service/internal/tokenbucket"
	"gateway-service/internal/upstream"
)

// Config wires the pipeline's collaborators together.
type Config struct {
	ClientHeader   string // default "X-Client-ID"
	Routes         routing.Table
	RouteCosts     routecost.Table
	Upstreams      upstream.Table
	DefaultTimeout time.Duration // used when an upstream entry has no Timeout

	// Clock is the monotonic time source admission sampling uses.
	// Defaults to clock.Real{}; tests inject the same clock.Fake the
	// limiter and breaker registries were built with, so a scripted
	// pipeline test observes one consistent `now` across all three.
	Clock clock.Clock
}

// Pipeline is an http.Handler serving the "/api/**" passthrough surface.
// It is the composition point for every other core package.
type Pipeline struct {
	cfg       Config
	limiter   *ratelimit.Registry
	breakers  *breaker.Registry
	metrics   *gatewaymetrics.Store
	forwarder forwarder.Forwarder
}

// New creates a Pipeline.
func New(cfg Config, limiter *ratelimit.Registry, breakers *breaker.Registry, metrics *gatewaymetrics.Store, fw forwarder.Forwarder) *Pipeline {
	if cfg.ClientHeader == "" {
		cfg.ClientHeader = "X-Client-ID"
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Pipeline{cfg: cfg, limiter: limiter, breakers: breakers, metrics: metrics, forwarder: fw}
}

// ServeHTTP extracts the client id and route cost, checks the rate
// limiter, checks the breaker, forwards, and reports the outcome to
// both collaborators.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := p.clientID(r)
	route := r.URL.Path
	cost := p.cfg.RouteCosts.CostOf(route)

	upstreamName, ok := p.cfg.Routes.Resolve(route)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown_route", "")
		return
	}

	// Admission (steps 3-4) observes one consistent monotonic `now`,
	// sampled once before either check, per §5's ordering guarantee.
	now := p.cfg.Clock.Now()

	decision := p.limiter.CheckAt(clientID, cost, now)
	if !decision.Allowed {
		p.metrics.RecordGate(gatewaymetrics.GateRateLimited)
		writeRateLimited(w, decision)
		return
	}

	allow := p.breakers.AllowAt(upstreamName, now)
	if !allow.Admit {
		p.metrics.RecordGate(gatewaymetrics.GateCircuitRejected)
		writeCircuitOpen(w, upstreamName, allow.RetryAfter)
		return
	}

	entry := p.cfg.Upstreams[upstreamName]
	timeout := entry.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	// lw injects X-Gateway-Latency-Ms into the response headers at the
	// moment WriteHeader is first called — inside the forwarder's own
	// WriteHeader call on a successful forward, or inside writeJSONError
	// below on a transport failure — so the header reaches the client
	// instead of being set after headers (and, on success, the body)
	// have already gone out over the wire.
	lw := newLatencyResponseWriter(w, start)
	result := p.forwardSafely(ctx, entry.BaseURL, r, lw)
	elapsed := time.Since(start)

	status := result.StatusCode
	outcome := breaker.Success
	switch {
	case result.Err != nil:
		status = http.StatusBadGateway
		outcome = breaker.Failure
		if ctx.Err() == context.DeadlineExceeded {
			slog.Warn("upstream timeout", "upstream", upstreamName, "timeout", timeout)
		}
		writeJSONError(lw, status, "upstream_error", "")
	case status >= 500:
		outcome = breaker.Failure
	}

	p.breakers.Report(upstreamName, outcome)
	p.metrics.Record(route, status, float64(elapsed.Milliseconds()))
	p.metrics.RecordGate(gatewaymetrics.GateAllowed)
}

// latencyResponseWriter wraps an http.ResponseWriter to inject
// X-Gateway-Latency-Ms the moment headers are written, instead of
// after the caller has already flushed a status line (and possibly a
// streamed body) that a plain header write after the fact can no
// longer reach.
type latencyResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func newLatencyResponseWriter(w http.ResponseWriter, start time.Time) *latencyResponseWriter {
	return &latencyResponseWriter{ResponseWriter: w, start: start}
}

func (lw *latencyResponseWriter) WriteHeader(status int) {
	if !lw.wroteHeader {
		lw.wroteHeader = true
		lw.Header().Set("X-Gateway-Latency-Ms", strconv.FormatInt(time.Since(lw.start).Milliseconds(), 10))
	}
	lw.ResponseWriter.WriteHeader(status)
}

// forwardSafely runs the forward step with its own panic guard. A
// panic inside the forwarder is recovered here and answered with a 500
// and a generic JSON body; the returned 500 status makes ServeHTTP
// report a breaker failure and record a 5xx. The panic does not reach
// the outer recovery middleware.
func (p *Pipeline) forwardSafely(ctx context.Context, baseURL string, r *http.Request, w http.ResponseWriter) (result forwarder.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("recovered panic in forward", "error", errPanic(rec))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "")
			result = forwarder.Result{StatusCode: http.StatusInternalServerError}
		}
	}()
	return p.forwarder.Forward(ctx, baseURL, r, w)
}

func errPanic(rec any) error {
	return errors.New("panic in forward: " + toString(rec))
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}

// clientID extracts the client identifier from the configured header,
// falling back to the peer address.
func (p *Pipeline) clientID(r *http.Request) string {
	if v := r.Header.Get(p.cfg.ClientHeader); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, d tokenbucket.Decision) {
	retrySeconds := 3600 // permanent denial caps Retry-After at one hour
	if !d.Permanent {
		retrySeconds = int(math.Ceil(d.RetryAfter.Seconds()))
		if retrySeconds < 1 {
			retrySeconds = 1
		}
	}
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limited","retry_after":` + strconv.Itoa(retrySeconds) + `}`))
}

func writeCircuitOpen(w http.ResponseWriter, upstreamName string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"upstream_unavailable","upstream":"` + jsonEscape(upstreamName) + `"}`))
}

func writeJSONError(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := `{"error":"` + jsonEscape(kind) + `"`
	if detail != "" {
		body += `,"detail":"` + jsonEscape(detail) + `"`
	}
	body += "}"
	_, _ = w.Write([]byte(body))
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

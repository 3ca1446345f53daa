// Package gatewaymetrics implements the gateway's metrics store:
// bounded, concurrent per-route counters and a streaming latency
// percentile estimator, plus global gate counters. Counters use
// sync/atomic (64-bit, monotonic) rather than a mutex, since they are
// on the hot path of every forwarded request.
//
// Alongside its own exact-window percentiles, the store mirrors every
// counter into Prometheus via github.com/prometheus/client_golang, so
// operators get a normal /metrics/prometheus scrape target in addition
// to the JSON snapshot endpoints.
package gatewaymetrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"gateway-service/internal/latency"
)

// GateKind identifies which admission gate a request passed or failed.
type GateKind string

const (
	GateAllowed          GateKind = "allowed"
	GateRateLimited      GateKind = "rate_limited"
	GateCircuitRejected  GateKind = "circuit_rejected"
)

// StatusClass buckets an HTTP status code into one of the four classes
// tracks per route.
type StatusClass string

const (
	Class2xx StatusClass = "2xx"
	Class3xx StatusClass = "3xx"
	Class4xx StatusClass = "4xx"
	Class5xx StatusClass = "5xx"
)

// ClassOf maps a status code to its class. Codes outside 200-499
// (including 1xx and codes outside 100-599) map to 5xx, treating them
// as server-side anomalies.
func ClassOf(status int) StatusClass {
	switch {
	case status >= 200 && status < 300:
		return Class2xx
	case status >= 300 && status < 400:
		return Class3xx
	case status >= 400 && status < 500:
		return Class4xx
	default:
		return Class5xx
	}
}

type routeCounters struct {
	requestsTotal  atomic.Int64
	errorsTotal    atomic.Int64
	byStatusClass  map[StatusClass]*atomic.Int64
	latency        *latency.Estimator
}

func newRouteCounters(window int) *routeCounters {
	rc := &routeCounters{
		byStatusClass: make(map[StatusClass]*atomic.Int64, 4),
		latency:       latency.New(window),
	}
	for _, c := range []StatusClass{Class2xx, Class3xx, Class4xx, Class5xx} {
		rc.byStatusClass[c] = &atomic.Int64{}
	}
	return rc
}

// Store is the gateway's metrics store: per-route aggregates plus
// global gate counters.
type Store struct {
	latencyWindow int

	mu     sync.RWMutex
	routes map[string]*routeCounters

	allowedTotal         atomic.Int64
	rateLimitedTotal     atomic.Int64
	circuitRejectedTotal atomic.Int64

	prom *promCollectors
}

// NewStore creates a Store whose per-route latency estimators hold up
// to latencyWindow observations (0 -> latency.DefaultWindow). If reg is
// non-nil, counters are additionally mirrored into it.
func NewStore(latencyWindow int, reg prometheus.Registerer) *Store {
	s := &Store{
		latencyWindow: latencyWindow,
		routes:        make(map[string]*routeCounters),
	}
	if reg != nil {
		s.prom = newPromCollectors(reg)
	}
	return s
}

func (s *Store) routeFor(route string) *routeCounters {
	s.mu.RLock()
	rc, ok := s.routes[route]
	s.mu.RUnlock()
	if ok {
		return rc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rc, ok := s.routes[route]; ok {
		return rc
	}
	rc = newRouteCounters(s.latencyWindow)
	s.routes[route] = rc
	return rc
}

// Record increments counters and feeds the route's latency estimator.
func (s *Store) Record(route string, statusCode int, latencyMs float64) {
	rc := s.routeFor(route)
	rc.requestsTotal.Add(1)
	class := ClassOf(statusCode)
	rc.byStatusClass[class].Add(1)
	if class == Class5xx {
		rc.errorsTotal.Add(1)
	}
	rc.latency.Observe(latencyMs)

	if s.prom != nil {
		s.prom.observe(route, class, latencyMs)
	}
}

// RecordGate increments a global gate counter.
func (s *Store) RecordGate(kind GateKind) {
	switch kind {
	case GateAllowed:
		s.allowedTotal.Add(1)
	case GateRateLimited:
		s.rateLimitedTotal.Add(1)
	case GateCircuitRejected:
		s.circuitRejectedTotal.Add(1)
	}
	if s.prom != nil {
		s.prom.gate(kind)
	}
}

// RouteSnapshot is an immutable view of one route's aggregates.
type RouteSnapshot struct {
	Route         string
	RequestsTotal int64
	ByStatusClass map[StatusClass]int64
	ErrorsTotal   int64
	Latency       latency.Percentiles
}

// Snapshot is an immutable view of the whole store at the moment of the
// call.
type Snapshot struct {
	AllowedTotal         int64
	RateLimitedTotal     int64
	CircuitRejectedTotal int64
	Routes               []RouteSnapshot
}

// Snapshot returns the current state of all counters and per-route
// percentiles.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	routes := make([]*routeCounters, 0, len(s.routes))
	names := make([]string, 0, len(s.routes))
	for name, rc := range s.routes {
		names = append(names, name)
		routes = append(routes, rc)
	}
	s.mu.RUnlock()

	out := Snapshot{
		AllowedTotal:         s.allowedTotal.Load(),
		RateLimitedTotal:     s.rateLimitedTotal.Load(),
		CircuitRejectedTotal: s.circuitRejectedTotal.Load(),
		Routes:               make([]RouteSnapshot, 0, len(routes)),
	}
	for i, rc := range routes {
		byClass := make(map[StatusClass]int64, 4)
		for class, counter := range rc.byStatusClass {
			byClass[class] = counter.Load()
		}
		out.Routes = append(out.Routes, RouteSnapshot{
			Route:         names[i],
			RequestsTotal: rc.requestsTotal.Load(),
			ByStatusClass: byClass,
			ErrorsTotal:   rc.errorsTotal.Load(),
			Latency:       rc.latency.Snapshot(),
		})
	}
	return out
}

// LatencySnapshot returns just the per-route percentiles, for the
// /metrics/latency endpoint.
func (s *Store) LatencySnapshot() map[string]latency.Percentiles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]latency.Percentiles, len(s.routes))
	for name, rc := range s.routes {
		out[name] = rc.latency.Snapshot()
	}
	return out
}

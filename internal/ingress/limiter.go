// Package ingress implements a second, coarser admission layer in
// front of the per-client tiered registry: a single global token
// bucket protecting the process as a whole, plus per-IP exponential
// back-off for abusive peers that haven't yet presented a client id.
//
// Built on golang.org/x/time/rate; this is the only package in the
// codebase that uses it. It does not replace
// internal/ratelimit's per-client registry, which needs an injectable
// clock and exact retry-after semantics that x/time/rate's
// wall-clock-only Limiter can't give — this layer is a blunt, cheap
// pre-filter ahead of it. Unlike the teacher's original middleware,
// the per-IP back-off here reads time through the same clock.Clock
// seam as every other core package, so its cool-down/reset behavior is
// as deterministically testable as the token bucket and the breaker.
package ingress

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gateway-service/internal/clock"
)

// retryAfterSeconds renders a wait duration as a whole, rounded-up
// second count suitable for a Retry-After header.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

// Config controls both the global bucket and the per-IP back-off.
type Config struct {
	// Global token-bucket — protects the process as a whole.
	BucketQPS  float64
	BucketSize int

	// Per-IP exponential back-off. CoolDown = 0 disables it entirely.
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	CoolDown      time.Duration
	BackoffFactor float64

	CleanupInterval time.Duration
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		BucketQPS:       1000,
		BucketSize:      2000,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		CoolDown:        2 * time.Minute,
		BackoffFactor:   2.0,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter combines a global token-bucket with per-IP exponential
// back-off that auto-resets after a cool-down period.
type Limiter struct {
	clock   clock.Clock
	global  *rate.Limiter
	cfg     Config
	mu      sync.Mutex
	perIP   map[string]*ipState
	closeCh chan struct{}
}

type ipState struct {
	failures    int
	lastSeen    time.Time
	blockedUtil time.Time
}

// New creates a Limiter backed by the real wall clock, for production
// use. Tests that need deterministic cool-down/reset behavior should
// use NewWithClock and a clock.Fake instead.
func New(cfg Config) *Limiter {
	return NewWithClock(clock.Real{}, cfg)
}

// NewWithClock creates a Limiter whose per-IP back-off reads time
// through c instead of the wall clock, the same seam tokenbucket and
// breaker use for deterministic tests.
func NewWithClock(c clock.Clock, cfg Config) *Limiter {
	rl := &Limiter{
		clock:   c,
		global:  rate.NewLimiter(rate.Limit(cfg.BucketQPS), cfg.BucketSize),
		cfg:     cfg,
		perIP:   make(map[string]*ipState),
		closeCh: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

// Middleware wraps an http.Handler with combined global + per-IP
// limiting, ahead of the per-client admission pipeline.
func (rl *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.global.Allow() {
			slog.Warn("ingress limiter: global bucket exhausted")
			w.Header().Set("Retry-After", "1")
			writeTooManyRequests(w)
			return
		}

		if rl.cfg.CoolDown > 0 {
			ip := extractIP(r)
			if wait := rl.perIPDelay(ip); wait > 0 {
				slog.Warn("ingress limiter: per-IP backoff", "ip", ip, "retry_after_ms", wait.Milliseconds())
				w.Header().Set("Retry-After", retryAfterSeconds(wait))
				writeTooManyRequests(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limited","retry_after":` + w.Header().Get("Retry-After") + `}`))
}

// Close stops the background cleanup goroutine.
func (rl *Limiter) Close() {
	close(rl.closeCh)
}

// perIPDelay returns how long the caller must wait before the next
// request is allowed. Zero means the request may proceed immediately.
func (rl *Limiter) perIPDelay(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	st, ok := rl.perIP[ip]
	if !ok {
		rl.perIP[ip] = &ipState{failures: 1, lastSeen: now}
		return 0
	}

	if now.Sub(st.lastSeen) >= rl.cfg.CoolDown {
		st.failures = 1
		st.lastSeen = now
		st.blockedUtil = time.Time{}
		return 0
	}

	if now.Before(st.blockedUtil) {
		return st.blockedUtil.Sub(now)
	}

	st.failures++
	st.lastSeen = now

	backoff := float64(rl.cfg.BaseDelay.Nanoseconds()) * math.Pow(rl.cfg.BackoffFactor, float64(st.failures-1))
	if backoff > math.MaxInt64 {
		backoff = float64(rl.cfg.MaxDelay.Nanoseconds())
	}
	delay := time.Duration(backoff)
	if delay > rl.cfg.MaxDelay {
		delay = rl.cfg.MaxDelay
	}

	if delay >= rl.cfg.BaseDelay {
		st.blockedUtil = now.Add(delay)
		return delay
	}
	return 0
}

// cleanup periodically reaps IP entries that haven't been seen within
// CoolDown, preventing unbounded memory growth.
func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.closeCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.clock.Now().Add(-rl.cfg.CoolDown)
			for ip, st := range rl.perIP {
				if st.lastSeen.Before(cutoff) {
					delete(rl.perIP, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// extractIP strips the port from RemoteAddr so different ephemeral
// ports from the same host are tracked together.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.SplitN(xff, ",", 2); len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

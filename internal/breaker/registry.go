package breaker

import (
	"sync"
	"time"

	"gateway-service/internal/clock"
)

// Registry maps upstream name to Breaker, created lazily with the
// configured thresholds for that upstream, or DefaultConfig() when
// none was supplied.
type Registry struct {
	clock clock.Clock

	mu        sync.Mutex
	breakers  map[string]*Breaker
	configs   map[string]Config
	defaultCf Config
}

// NewRegistry creates a Registry. perUpstream supplies explicit configs
// for upstreams known at startup; upstreams first seen at request time
// (if any) fall back to defaultCfg.
func NewRegistry(c clock.Clock, perUpstream map[string]Config, defaultCfg Config) *Registry {
	configs := make(map[string]Config, len(perUpstream))
	for name, cfg := range perUpstream {
		configs[name] = cfg
	}
	return &Registry{
		clock:     c,
		breakers:  make(map[string]*Breaker),
		configs:   configs,
		defaultCf: defaultCfg,
	}
}

func (r *Registry) get(upstream string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[upstream]
	if ok {
		return b
	}
	cfg, ok := r.configs[upstream]
	if !ok {
		cfg = r.defaultCf
	}
	b = New(r.clock, upstream, cfg)
	r.breakers[upstream] = b
	return b
}

// Allow resolves the breaker for upstream and checks admission.
func (r *Registry) Allow(upstream string) Decision {
	return r.get(upstream).Allow()
}

// AllowAt is Allow against an explicit timestamp, so the admission
// pipeline can sample one monotonic `now` and use it for both the rate
// limiter and breaker checks of a single request (spec §5 ordering
// guarantee).
func (r *Registry) AllowAt(upstream string, now time.Time) Decision {
	return r.get(upstream).AllowAt(now)
}

// Report resolves the breaker for upstream and records an outcome.
func (r *Registry) Report(upstream string, outcome Outcome) {
	r.get(upstream).Report(outcome)
}

// Snapshot returns per-breaker snapshots for every upstream observed so
// far, for the /circuit-breakers admin endpoint.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

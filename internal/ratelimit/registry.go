// Package ratelimit holds the per-client bucket lifecycle and tier
// lookup. It is the hot-path entry point the admission pipeline calls
// on every request.
package ratelimit

import (
	"sync"
	"time"

	"gateway-service/internal/clock"
	"gateway-service/internal/tier"
	"gateway-service/internal/tokenbucket"
)

// ClientRecord is one per known client id.
type ClientRecord struct {
	ClientID string
	mu       sync.RWMutex
	tier     tier.Tier
	bucket   *tokenbucket.Bucket
	lastSeen time.Time
}

func (c *ClientRecord) Tier() tier.Tier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tier
}

func (c *ClientRecord) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *ClientRecord) idleSince(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.lastSeen)
}

// Registry maps client_id to ClientRecord. Registry mutations (record
// creation, tier replacement) and bucket mutations are linearizable per
// client_id; a single map-wide lock guards record creation/lookup and
// is acceptable at gateway scale (a sharded map is a drop-in upgrade
// if contention on registry.mu ever shows up in profiling).
type Registry struct {
	clock clock.Clock

	mu           sync.Mutex
	clients      map[string]*ClientRecord
	defaultTier  tier.Name
	idleTTL      time.Duration // 0 disables eviction
	stopCleanup  chan struct{}
	cleanupOnce  sync.Once
}

// Config configures a new Registry.
type Config struct {
	DefaultTier tier.Name
	// IdleTTL evicts a client record untouched for this long. Zero
	// disables eviction. Unbounded accumulation of distinct client ids
	// is a real memory-growth vector, so this gateway defaults to a 1h
	// TTL-on-idle policy.
	IdleTTL time.Duration
	// CleanupInterval controls how often the idle sweep runs.
	// Defaults to IdleTTL/4 (minimum 1 minute) if zero.
	CleanupInterval time.Duration
}

// NewRegistry creates a Registry and, if cfg.IdleTTL > 0, starts a
// background eviction sweep on a ticker.
func NewRegistry(c clock.Clock, cfg Config) *Registry {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = tier.Default
	}
	r := &Registry{
		clock:       c,
		clients:     make(map[string]*ClientRecord),
		defaultTier: cfg.DefaultTier,
		idleTTL:     cfg.IdleTTL,
		stopCleanup: make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = cfg.IdleTTL / 4
			if interval < time.Minute {
				interval = time.Minute
			}
		}
		go r.cleanupLoop(interval)
	}
	return r
}

// Close stops the background eviction sweep, if any.
func (r *Registry) Close() {
	r.cleanupOnce.Do(func() { close(r.stopCleanup) })
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCleanup:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.clients {
		if rec.idleSince(now) >= r.idleTTL {
			delete(r.clients, id)
		}
	}
}

// getOrCreate returns the record for client_id, creating one at the
// default tier on first observation.
func (r *Registry) getOrCreate(clientID string) *ClientRecord {
	return r.getOrCreateAt(clientID, r.clock.Now())
}

// getOrCreateAt is getOrCreate against an explicit timestamp.
func (r *Registry) getOrCreateAt(clientID string, now time.Time) *ClientRecord {
	r.mu.Lock()
	rec, ok := r.clients[clientID]
	if !ok {
		t := tier.MustLookup(r.defaultTier)
		rec = &ClientRecord{
			ClientID: clientID,
			tier:     t,
			bucket:   tokenbucket.New(r.clock, t.Capacity, t.RefillPerSecond),
			lastSeen: now,
		}
		r.clients[clientID] = rec
	}
	r.mu.Unlock()

	rec.touch(now)
	return rec
}

// Check resolves (or lazily creates) the client's bucket and attempts a
// token-take of the given cost. This is the hot-path operation called
// once per inbound request.
func (r *Registry) Check(clientID string, cost int) tokenbucket.Decision {
	return r.CheckAt(clientID, cost, r.clock.Now())
}

// CheckAt is Check against an explicit timestamp, so the admission
// pipeline can sample one monotonic `now` and use it for both the rate
// limiter and breaker checks of a single request (spec §5 ordering
// guarantee).
func (r *Registry) CheckAt(clientID string, cost int, now time.Time) tokenbucket.Decision {
	rec := r.getOrCreateAt(clientID, now)
	rec.mu.RLock()
	bucket := rec.bucket
	rec.mu.RUnlock()
	return bucket.TryTakeAt(cost, now)
}

// SetTier atomically replaces the client's bucket with a fresh bucket
// for the new tier. A tier change is a policy change: carrying over
// drained state across a tier boundary would either punish a promotion
// or reward a demotion, so tokens always reset to the new tier's
// capacity rather than being rescaled.
func (r *Registry) SetTier(clientID string, t tier.Tier) {
	rec := r.getOrCreate(clientID)
	rec.mu.Lock()
	rec.tier = t
	rec.bucket = tokenbucket.New(r.clock, t.Capacity, t.RefillPerSecond)
	rec.mu.Unlock()
}

// ClientSnapshot is an immutable view of one ClientRecord for the admin
// endpoint's List().
type ClientSnapshot struct {
	ClientID  string
	Tier      tier.Name
	Tokens    float64
	Capacity  int
	LastSeen  time.Time
}

// List returns a snapshot of all known client records.
func (r *Registry) List() []ClientSnapshot {
	r.mu.Lock()
	recs := make([]*ClientRecord, 0, len(r.clients))
	for _, rec := range r.clients {
		recs = append(recs, rec)
	}
	r.mu.Unlock()

	out := make([]ClientSnapshot, 0, len(recs))
	for _, rec := range recs {
		rec.mu.RLock()
		out = append(out, ClientSnapshot{
			ClientID: rec.ClientID,
			Tier:     rec.tier.Name,
			Tokens:   rec.bucket.Available(),
			Capacity: rec.bucket.Capacity(),
			LastSeen: rec.lastSeen,
		})
		rec.mu.RUnlock()
	}
	return out
}

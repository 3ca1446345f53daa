// Package tokenbucket implements the single-bucket capacity/refill math
// at the core of the gateway's rate limiter. It is
// deliberately independent of x/time/rate: the bucket needs an injected
// clock.Clock for deterministic tests, an arbitrary per-request cost,
// and an honest retry-after hint, none of which x/time/rate's
// wall-clock-only Limiter exposes.
package tokenbucket

import (
	"math"
	"sync"
	"time"

	"gateway-service/internal/clock"
)

// Decision is the outcome of a TryTake call.
type Decision struct {
	Allowed bool

	// RetryAfter is only meaningful when Allowed is false: the duration
	// after which a request of the same cost would succeed, assuming no
	// other takes occur in the meantime. Rounded up to the millisecond.
	RetryAfter time.Duration

	// Permanent is true when the requested cost exceeds the bucket's
	// capacity — no amount of waiting will ever satisfy it.
	Permanent bool
}

// Bucket is a mutable token bucket. Zero value is not usable; construct
// with New. Safe for concurrent use.
type Bucket struct {
	clock clock.Clock

	mu             sync.Mutex
	capacity       int
	refillRate     float64 // tokens per second
	tokens         float64
	lastRefillTime time.Time
}

// New creates a bucket starting full, matching a freshly created
// ClientRecord.
func New(c clock.Clock, capacity int, refillRate float64) *Bucket {
	return &Bucket{
		clock:          c,
		capacity:       capacity,
		refillRate:     refillRate,
		tokens:         float64(capacity),
		lastRefillTime: c.Now(),
	}
}

// refill recomputes tokens as a lazy function of elapsed time. Must be
// called with mu held. Clock regression (now before lastRefillTime)
// credits zero tokens rather than going negative.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefillTime)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.refillRate
		if b.tokens > float64(b.capacity) {
			b.tokens = float64(b.capacity)
		}
	}
	b.lastRefillTime = now
}

// TryTake attempts to consume n tokens at the current time. n == 0 is
// always allowed without mutating state. n greater than capacity can
// never be satisfied and is reported as a permanent denial.
func (b *Bucket) TryTake(n int) Decision {
	return b.TryTakeAt(n, b.clock.Now())
}

// TryTakeAt is TryTake against an explicit timestamp rather than the
// bucket's own clock. The admission pipeline samples one monotonic
// `now` before checking the rate limiter and the circuit breaker for a
// request and threads it through both, so the two checks observe a
// consistent instant instead of two independent clock reads.
func (b *Bucket) TryTakeAt(n int, now time.Time) Decision {
	if n == 0 {
		return Decision{Allowed: true}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if n > b.capacity {
		return Decision{Allowed: false, Permanent: true, RetryAfter: -1}
	}

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return Decision{Allowed: true}
	}

	deficit := float64(n) - b.tokens
	seconds := deficit / b.refillRate
	retryAfter := time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}
}

// Available returns the current token count after a lazy refill,
// without consuming anything.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.clock.Now())
	return b.tokens
}

// Capacity returns the bucket's fixed capacity.
func (b *Bucket) Capacity() int { return b.capacity }

// RefillRate returns the bucket's fixed refill rate in tokens/second.
func (b *Bucket) RefillRate() float64 { return b.refillRate }

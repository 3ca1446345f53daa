// Package breaker implements a per-upstream three-state circuit
// breaker, modeled after sony/gobreaker and ArgoCD's
// failureRetryRoundTripper, extended to meet this gateway's exact
// admission contract: a single in-flight probe in HALF_OPEN, an
// injectable clock, and an Allow/Report split where Report must be
// called exactly once per admitted call.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"gateway-service/internal/clock"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an Allow call.
type Decision struct {
	Admit bool

	// RetryAfter is only meaningful when Admit is false and the breaker
	// is Open: the remaining recovery window.
	RetryAfter time.Duration
}

// Outcome is reported via Report, exactly once per ADMIT.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

// Config configures one breaker instance.
type Config struct {
	// FailureThreshold is the number of consecutive failures to trip
	// from Closed. Must be >= 1.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker dwells in Open before
	// admitting a probe.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in
	// HalfOpen required to close. Must be >= 1.
	SuccessThreshold int
}

// DefaultConfig returns sensible defaults for an upstream with no
// explicit configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a thread-safe three-state circuit breaker for a single
// upstream.
type Breaker struct {
	clock clock.Clock
	name  string
	cfg   Config

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	lastStateChange      time.Time
	probeInFlight        bool
}

// New creates a Breaker for the named upstream, starting Closed with
// all counters zero.
func New(c clock.Clock, name string, cfg Config) *Breaker {
	now := c.Now()
	return &Breaker{
		clock:           c,
		name:            name,
		cfg:             cfg,
		state:           Closed,
		lastStateChange: now,
	}
}

// Allow checks whether a request should be admitted. Its only side
// effect is the Open -> HalfOpen transition once the recovery timeout
// has elapsed, and marking a probe in flight while HalfOpen is probing.
// In HalfOpen, at most one in-flight probe is ever admitted; concurrent
// callers are rejected until Report resolves the outstanding probe.
func (b *Breaker) Allow() Decision {
	return b.AllowAt(b.clock.Now())
}

// AllowAt is Allow against an explicit timestamp rather than the
// breaker's own clock, so a caller checking both the rate limiter and
// the breaker for one request can sample a single monotonic `now` and
// thread it through both (see Bucket.TryTakeAt).
func (b *Breaker) AllowAt(now time.Time) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return Decision{Admit: true}

	case Open:
		remaining := b.cfg.RecoveryTimeout - now.Sub(b.openedAt)
		if remaining <= 0 {
			b.transitionTo(now, HalfOpen)
			b.probeInFlight = true
			return Decision{Admit: true}
		}
		return Decision{Admit: false, RetryAfter: remaining}

	case HalfOpen:
		if b.probeInFlight {
			// Another probe is already outstanding; reject until it
			// resolves via Report.
			return Decision{Admit: false, RetryAfter: b.cfg.RecoveryTimeout}
		}
		b.probeInFlight = true
		return Decision{Admit: true}
	}
	return Decision{Admit: false}
}

// Report records the outcome of a call admitted by Allow. Must be
// called exactly once per ADMIT.
func (b *Breaker) Report(outcome Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	switch b.state {
	case Closed:
		if outcome == Success {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transitionTo(now, Open)
		}

	case HalfOpen:
		b.probeInFlight = false
		if outcome == Failure {
			b.transitionTo(now, Open)
			return
		}
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionTo(now, Closed)
		}

	case Open:
		// A report arriving while Open (e.g. from a call admitted while
		// Closed that finished after other failures tripped the breaker)
		// is simply dropped; the counters it would have touched were
		// already reset by the transition.
	}
}

// transitionTo changes state. Must be called with mu held.
func (b *Breaker) transitionTo(now time.Time, newState State) {
	if b.state == newState {
		return
	}
	prev := b.state
	b.state = newState
	b.lastStateChange = now
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.probeInFlight = false
	if newState == Open {
		b.openedAt = now
	}

	slog.Warn("circuit breaker state change",
		"upstream", b.name,
		"from", prev.String(),
		"to", newState.String(),
	)
}

// Snapshot is an immutable view of breaker state for the admin endpoint.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
	TimeInState         time.Duration
}

// Snapshot returns the breaker's current state for reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	return Snapshot{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		TimeInState:         now.Sub(b.lastStateChange),
	}
}

// State returns just the current state, for quick checks.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

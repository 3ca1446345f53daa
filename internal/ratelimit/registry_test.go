package ratelimit

import (
	"testing"
	"time"

	"gateway-service/internal/clock"
	"gateway-service/internal/tier"
)

func TestCheck_UnknownClientGetsDefaultTier(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewRegistry(fc, Config{})

	d := r.Check("alice", 1)
	if !d.Allowed {
		t.Fatalf("first request from a new client should be allowed")
	}

	snaps := r.List()
	if len(snaps) != 1 || snaps[0].Tier != tier.Free {
		t.Fatalf("expected client at FREE tier, got %+v", snaps)
	}
}

func TestSetTier_ResetsTokensToNewCapacity(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewRegistry(fc, Config{})

	// Drain the FREE bucket (capacity 10).
	for i := 0; i < 10; i++ {
		r.Check("bob", 1)
	}
	if d := r.Check("bob", 1); d.Allowed {
		t.Fatalf("bucket should be drained")
	}

	r.SetTier("bob", tier.MustLookup(tier.Premium))

	d := r.Check("bob", 1)
	if !d.Allowed {
		t.Fatalf("tier change must grant a fresh bucket immediately")
	}

	snaps := r.List()
	var bob ClientSnapshot
	for _, s := range snaps {
		if s.ClientID == "bob" {
			bob = s
		}
	}
	if bob.Tokens < 198.9 || bob.Tokens > 199.1 {
		t.Fatalf("expected ~199 tokens remaining after promotion and one take, got %v", bob.Tokens)
	}
}

func TestEvictIdle_RemovesStaleClients(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	r := NewRegistry(fc, Config{IdleTTL: time.Hour})
	defer r.Close()

	r.Check("stale", 1)
	fc.Advance(2 * time.Hour)
	r.evictIdle()

	if len(r.List()) != 0 {
		t.Fatalf("expected idle client to be evicted")
	}
}

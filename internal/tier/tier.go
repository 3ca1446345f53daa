// Package tier defines the named (capacity, refill-rate) pairs that
// govern a client's token bucket.
package tier

import "fmt"

// Name identifies one of the canonical tiers.
type Name string

const (
	Free       Name = "FREE"
	Basic      Name = "BASIC"
	Premium    Name = "PREMIUM"
	Enterprise Name = "ENTERPRISE"
)

// Tier is an immutable descriptor of a client's bucket shape.
type Tier struct {
	Name            Name
	RefillPerSecond float64
	Capacity        int
}

// table holds the four canonical tiers.
var table = map[Name]Tier{
	Free:       {Name: Free, RefillPerSecond: 1, Capacity: 10},
	Basic:      {Name: Basic, RefillPerSecond: 5, Capacity: 50},
	Premium:    {Name: Premium, RefillPerSecond: 20, Capacity: 200},
	Enterprise: {Name: Enterprise, RefillPerSecond: 100, Capacity: 1000},
}

// ErrUnknownTier is returned by Lookup for any name outside the
// canonical set. Surfaced by the admin API as UnknownTier.
type ErrUnknownTier struct {
	Name string
}

func (e ErrUnknownTier) Error() string {
	return fmt.Sprintf("unknown tier %q", e.Name)
}

// Lookup resolves a tier by name, case-sensitive on the canonical
// upper-case spelling used on the wire.
func Lookup(name string) (Tier, error) {
	t, ok := table[Name(name)]
	if !ok {
		return Tier{}, ErrUnknownTier{Name: name}
	}
	return t, nil
}

// Default is the tier assigned to a client seen for the first time.
const Default = Free

// MustLookup panics on an unknown tier; only safe for the canonical
// constants defined above, used at startup and in tests.
func MustLookup(name Name) Tier {
	t, err := Lookup(string(name))
	if err != nil {
		panic(err)
	}
	return t
}

// Package routing resolves an inbound "/api/**" path to the name of the
// upstream that should serve it. This matching logic is a thin wrapper
// around the handful of upstreams the gateway fronts — not part of the
// core admission path, but the interface the admission pipeline needs
// to reach more than one backend.
package routing

import "strings"

// Rule maps requests whose path starts with Prefix to Upstream. The
// longest matching Prefix wins, so a specific route can override a
// catch-all.
type Rule struct {
	Prefix   string
	Upstream string
}

// Table is an ordered set of rules plus a fallback upstream used when
// no rule matches.
type Table struct {
	Rules    []Rule
	Fallback string
}

// Resolve returns the upstream name for path and whether any upstream
// (rule match or fallback) was found.
func (t Table) Resolve(path string) (string, bool) {
	best := -1
	upstream := ""
	for _, r := range t.Rules {
		if !strings.HasPrefix(path, r.Prefix) {
			continue
		}
		if len(r.Prefix) > best {
			best = len(r.Prefix)
			upstream = r.Upstream
		}
	}
	if best >= 0 {
		return upstream, true
	}
	if t.Fallback != "" {
		return t.Fallback, true
	}
	return "", false
}

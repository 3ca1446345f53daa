// Package routecost holds the immutable route-pattern -> token cost
// mapping. Unlisted routes cost 1.
package routecost

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Table maps a route pattern to its integer token cost. A pattern
// matches if the request path equals it exactly or starts with it as a
// "/"-bounded prefix, mirroring the http.StripPrefix routing style used
// elsewhere in this gateway rather than a full path-templating engine,
// which this gateway's flat passthrough surface does not need.
type Table map[string]int

// DefaultCost is charged for any path with no matching entry.
const DefaultCost = 1

// LoadFile reads a route-cost table from a JSON file shaped as
// {"/api/expensive": 5, "/api/bulk": 10}. A missing file is not an
// error: the table is simply empty and every route costs DefaultCost.
func LoadFile(path string) (Table, error) {
	if path == "" {
		return Table{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("reading route-cost table %s: %w", path, err)
	}

	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing route-cost table %s: %w", path, err)
	}
	for pattern, cost := range table {
		if cost < 1 {
			return nil, fmt.Errorf("route-cost table: pattern %q has cost %d, must be >= 1", pattern, cost)
		}
	}
	return table, nil
}

// CostOf returns the configured cost for path, or DefaultCost if no
// pattern matches. The longest matching pattern wins so a more specific
// route overrides a broader one.
func (t Table) CostOf(path string) int {
	best := -1
	cost := DefaultCost
	for pattern, c := range t {
		if !matches(pattern, path) {
			continue
		}
		if len(pattern) > best {
			best = len(pattern)
			cost = c
		}
	}
	return cost
}

func matches(pattern, path string) bool {
	if pattern == path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(pattern, "/")+"/")
}

// Package upstream holds the immutable upstream table: per-upstream
// base URL, breaker thresholds, and forward timeout, loaded from the
// gateway's JSON upstream config file.
package upstream

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Entry describes one upstream service.
type Entry struct {
	Name             string        `json:"-"`
	BaseURL          string        `json:"base_url"`
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	RecoveryTimeout  time.Duration `json:"-"`
	Timeout          time.Duration `json:"-"`

	RecoveryTimeoutMs int64 `json:"recovery_timeout_ms"`
	TimeoutMs         int64 `json:"timeout_ms"`
}

// Table maps upstream name to Entry.
type Table map[string]Entry

// LoadFile reads the upstream table from a JSON file shaped as
// {"name": {"base_url": "...", "failure_threshold": 5, ...}}.
// encoding/json is used directly rather than pulling in a
// config-templating library: the shape is a flat name -> struct map
// with no need for includes, env-interpolation, or schema validation
// beyond what Validate below already does (see DESIGN.md).
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading upstream table %s: %w", path, err)
	}

	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing upstream table %s: %w", path, err)
	}

	table := make(Table, len(raw))
	for name, e := range raw {
		e.Name = name
		e.RecoveryTimeout = time.Duration(e.RecoveryTimeoutMs) * time.Millisecond
		e.Timeout = time.Duration(e.TimeoutMs) * time.Millisecond
		table[name] = e
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate rejects an upstream table with missing or nonsensical
// fields. Called at startup only — ConfigInvalid never
// surfaces at request time.
func (t Table) Validate() error {
	for name, e := range t {
		if e.BaseURL == "" {
			return fmt.Errorf("upstream %q: base_url is required", name)
		}
		if e.FailureThreshold < 0 {
			return fmt.Errorf("upstream %q: failure_threshold must be >= 0", name)
		}
		if e.SuccessThreshold < 0 {
			return fmt.Errorf("upstream %q: success_threshold must be >= 0", name)
		}
	}
	return nil
}

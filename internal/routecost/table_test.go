package routecost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCostOf_UnlistedRouteCostsOne(t *testing.T) {
	table := Table{"/api/expensive": 5}
	if got := table.CostOf("/api/cheap"); got != DefaultCost {
		t.Fatalf("CostOf(unlisted) = %d, want %d", got, DefaultCost)
	}
}

func TestCostOf_ExactAndPrefixMatch(t *testing.T) {
	table := Table{"/api/expensive": 5}
	if got := table.CostOf("/api/expensive"); got != 5 {
		t.Fatalf("exact match CostOf = %d, want 5", got)
	}
	if got := table.CostOf("/api/expensive/sub"); got != 5 {
		t.Fatalf("prefix match CostOf = %d, want 5", got)
	}
}

func TestCostOf_LongestPatternWins(t *testing.T) {
	table := Table{
		"/api":           1,
		"/api/expensive": 5,
	}
	if got := table.CostOf("/api/expensive"); got != 5 {
		t.Fatalf("CostOf = %d, want the more specific pattern's cost 5", got)
	}
}

func TestLoadFile_MissingFileIsEmptyTable(t *testing.T) {
	table, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %+v", table)
	}
}

func TestLoadFile_ParsesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route-costs.json")
	if err := os.WriteFile(path, []byte(`{"/api/expensive": 5, "/api/bulk": 10}`), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table["/api/expensive"] != 5 || table["/api/bulk"] != 10 {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestLoadFile_RejectsNonPositiveCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "route-costs.json")
	if err := os.WriteFile(path, []byte(`{"/api/free": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected error for cost < 1")
	}
}

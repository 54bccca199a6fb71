package venue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTableEstimate(t *testing.T) {
	table := NewTable([]Row{
		{Venue: "O2 Arena", Category: "concert", Capacity: 18000},
		{Venue: "O2 Arena", Capacity: 15000},
		{Venue: "Lucerna", Capacity: 2500},
		{Venue: "", Capacity: 10},
		{Venue: "Nowhere", Capacity: 0},
	})

	tests := []struct {
		name     string
		venue    string
		category string
		want     int
		ok       bool
	}{
		{"exact category", "O2 arena", "Concert", 18000, true},
		{"category fallback", "O2 Arena", "sports", 15000, true},
		{"diacritics folded", "Lucérna", "theatre", 2500, true},
		{"unknown venue", "Forum Karlín", "concert", 0, false},
		{"empty venue", "", "concert", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Estimate(context.Background(), tt.venue, tt.category)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Estimate(%q, %q) = %d, %v; want %d, %v", tt.venue, tt.category, got, ok, tt.want, tt.ok)
			}
		})
	}

	if table.Len() != 3 {
		t.Errorf("Expected 3 usable rows, got %d", table.Len())
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "venues.yml")
	content := `
- venue: Rudolfinum
  category: concert
  capacity: 1100
- venue: Forum Karlín
  capacity: 3000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write venues file: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if n, ok := table.Estimate(context.Background(), "forum karlin", "festival"); !ok || n != 3000 {
		t.Errorf("Expected 3000 for Forum Karlín, got %d %v", n, ok)
	}

	missing, err := LoadTable(filepath.Join(dir, "missing.yml"))
	if err != nil {
		t.Fatalf("Expected no error for missing file, got %v", err)
	}
	if missing.Len() != 0 {
		t.Error("Expected empty table for missing file")
	}

	bad := filepath.Join(dir, "bad.yml")
	_ = os.WriteFile(bad, []byte("venue: [unclosed"), 0644)
	if _, err := LoadTable(bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

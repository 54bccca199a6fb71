// Package venue estimates attendance from known venue capacities.
package venue

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/event-comb/app/textutil"
)

// Lookup returns an attendance estimate for a venue hosting an event of
// the given category.
type Lookup interface {
	Estimate(ctx context.Context, venue, category string) (int, bool)
}

type Row struct {
	Venue    string `yaml:"venue"`
	Category string `yaml:"category"`
	Capacity int    `yaml:"capacity"`
}

// Table is a static capacity table. Rows without a category apply to every
// category of that venue.
type Table struct {
	mu   sync.RWMutex
	rows map[string]int
}

func NewTable(rows []Row) *Table {
	t := &Table{rows: make(map[string]int, len(rows))}
	for _, r := range rows {
		if r.Capacity <= 0 || textutil.Fold(r.Venue) == "" {
			continue
		}
		t.rows[key(r.Venue, r.Category)] = r.Capacity
	}
	return t
}

// LoadTable reads rows from a YAML file. A missing file yields an empty table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return NewTable(nil), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rows []Row
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return NewTable(rows), nil
}

func (t *Table) Estimate(_ context.Context, venue, category string) (int, bool) {
	if textutil.Fold(venue) == "" {
		return 0, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if n, ok := t.rows[key(venue, category)]; ok {
		return n, true
	}
	n, ok := t.rows[key(venue, "")]
	return n, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func key(venue, category string) string {
	return textutil.Fold(venue) + "|" + textutil.Fold(category)
}

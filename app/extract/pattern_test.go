package extract

import (
	"testing"
	"time"

	"github.com/lysyi3m/event-comb/app/dates"
)

func newPatternExtractor(limit int) *PatternExtractor {
	now := func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	return &PatternExtractor{
		Dates: dates.NewParser(dates.DefaultTables(), dates.WithClock(now)),
		Limit: limit,
	}
}

const listingText = `# Program

**4. 12. 2030**
Rock Concert

5. prosince 2030
Jazz Night

About us`

func TestPatternExtract(t *testing.T) {
	p := newPatternExtractor(0)

	candidates := p.Extract(listingText)
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Title != "Rock Concert" || candidates[0].Date != "4. 12. 2030" {
		t.Errorf("Unexpected first candidate: %+v", candidates[0])
	}
	if candidates[1].Title != "Jazz Night" || candidates[1].Date != "5. prosince 2030" {
		t.Errorf("Unexpected second candidate: %+v", candidates[1])
	}
}

func TestPatternExtractSameLine(t *testing.T) {
	p := newPatternExtractor(0)

	candidates := p.Extract("4. 12. 2030 Rock Concert")
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Title != "Rock Concert" {
		t.Errorf("Expected title from remainder of line, got %q", candidates[0].Title)
	}
}

func TestPatternExtractLimit(t *testing.T) {
	p := newPatternExtractor(1)

	if got := p.Extract(listingText); len(got) != 1 {
		t.Errorf("Expected limit of 1 candidate, got %d", len(got))
	}
}

func TestLooksLikeListing(t *testing.T) {
	p := newPatternExtractor(0)

	if !p.LooksLikeListing(listingText) {
		t.Error("Expected listing text to look like a listing")
	}
	if p.LooksLikeListing("About us\nContact\nOpening hours 9-17") {
		t.Error("Expected text without dates not to look like a listing")
	}
}

package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/event-comb/app/crawl"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/dedup"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/extract"
	"github.com/lysyi3m/event-comb/app/fetch"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/source"
)

var testNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	scrapeCalls int
	crawlCalls  int
	html        string
	text        string
	crawlPages  []fetch.Page
}

func (f *fakeFetcher) Scrape(_ context.Context, req fetch.ScrapeRequest) (fetch.Page, error) {
	f.scrapeCalls++
	return fetch.Page{URL: req.URL, HTML: f.html, Text: f.text}, nil
}

func (f *fakeFetcher) Crawl(_ context.Context, _ fetch.CrawlRequest) ([]fetch.Page, error) {
	f.crawlCalls++
	return f.crawlPages, nil
}

type fakeCompletion struct {
	calls int
	err   error
}

func (f *fakeCompletion) Extract(_ context.Context, _, _ string) (extract.Result, error) {
	f.calls++
	return extract.Result{}, f.err
}

type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

// recordingStore keeps the last batch result for assertions.
type recordingStore struct {
	*database.EventRepository
	last database.BatchResult
}

func (s *recordingStore) Upsert(ctx context.Context, records []database.Record) (database.BatchResult, error) {
	res, err := s.EventRepository.Upsert(ctx, records)
	s.last = res
	return res, err
}

type harness struct {
	pipeline   *Pipeline
	fetcher    *fakeFetcher
	completion *fakeCompletion
	events     *recordingStore
	logs       *database.SyncLogRepository
	registry   *source.Registry
}

func newHarness(t *testing.T, maxRequests int) *harness {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	registry := source.NewRegistry(t.TempDir())
	err = registry.Put(&source.Definition{Name: "site", URL: "https://example.com/program", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		fetcher:    &fakeFetcher{},
		completion: &fakeCompletion{},
		events:     &recordingStore{EventRepository: database.NewEventRepository(db, nil)},
		logs:       database.NewSyncLogRepository(db),
		registry:   registry,
	}

	clock := func() time.Time { return testNow }
	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerRun: maxRequests})
	pattern := &extract.PatternExtractor{Dates: dates.NewParser(dates.DefaultTables(), dates.WithClock(clock))}
	orchestrator := crawl.New(h.fetcher, nil, h.completion, pattern)
	dd := dedup.New(wordEmbedder{}, h.events, limiter, dedup.Config{})

	h.pipeline = New(registry, orchestrator, dd, h.events, h.logs, limiter, WithClock(clock))
	return h
}

func jsonLD(extra string) string {
	return `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Event","name":"Rock Concert","startDate":"2030-05-01",
 "location":{"@type":"Place","name":"O2 Arena","address":{"addressLocality":"Praha"}}` + extra + `}
</script></head><body></body></html>`
}

func TestStructuredDataSingleEvent(t *testing.T) {
	h := newHarness(t, 0)
	h.fetcher.html = jsonLD("")
	ctx := context.Background()

	entry, err := h.pipeline.Run(ctx, "site")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if entry.Status != database.SyncStatusSuccess || entry.Created != 1 {
		t.Errorf("Expected one created event, got %+v", entry)
	}
	if h.completion.calls != 0 {
		t.Errorf("Expected zero completion calls, got %d", h.completion.calls)
	}

	stored, err := h.events.Recent(ctx, "site", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected exactly one stored event, got %d", len(stored))
	}
	if stored[0].Title != "Rock Concert" || stored[0].Date != "2030-05-01" {
		t.Errorf("Unexpected stored event: %+v", stored[0])
	}
	if stored[0].City != "Praha" || stored[0].Venue != "O2 Arena" {
		t.Errorf("Expected location fields, got %q / %q", stored[0].City, stored[0].Venue)
	}
	if len(stored[0].Embedding) == 0 {
		t.Error("Expected embedding to be stored")
	}
}

func TestAdaptiveRetryFallbackCrawl(t *testing.T) {
	h := newHarness(t, 0)
	h.fetcher.text = "Welcome"
	h.fetcher.crawlPages = []fetch.Page{
		{URL: "https://example.com/program?month=12", Text: "4. prosince 2030\nRock Concert\n"},
	}

	entry, err := h.pipeline.Run(context.Background(), "site")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if h.fetcher.scrapeCalls != 2 || h.fetcher.crawlCalls != 1 {
		t.Errorf("Expected 2 scrapes and 1 crawl, got %d and %d", h.fetcher.scrapeCalls, h.fetcher.crawlCalls)
	}
	if entry.Created < 1 {
		t.Fatalf("Expected at least one created event, got %+v", entry)
	}

	stored, _ := h.events.Recent(context.Background(), "site", 10)
	if len(stored) == 0 || stored[0].Date != "2030-12-04" {
		t.Errorf("Expected event on 2030-12-04, got %+v", stored)
	}
}

func TestRerunUpdatesOnlyImage(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	h.fetcher.html = jsonLD("")
	first, err := h.pipeline.Run(ctx, "site")
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("Expected insert on first run, got %+v", first)
	}

	h.fetcher.html = jsonLD(`,"image":"https://example.com/rock.jpg"`)
	second, err := h.pipeline.Run(ctx, "site")
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Fatalf("Expected one update on second run, got %+v", second)
	}

	results := h.events.last.Results
	if len(results) != 1 || len(results[0].Changed) != 1 || results[0].Changed[0] != "image" {
		t.Errorf("Expected update limited to image, got %+v", results)
	}

	third, err := h.pipeline.Run(ctx, "site")
	if err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if third.Updated != 0 || third.Skipped != 1 {
		t.Errorf("Expected unchanged re-ingest to be skipped, got %+v", third)
	}
}

func TestPastEventsAreSkipped(t *testing.T) {
	h := newHarness(t, 0)
	h.fetcher.html = strings.Replace(jsonLD(""), "2030-05-01", "2029-05-01", 1)

	entry, err := h.pipeline.Run(context.Background(), "site")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Created != 0 || entry.Skipped != 1 || len(entry.Errors) != 0 {
		t.Errorf("Expected past event skipped silently, got %+v", entry)
	}
}

func TestDisabledSourceShortCircuits(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.registry.Put(&source.Definition{Name: "off", URL: "https://example.com/"}); err != nil {
		t.Fatal(err)
	}

	entry, err := h.pipeline.Run(context.Background(), "off")
	if !errors.Is(err, source.ErrSourceDisabled) {
		t.Fatalf("Expected ErrSourceDisabled, got %v", err)
	}
	if h.fetcher.scrapeCalls+h.fetcher.crawlCalls != 0 {
		t.Error("Expected no fetches for a disabled source")
	}
	if entry.Status != database.SyncStatusError || len(entry.Errors) != 1 {
		t.Errorf("Expected error entry, got %+v", entry)
	}

	if _, err := h.pipeline.Run(context.Background(), "missing"); !errors.Is(err, source.ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
}

func TestRequestCeilingFailsRun(t *testing.T) {
	h := newHarness(t, 0)
	h.fetcher.text = "Some page text"
	h.completion.err = ratelimit.ErrRequestCeiling

	entry, err := h.pipeline.Run(context.Background(), "site")
	if !errors.Is(err, ratelimit.ErrRequestCeiling) {
		t.Fatalf("Expected ErrRequestCeiling, got %v", err)
	}
	if entry.Status != database.SyncStatusError {
		t.Errorf("Expected error status, got %s", entry.Status)
	}

	logs, _ := h.logs.Recent(context.Background(), "site", 1)
	if len(logs) != 1 || logs[0].Status != database.SyncStatusError || len(logs[0].Errors) == 0 {
		t.Errorf("Expected stored error entry, got %+v", logs)
	}
}

func TestFiltersSkipCandidates(t *testing.T) {
	h := newHarness(t, 0)
	err := h.registry.Put(&source.Definition{
		Name: "filtered", URL: "https://example.com/program", Enabled: true,
		Filters: []source.Filter{{Field: "title", Excludes: []string{"rock"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.fetcher.html = jsonLD("")

	entry, err := h.pipeline.Run(context.Background(), "filtered")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if entry.Created != 0 || entry.Skipped != 1 {
		t.Errorf("Expected filtered candidate to be skipped, got %+v", entry)
	}
}

func TestNormalizeInfersYearInClockLocation(t *testing.T) {
	h := newHarness(t, 0)
	// 23:30 UTC on New Year's Eve is already January 1st one hour east
	east := time.FixedZone("UTC+1", 3600)
	h.pipeline.now = func() time.Time {
		return time.Date(2025, time.December, 31, 23, 30, 0, 0, time.UTC).In(east)
	}

	found := []crawl.Found{{Candidate: event.Candidate{
		Title: "Silvestr",
		Date:  "31. prosince",
		URL:   "https://example.com/silvestr",
	}}}
	out, skipped := h.pipeline.normalize(&source.Definition{Name: "site"}, found)
	if skipped != 0 || len(out) != 1 {
		t.Fatalf("Expected one event, got %d (skipped %d)", len(out), skipped)
	}
	if out[0].Date != "2026-12-31" {
		t.Errorf("Expected the next New Year's Eve, got %s", out[0].Date)
	}
}

// Package crawl drives one source's fetches through the extractor chain.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/extract"
	"github.com/lysyi3m/event-comb/app/fetch"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/urlnorm"
)

// ErrUnreachable marks a run in which no page of the source could be fetched.
var ErrUnreachable = errors.New("source unreachable")

const (
	StrategyStructured = "structured"
	StrategyCompletion = "completion"
	StrategyPattern    = "pattern"
	StrategyFeed       = "feed"

	// single-page attempts
	maxAttempts     = 3
	broadWaitFactor = 4
	minBroadWait    = 8 * time.Second
)

// TextExtractor is the completion-service extractor.
type TextExtractor interface {
	Extract(ctx context.Context, text, pageURL string) (extract.Result, error)
}

// FeedFetcher downloads a feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, req fetch.ScrapeRequest) ([]byte, error)
}

// Found is one candidate together with the page it came from.
type Found struct {
	Candidate event.Candidate
	PageURL   string
	Strategy  string
}

type Result struct {
	Events          []Found
	Errors          []error
	PagesDiscovered int
	PagesProcessed  int
	Attempts        int
	Duration        time.Duration
}

type Option func(*Orchestrator)

// WithExtractObserver registers a callback invoked with every page's yield.
func WithExtractObserver(fn func(strategy string, n int)) Option {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

type Orchestrator struct {
	fetcher    fetch.Client
	feeds      FeedFetcher
	completion TextExtractor
	pattern    *extract.PatternExtractor
	feedParser *extract.FeedExtractor
	observe    func(strategy string, n int)
}

func New(fetcher fetch.Client, feeds FeedFetcher, completion TextExtractor, pattern *extract.PatternExtractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		feeds:      feeds,
		completion: completion,
		pattern:    pattern,
		feedParser: extract.NewFeedExtractor(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run collects candidates for def. Page and chunk failures are recorded in
// the result. The returned error is a run-level failure: the source could
// not be reached at all, the request ceiling was hit or ctx ended.
func (o *Orchestrator) Run(ctx context.Context, def *source.Definition) (Result, error) {
	start := time.Now()
	run := &run{o: o, seen: make(map[string]struct{})}

	var err error
	switch def.Strategy {
	case source.StrategyCrawl:
		err = run.crawl(ctx, source.BuildCrawlConfig(def))
	case source.StrategyFeed:
		err = run.feed(ctx, def)
	default:
		err = run.singlePage(ctx, def)
	}

	run.res.Duration = time.Since(start)
	slog.Debug("Crawl finished", "source", def.Name, "strategy", def.Strategy,
		"events", len(run.res.Events), "pages", run.res.PagesProcessed, "duration", run.res.Duration)
	return run.res, err
}

type run struct {
	o    *Orchestrator
	res  Result
	seen map[string]struct{}
}

func (r *run) singlePage(ctx context.Context, def *source.Definition) error {
	cfg := source.BuildCrawlConfig(def)
	broadWait := max(cfg.WaitFor*broadWaitFactor, minBroadWait)

	scrapes := []fetch.ScrapeRequest{
		{URL: def.URL, OnlyMainContent: true, WaitFor: cfg.WaitFor, Timeout: cfg.Timeout, RateClass: cfg.RateClass},
		{URL: def.URL, OnlyMainContent: false, WaitFor: broadWait, Timeout: cfg.Timeout, RateClass: cfg.RateClass},
	}

	reached := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.res.Attempts = attempt
		before := len(r.res.Events)

		if attempt <= len(scrapes) {
			page, err := r.o.fetcher.Scrape(ctx, scrapes[attempt-1])
			if err != nil {
				if fatal(ctx, err) {
					return err
				}
				slog.Warn("Scrape failed", "source", def.Name, "attempt", attempt, "error", err)
				r.res.Errors = append(r.res.Errors, fmt.Errorf("attempt %d: %w", attempt, err))
				continue
			}
			reached = true
			r.res.PagesDiscovered++
			if err := r.process(ctx, page); err != nil {
				return err
			}
		} else {
			fallback := source.FallbackCrawlConfig(def)
			ok, err := r.crawlStart(ctx, fallback, def.URL)
			if err != nil {
				return err
			}
			reached = reached || ok
		}

		if len(r.res.Events) > before {
			return nil
		}
		slog.Info("No events found, broadening fetch", "source", def.Name, "attempt", attempt)
	}

	if !reached {
		return fmt.Errorf("%w: %s", ErrUnreachable, def.URL)
	}
	return nil
}

func (r *run) crawl(ctx context.Context, cfg source.CrawlConfig) error {
	reached := false
	for _, startURL := range cfg.StartURLs {
		ok, err := r.crawlStart(ctx, cfg, startURL)
		if err != nil {
			return err
		}
		reached = reached || ok
	}
	if !reached {
		return fmt.Errorf("%w: %v", ErrUnreachable, cfg.StartURLs)
	}
	return nil
}

// crawlStart crawls from one start URL and processes the returned pages,
// detail pages first, up to the page cap.
func (r *run) crawlStart(ctx context.Context, cfg source.CrawlConfig, startURL string) (bool, error) {
	pages, err := r.o.fetcher.Crawl(ctx, cfg.Request(startURL))
	if err != nil {
		if fatal(ctx, err) {
			return len(pages) > 0, err
		}
		slog.Warn("Crawl failed", "url", startURL, "error", err)
		r.res.Errors = append(r.res.Errors, fmt.Errorf("crawl %s: %w", startURL, err))
	}
	if len(pages) == 0 {
		return false, nil
	}
	r.res.PagesDiscovered += len(pages)

	ordered := Prioritize(pages, cfg)
	if cfg.MaxPages > 0 && len(ordered) > cfg.MaxPages {
		ordered = ordered[:cfg.MaxPages]
	}
	for _, page := range ordered {
		if err := r.process(ctx, page); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *run) feed(ctx context.Context, def *source.Definition) error {
	cfg := source.BuildCrawlConfig(def)
	data, err := r.o.feeds.Fetch(ctx, fetch.ScrapeRequest{URL: def.URL, Timeout: cfg.Timeout, RateClass: cfg.RateClass})
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	r.res.PagesDiscovered = 1

	candidates, err := r.o.feedParser.Run(data)
	if err != nil {
		return err
	}
	r.res.PagesProcessed = 1
	r.collect(candidates, def.URL, StrategyFeed)
	return nil
}

// process runs the extractor chain on one page: structured data, then the
// completion service, then the pattern scan for listing-like text.
func (r *run) process(ctx context.Context, page fetch.Page) error {
	r.res.PagesProcessed++

	if page.HTML != "" {
		if found := extract.StructuredData(page.HTML); len(found) > 0 {
			r.collect(found, page.URL, StrategyStructured)
			return nil
		}
	}

	if page.Text == "" {
		return nil
	}

	if r.o.completion != nil {
		res, err := r.o.completion.Extract(ctx, page.Text, page.URL)
		r.res.Errors = append(r.res.Errors, res.Errors...)
		if err != nil {
			return err
		}
		if len(res.Candidates) > 0 {
			r.collect(res.Candidates, page.URL, StrategyCompletion)
			return nil
		}
	}

	if r.o.pattern != nil && r.o.pattern.LooksLikeListing(page.Text) {
		r.collect(r.o.pattern.Extract(page.Text), page.URL, StrategyPattern)
	}
	return nil
}

// collect appends candidates not seen earlier in the run.
func (r *run) collect(candidates []event.Candidate, pageURL, strategy string) {
	added := 0
	for _, c := range candidates {
		key := event.Key(c.Title, c.Date, urlnorm.MustNormalize(c.URL, pageURL))
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.seen[key] = struct{}{}
		r.res.Events = append(r.res.Events, Found{Candidate: c, PageURL: pageURL, Strategy: strategy})
		added++
	}
	if r.o.observe != nil {
		r.o.observe(strategy, added)
	}
}

// Prioritize removes repeated URLs and orders pages detail first, keeping
// the crawl order within each rank.
func Prioritize(pages []fetch.Page, cfg source.CrawlConfig) []fetch.Page {
	seen := make(map[string]struct{}, len(pages))
	out := make([]fetch.Page, 0, len(pages))
	for _, p := range pages {
		key := urlnorm.MustNormalize(p.URL, "")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b fetch.Page) int {
		return cfg.Rank(a.URL) - cfg.Rank(b.URL)
	})
	return out
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ratelimit.ErrRequestCeiling) || ctx.Err() != nil
}

// Package ingest runs one source end to end: crawl, normalize, deduplicate,
// store and record the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/event-comb/app/crawl"
	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/dates"
	"github.com/lysyi3m/event-comb/app/dedup"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/source"
)

type Crawler interface {
	Run(ctx context.Context, def *source.Definition) (crawl.Result, error)
}

type Deduplicator interface {
	Run(ctx context.Context, events []event.Normalized) (dedup.Outcome, error)
}

type Sources interface {
	Resolve(name string) (*source.Definition, error)
}

// RunObserver receives the final entry of every run.
type RunObserver func(entry *database.SyncLog)

// UpsertObserver receives the store decisions of every run.
type UpsertObserver func(res database.BatchResult)

type Pipeline struct {
	sources  Sources
	crawler  Crawler
	dedup    Deduplicator
	events   database.EventStore
	logs     database.SyncLogStore
	limiter  *ratelimit.Limiter
	taxonomy *event.Taxonomy
	tables   []dates.MonthTable
	filterer *source.Filterer
	observe  RunObserver
	upserted UpsertObserver
	now      func() time.Time
}

type Option func(*Pipeline)

func WithRunObserver(fn RunObserver) Option {
	return func(p *Pipeline) {
		p.observe = fn
	}
}

func WithUpsertObserver(fn UpsertObserver) Option {
	return func(p *Pipeline) {
		p.upserted = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func WithTaxonomy(t *event.Taxonomy) Option {
	return func(p *Pipeline) {
		p.taxonomy = t
	}
}

func New(sources Sources, crawler Crawler, dd Deduplicator, events database.EventStore, logs database.SyncLogStore, limiter *ratelimit.Limiter, opts ...Option) *Pipeline {
	p := &Pipeline{
		sources:  sources,
		crawler:  crawler,
		dedup:    dd,
		events:   events,
		logs:     logs,
		limiter:  limiter,
		taxonomy: event.DefaultTaxonomy(),
		tables:   dates.DefaultTables(),
		filterer: source.NewFilterer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests the named source and returns its finalized sync log entry.
// The error is the run-level failure also recorded in the entry.
func (p *Pipeline) Run(ctx context.Context, name string) (*database.SyncLog, error) {
	entry, err := p.logs.Start(ctx, name)
	if err != nil {
		return nil, err
	}

	runErr := p.run(ctx, name, entry)
	if runErr != nil {
		entry.Status = database.SyncStatusError
		entry.Errors = append(entry.Errors, runErr.Error())
	}

	// finalize even when the run context is done
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.logs.Finish(finishCtx, entry); err != nil {
		slog.Error("Failed to finalize sync log", "source", name, "error", err)
	}

	if p.observe != nil {
		p.observe(entry)
	}

	slog.Info("Task completed", "type", "SyncSource", "source", name, "status", entry.Status,
		"processed", entry.Processed, "created", entry.Created, "updated", entry.Updated,
		"skipped", entry.Skipped, "errors", len(entry.Errors), "duration", entry.Duration)

	return entry, runErr
}

func (p *Pipeline) run(ctx context.Context, name string, entry *database.SyncLog) error {
	def, err := p.sources.Resolve(name)
	if err != nil {
		return err
	}

	if p.limiter != nil {
		ctx = ratelimit.WithSession(ctx, p.limiter.Session())
	}

	res, err := p.crawler.Run(ctx, def)
	entry.PagesDiscovered = res.PagesDiscovered
	entry.PagesProcessed = res.PagesProcessed
	entry.Processed = len(res.Events)
	entry.Errors = append(entry.Errors, errorStrings(res.Errors)...)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	normalized, skipped := p.normalize(def, res.Events)
	entry.Skipped += skipped

	outcome, err := p.dedup.Run(ctx, normalized)
	entry.Errors = append(entry.Errors, errorStrings(outcome.Errors)...)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	entry.Skipped += len(outcome.Duplicates)

	records := make([]database.Record, 0, len(outcome.Unique))
	for _, u := range outcome.Unique {
		records = append(records, database.Record{Event: u.Event, Embedding: u.Embedding})
	}

	batch, err := p.events.Upsert(ctx, records)
	if p.upserted != nil {
		p.upserted(batch)
	}
	entry.Created += batch.Inserted
	entry.Updated += batch.Updated
	entry.Skipped += batch.Skipped
	entry.Errors = append(entry.Errors, errorStrings(batch.Errors())...)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	return nil
}

// normalize filters and validates candidates. Rejected candidates are
// counted as skipped; repeated local ids keep the first occurrence.
func (p *Pipeline) normalize(def *source.Definition, found []crawl.Found) ([]event.Normalized, int) {
	now := p.now()
	n := &event.Normalizer{
		Source:   def.Name,
		Dates:    dates.NewParser(p.tables, dates.WithClock(p.now), dates.WithLocation(now.Location())),
		Taxonomy: p.taxonomy,
		Today:    dates.Today(now),
		City:     def.Settings.City,
		Category: def.Settings.Category,
	}

	skipped := 0
	seen := make(map[string]struct{}, len(found))
	out := make([]event.Normalized, 0, len(found))
	for _, f := range found {
		if filtered, reason := p.filterer.Match(f.Candidate, def); filtered {
			slog.Debug("Candidate filtered", "source", def.Name, "title", f.Candidate.Title, "reason", reason)
			skipped++
			continue
		}

		ev, err := n.Normalize(f.Candidate, f.PageURL)
		if err != nil {
			if !errors.Is(err, event.ErrPastDate) {
				slog.Debug("Candidate rejected", "source", def.Name, "title", f.Candidate.Title, "error", err)
			}
			skipped++
			continue
		}

		if _, dup := seen[ev.LocalID]; dup {
			skipped++
			continue
		}
		seen[ev.LocalID] = struct{}{}
		out = append(out, ev)
	}
	return out, skipped
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

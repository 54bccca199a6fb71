// Package dedup drops candidate events that are semantically the same as
// an already stored event or an earlier event of the same batch.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/textutil"
)

const (
	DefaultThreshold = 0.85
	DefaultTopK      = 5

	maxEmbeddingText = 2000
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Neighbour is a stored event considered for similarity.
type Neighbour struct {
	Source    string
	LocalID   string
	Title     string
	Date      string
	Venue     string
	Embedding []float32
}

// Store returns stored events on the given date that carry an embedding.
type Store interface {
	Neighbours(ctx context.Context, date string) ([]Neighbour, error)
}

type Config struct {
	Threshold float64
	TopK      int
}

type Deduplicator struct {
	embedder Embedder
	store    Store
	limiter  *ratelimit.Limiter
	cfg      Config
}

func New(embedder Embedder, store Store, limiter *ratelimit.Limiter, cfg Config) *Deduplicator {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Deduplicator{embedder: embedder, store: store, limiter: limiter, cfg: cfg}
}

// Entry is one event with its embedding. Match is set for duplicates.
type Entry struct {
	Event      event.Normalized
	Embedding  []float32
	Match      *Neighbour
	Similarity float64
}

type Outcome struct {
	Unique     []Entry
	Duplicates []Entry
	// Errors are degraded lookups; affected events are kept as unique.
	Errors []error
}

// Run classifies events in order. Only a request-ceiling or context error
// is returned; every other failure keeps the event.
func (d *Deduplicator) Run(ctx context.Context, events []event.Normalized) (Outcome, error) {
	var out Outcome
	var accepted []Neighbour

	for _, ev := range events {
		entry := Entry{Event: ev}

		vec, err := d.embed(ctx, ev)
		if err != nil {
			if fatal(ctx, err) {
				return out, err
			}
			out.Errors = append(out.Errors, fmt.Errorf("embedding %q: %w", ev.Title, err))
			out.Unique = append(out.Unique, entry)
			continue
		}
		entry.Embedding = vec

		neighbours, err := d.store.Neighbours(ctx, ev.Date)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Errors = append(out.Errors, fmt.Errorf("neighbours for %q: %w", ev.Title, err))
			neighbours = nil
		}
		neighbours = append(neighbours, accepted...)

		if match, sim, ok := d.match(ev, vec, neighbours); ok {
			entry.Match = &match
			entry.Similarity = sim
			out.Duplicates = append(out.Duplicates, entry)
			slog.Debug("Duplicate event skipped", "title", ev.Title, "match", match.Title, "similarity", sim)
			continue
		}

		out.Unique = append(out.Unique, entry)
		accepted = append(accepted, Neighbour{
			Source:    ev.Source,
			LocalID:   ev.LocalID,
			Title:     ev.Title,
			Date:      ev.Date,
			Venue:     ev.Venue,
			Embedding: vec,
		})
	}

	return out, nil
}

func (d *Deduplicator) embed(ctx context.Context, ev event.Normalized) ([]float32, error) {
	if d.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	if err := ratelimit.Acquire(ctx, d.limiter, ratelimit.ClassEmbedding); err != nil {
		return nil, err
	}
	return d.embedder.Embed(ctx, Text(ev))
}

type scored struct {
	n   Neighbour
	sim float64
}

// match ranks neighbours by similarity and checks the top k above the
// threshold against the date and venue rules.
func (d *Deduplicator) match(ev event.Normalized, vec []float32, neighbours []Neighbour) (Neighbour, float64, bool) {
	var ranked []scored
	for _, n := range neighbours {
		// the same record is an update, not a duplicate
		if n.Source == ev.Source && n.LocalID == ev.LocalID {
			continue
		}
		sim := CosineSimilarity(vec, n.Embedding)
		if sim >= d.cfg.Threshold {
			ranked = append(ranked, scored{n: n, sim: sim})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if len(ranked) > d.cfg.TopK {
		ranked = ranked[:d.cfg.TopK]
	}

	for _, r := range ranked {
		if r.n.Date != ev.Date {
			continue
		}
		if !sameVenue(r.n.Venue, ev.Venue) {
			continue
		}
		return r.n, r.sim, true
	}
	return Neighbour{}, 0, false
}

// Text is the embedding input of an event.
func Text(ev event.Normalized) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{ev.Title, ev.Description, ev.Venue} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return textutil.Truncate(strings.Join(parts, "\n"), maxEmbeddingText)
}

func sameVenue(a, b string) bool {
	a, b = textutil.Fold(a), textutil.Fold(b)
	if a == "" || b == "" {
		return true
	}
	return a == b
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ratelimit.ErrRequestCeiling) || ctx.Err() != nil
}

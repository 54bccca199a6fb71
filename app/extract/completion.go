package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/event-comb/app/cache"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/llm"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/repair"
)

const systemPrompt = `You extract public events from web page content.
Respond with a single JSON object and nothing else:
{"events":[{"title":string,"description":string,"date":string,"end_date":string,"city":string,"venue":string,"category":string,"subcategory":string,"url":string,"image":string,"attendance":number}]}
Rules:
- Only include events with a concrete title and date.
- Copy dates as written on the page; do not invent years.
- Use empty strings for unknown text fields and 0 for unknown attendance.
- Category is one of concert, conference, festival, theatre, sports, exhibition, other.
- If there are no events, respond with {"events":[]}.`

// CompletionClient is the external text-completion service.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type CompletionConfig struct {
	Model        string
	ChunkSize    int
	ChunkOverlap int
	MinEvents    int
	Temperature  float64
	CacheTTL     time.Duration
}

// CompletionExtractor asks the completion service for events chunk by chunk.
type CompletionExtractor struct {
	client  CompletionClient
	limiter *ratelimit.Limiter
	cache   cache.Cache
	cfg     CompletionConfig
	observe func(kind repair.Kind)
}

type CompletionOption func(*CompletionExtractor)

// WithCache enables the extraction-result cache keyed by chunk hash.
func WithCache(c cache.Cache) CompletionOption {
	return func(e *CompletionExtractor) {
		e.cache = c
	}
}

// WithRepairObserver registers a callback for every parsed response.
func WithRepairObserver(fn func(kind repair.Kind)) CompletionOption {
	return func(e *CompletionExtractor) {
		e.observe = fn
	}
}

func NewCompletionExtractor(client CompletionClient, limiter *ratelimit.Limiter, cfg CompletionConfig, opts ...CompletionOption) *CompletionExtractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 12000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	e := &CompletionExtractor{client: client, limiter: limiter, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract chunks text and merges the events of every chunk by content key.
// Per-chunk failures are collected in the result; only a request-ceiling
// or context error is returned.
func (e *CompletionExtractor) Extract(ctx context.Context, text, pageURL string) (Result, error) {
	var res Result
	if e == nil || e.client == nil {
		return res, nil
	}

	seen := make(map[string]struct{})
	chunks := Chunk(text, e.cfg.ChunkSize, e.cfg.ChunkOverlap)

	for i, chunk := range chunks {
		if e.cfg.MinEvents > 0 && len(res.Candidates) >= e.cfg.MinEvents {
			slog.Debug("Minimum events reached, skipping remaining chunks", "url", pageURL, "events", len(res.Candidates), "skipped", len(chunks)-i)
			break
		}

		prompt := buildPrompt(chunk, pageURL, i+1, len(chunks))
		parsed, err := e.complete(ctx, prompt)
		if err != nil {
			if errors.Is(err, ratelimit.ErrRequestCeiling) || ctx.Err() != nil {
				return res, err
			}
			slog.Warn("Completion request failed, skipping chunk", "url", pageURL, "chunk", i+1, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("chunk %d of %s: %w", i+1, pageURL, err))
			continue
		}
		res.Requests++

		for _, raw := range parsed.Events {
			c := candidateFromMap(raw)
			if c.Title == "" {
				continue
			}
			key := event.Key(c.Title, c.Date, c.URL)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.Candidates = append(res.Candidates, c)
		}
	}

	return res, nil
}

func (e *CompletionExtractor) complete(ctx context.Context, prompt string) (repair.Result, error) {
	key := e.cacheKey(prompt)
	if e.cache != nil {
		if cached, ok, err := e.cache.Get(ctx, key); err != nil {
			slog.Debug("Extraction cache read failed", "error", err)
		} else if ok {
			return repair.Parse(cached), nil
		}
	}

	if err := ratelimit.Acquire(ctx, e.limiter, ratelimit.ClassCompletion); err != nil {
		return repair.Result{}, err
	}

	content, err := e.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return repair.Result{}, err
	}

	parsed := repair.Parse(content)
	if e.observe != nil {
		e.observe(parsed.Kind)
	}
	if parsed.Kind != repair.Parsed {
		slog.Debug("Completion response needed repair", "kind", parsed.Kind.String(), "events", len(parsed.Events), "error", parsed.Err)
	}

	if e.cache != nil && parsed.Kind != repair.Failed {
		if err := e.cache.Set(ctx, key, repair.Compact(parsed.Events), e.cfg.CacheTTL); err != nil {
			slog.Debug("Extraction cache write failed", "error", err)
		}
	}
	return parsed, nil
}

func (e *CompletionExtractor) cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(e.cfg.Model + "\x00" + prompt))
	return "extract:" + hex.EncodeToString(sum[:])
}

func buildPrompt(chunk, pageURL string, part, total int) string {
	var b strings.Builder
	if pageURL != "" {
		fmt.Fprintf(&b, "Page URL: %s\n", pageURL)
	}
	fmt.Fprintf(&b, "Content part %d of %d:\n\n", part, total)
	b.WriteString(chunk)
	return b.String()
}

// Chunk splits text into windows of size runes sharing overlap runes with
// their predecessor. Cuts prefer a line break in the last tenth of a window.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 || len(runes) <= size {
		return []string{string(runes)}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		for i := end; i > end-size/10 && i > start+overlap; i-- {
			if runes[i-1] == '\n' {
				end = i
				break
			}
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlap
	}
	return chunks
}

func candidateFromMap(m map[string]any) event.Candidate {
	return event.Candidate{
		Title:       mapString(m, "title", "name"),
		Description: mapString(m, "description"),
		Date:        mapString(m, "date", "start_date", "startDate"),
		EndDate:     mapString(m, "end_date", "endDate"),
		City:        mapString(m, "city"),
		Venue:       mapString(m, "venue", "location"),
		Category:    mapString(m, "category"),
		Subcategory: mapString(m, "subcategory"),
		URL:         mapString(m, "url", "link"),
		Image:       mapString(m, "image", "image_url"),
		Attendance:  asInt(firstPresent(m, "attendance", "expected_attendance")),
	}
}

func mapString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(m[key]); s != "" && s != "null" {
			return s
		}
	}
	return ""
}

// asInt reads counts given as numbers or as text such as "1 200" or "~500".
func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		if t > 0 && t < math.MaxInt32 {
			return int(t)
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && f > 0 && f < math.MaxInt32 {
			return int(f)
		}
	case string:
		var b strings.Builder
	scan:
		for _, r := range t {
			switch {
			case r >= '0' && r <= '9':
				b.WriteRune(r)
			case b.Len() > 0 && (r == ' ' || r == ',' || r == '.' || r == '\u00a0'):
			case b.Len() > 0:
				break scan
			}
		}
		if n, err := strconv.Atoi(b.String()); err == nil && n > 0 && n < math.MaxInt32 {
			return n
		}
	}
	return 0
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

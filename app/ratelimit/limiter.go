// Package ratelimit spaces calls to external services per source class and
// caps the number of requests a single run may issue.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRequestCeiling = errors.New("request ceiling reached")

type Class string

const (
	ClassDefault    Class = "default"
	ClassGentle     Class = "gentle"
	ClassCompletion Class = "completion"
	ClassEmbedding  Class = "embedding"
)

// ParseClass maps a source's configured rate class; unknown values use the
// default class.
func ParseClass(s string) Class {
	switch Class(s) {
	case ClassGentle:
		return ClassGentle
	default:
		return ClassDefault
	}
}

type Config struct {
	Intervals         map[Class]time.Duration
	MaxRequestsPerRun int
}

type Option func(*Limiter)

// WithObserver registers a callback invoked after every wait.
func WithObserver(fn func(class Class, waited time.Duration)) Option {
	return func(l *Limiter) {
		l.observe = fn
	}
}

// Limiter is shared by every source worker. One token bucket of burst 1 per
// class enforces the minimum interval between calls in that class.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[Class]*rate.Limiter
	intervals map[Class]time.Duration
	counts    map[Class]int64
	maxPerRun int
	observe   func(Class, time.Duration)
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		limiters:  make(map[Class]*rate.Limiter),
		intervals: make(map[Class]time.Duration),
		counts:    make(map[Class]int64),
		maxPerRun: cfg.MaxRequestsPerRun,
	}
	for class, interval := range cfg.Intervals {
		l.intervals[class] = interval
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) limiter(class Class) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[class]
	if !ok {
		interval, ok := l.intervals[class]
		if !ok {
			interval = l.intervals[ClassDefault]
		}
		limit := rate.Inf
		if interval > 0 {
			limit = rate.Every(interval)
		}
		lim = rate.NewLimiter(limit, 1)
		l.limiters[class] = lim
	}
	l.counts[class]++
	return lim
}

// Wait blocks until a call in class may proceed.
func (l *Limiter) Wait(ctx context.Context, class Class) error {
	lim := l.limiter(class)
	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", class, err)
	}
	if l.observe != nil {
		l.observe(class, time.Since(start))
	}
	return nil
}

// Counts returns the number of calls admitted per class since start.
func (l *Limiter) Counts() map[Class]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Class]int64, len(l.counts))
	for class, n := range l.counts {
		out[class] = n
	}
	return out
}

// Session opens a per-run budget on top of the shared spacing.
func (l *Limiter) Session() *Session {
	return &Session{limiter: l, max: l.maxPerRun}
}

// Session counts one run's requests. It fails fast once the ceiling is hit.
type Session struct {
	limiter *Limiter
	max     int

	mu    sync.Mutex
	count int
}

// Acquire reserves one request in class and waits for its slot.
func (s *Session) Acquire(ctx context.Context, class Class) error {
	s.mu.Lock()
	if s.max > 0 && s.count >= s.max {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d requests issued in this run", ErrRequestCeiling, s.max)
	}
	s.count++
	s.mu.Unlock()

	return s.limiter.Wait(ctx, class)
}

// Count returns the requests issued so far.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type sessionKey struct{}

// WithSession attaches a run session to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// Acquire reserves a request against the run session in ctx, or only waits
// on the shared limiter when no session is attached.
func Acquire(ctx context.Context, l *Limiter, class Class) error {
	if s, ok := FromContext(ctx); ok {
		return s.Acquire(ctx, class)
	}
	if l == nil {
		return nil
	}
	return l.Wait(ctx, class)
}

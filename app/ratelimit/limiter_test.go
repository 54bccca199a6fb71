package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSessionCeiling(t *testing.T) {
	l := New(Config{MaxRequestsPerRun: 3})
	s := l.Session()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Acquire(ctx, ClassDefault); err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
	}

	err := s.Acquire(ctx, ClassDefault)
	if !errors.Is(err, ErrRequestCeiling) {
		t.Fatalf("Expected ErrRequestCeiling, got %v", err)
	}
	if s.Count() != 3 {
		t.Errorf("Expected count 3, got %d", s.Count())
	}

	// A fresh session starts with a full budget.
	if err := l.Session().Acquire(ctx, ClassDefault); err != nil {
		t.Errorf("New session should not be limited: %v", err)
	}
}

func TestIntervalSpacing(t *testing.T) {
	interval := 40 * time.Millisecond
	l := New(Config{Intervals: map[Class]time.Duration{ClassGentle: interval}})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, ClassGentle); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < 2*interval-5*time.Millisecond {
		t.Errorf("Expected at least %v between three calls, got %v", 2*interval, elapsed)
	}
}

func TestClassesAreIndependent(t *testing.T) {
	l := New(Config{Intervals: map[Class]time.Duration{
		ClassDefault: 0,
		ClassGentle:  time.Hour,
	}})
	ctx := context.Background()

	if err := l.Wait(ctx, ClassGentle); err != nil {
		t.Fatalf("First gentle call should pass immediately: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, ClassDefault) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Default call failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Default class blocked behind gentle class")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(Config{Intervals: map[Class]time.Duration{ClassDefault: time.Hour}})

	if err := l.Wait(context.Background(), ClassDefault); err != nil {
		t.Fatalf("First call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, ClassDefault); err == nil {
		t.Error("Expected error when context expires before the next slot")
	}
}

func TestConcurrentSessionsShareCounters(t *testing.T) {
	var observed int
	var mu sync.Mutex
	l := New(Config{MaxRequestsPerRun: 100}, WithObserver(func(Class, time.Duration) {
		mu.Lock()
		observed++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := l.Session()
			for j := 0; j < 5; j++ {
				_ = s.Acquire(context.Background(), ClassCompletion)
			}
		}()
	}
	wg.Wait()

	if got := l.Counts()[ClassCompletion]; got != 20 {
		t.Errorf("Expected 20 completion calls counted, got %d", got)
	}
	if observed != 20 {
		t.Errorf("Expected observer to see 20 waits, got %d", observed)
	}
}

func TestAcquireFromContext(t *testing.T) {
	l := New(Config{MaxRequestsPerRun: 1})
	ctx := WithSession(context.Background(), l.Session())

	if err := Acquire(ctx, l, ClassDefault); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := Acquire(ctx, l, ClassDefault); !errors.Is(err, ErrRequestCeiling) {
		t.Errorf("Expected ErrRequestCeiling from context session, got %v", err)
	}
	if err := Acquire(context.Background(), l, ClassDefault); err != nil {
		t.Errorf("Acquire without session should only wait: %v", err)
	}
}

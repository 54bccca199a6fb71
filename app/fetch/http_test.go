package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lysyi3m/event-comb/app/ratelimit"
)

func newSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
}

func TestHTTPClientScrape(t *testing.T) {
	server := newSite(t, map[string]string{
		"/program": `<html><head><title>Program</title></head><body>
			<h1>Program</h1>
			<script>var x = 1;</script>
			<div><a href="/akce/rock-concert?utm_source=x">Rock Concert</a></div>
			<p>4. prosince 2025</p>
		</body></html>`,
	})
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	page, err := client.Scrape(context.Background(), ScrapeRequest{URL: server.URL + "/program"})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if !strings.Contains(page.Text, "4. prosince 2025") {
		t.Errorf("Expected date text in page text, got %q", page.Text)
	}
	if strings.Contains(page.Text, "var x") {
		t.Error("Script content should not appear in page text")
	}
	if !strings.Contains(page.HTML, "<script>") {
		t.Error("Raw HTML should be preserved")
	}
	if len(page.Links) != 1 || page.Links[0] != server.URL+"/akce/rock-concert" {
		t.Errorf("Unexpected links: %v", page.Links)
	}
}

func TestHTTPClientScrapeError(t *testing.T) {
	server := newSite(t, map[string]string{})
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	if _, err := client.Scrape(context.Background(), ScrapeRequest{URL: server.URL + "/missing"}); err == nil {
		t.Error("Expected error for 404 page")
	}
}

func TestHTTPClientRetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<body><p>4. prosince 2030 Rock Concert</p></body>`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	client.retryDelay = 0

	page, err := client.Scrape(context.Background(), ScrapeRequest{URL: server.URL + "/program"})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected one retry, got %d calls", calls)
	}
	if !strings.Contains(page.Text, "Rock Concert") {
		t.Errorf("Unexpected page text %q", page.Text)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	client.retryDelay = 0

	if _, err := client.Scrape(context.Background(), ScrapeRequest{URL: server.URL + "/missing"}); err == nil {
		t.Fatal("Expected error for 404 page")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestHTTPClientRetryCountsAgainstCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerRun: 1})
	ctx := ratelimit.WithSession(context.Background(), limiter.Session())

	client := NewHTTPClient(server.Client(), "test-agent", limiter)
	client.retryDelay = 0

	_, err := client.Scrape(ctx, ScrapeRequest{URL: server.URL})
	if !errors.Is(err, ratelimit.ErrRequestCeiling) {
		t.Fatalf("Expected ErrRequestCeiling, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&statusError{code: http.StatusTooManyRequests}, true},
		{&statusError{code: http.StatusInternalServerError}, true},
		{&statusError{code: http.StatusNotFound}, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{errors.New("parse failure"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHTTPClientCrawl(t *testing.T) {
	server := newSite(t, map[string]string{
		"/": `<body>
			<a href="/about">About</a>
			<a href="/events/1">Event one</a>
			<a href="/events/broken">Broken</a>
			<a href="/private/x">Private</a>
			<a href="/list?page=2">Další</a>
			<a href="https://elsewhere.example.org/events/9">External</a>
		</body>`,
		"/events/1":    `<body><p>Event one</p><a href="/events/2">Two</a></body>`,
		"/events/2":    `<body><p>Event two</p></body>`,
		"/list":        `<body><p>Page two</p></body>`,
		"/about":       `<body><p>About</p></body>`,
		"/private/x":   `<body><p>Private</p></body>`,
	})
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	pages, err := client.Crawl(context.Background(), CrawlRequest{
		StartURL: server.URL + "/",
		MaxDepth: 1,
		MaxPages: 10,
		Include:  []string{"^/events/"},
		Exclude:  []string{"^/private/"},
		Actions:  []Action{{Type: ActionClick, Text: []string{"next", "další"}}},
	})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	var got []string
	for _, p := range pages {
		got = append(got, strings.TrimPrefix(p.URL, server.URL))
	}
	want := []string{"", "/list?page=2", "/events/1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Crawled pages = %v, want %v", got, want)
	}
}

func TestHTTPClientCrawlMaxPages(t *testing.T) {
	server := newSite(t, map[string]string{
		"/":  `<body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body>`,
		"/a": `<body>a</body>`,
		"/b": `<body>b</body>`,
		"/c": `<body>c</body>`,
	})
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	pages, err := client.Crawl(context.Background(), CrawlRequest{StartURL: server.URL, MaxDepth: 2, MaxPages: 2})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("Expected 2 pages, got %d", len(pages))
	}
}

func TestHTTPClientCrawlStartFailure(t *testing.T) {
	server := newSite(t, map[string]string{})
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	if _, err := client.Crawl(context.Background(), CrawlRequest{StartURL: server.URL + "/", MaxPages: 5}); err == nil {
		t.Error("Expected error when the start page cannot be fetched")
	}
}

func TestHTTPClientCrawlRequestCeiling(t *testing.T) {
	server := newSite(t, map[string]string{
		"/":  `<body><a href="/a">a</a><a href="/b">b</a></body>`,
		"/a": `<body>a</body>`,
		"/b": `<body>b</body>`,
	})
	defer server.Close()

	limiter := ratelimit.New(ratelimit.Config{MaxRequestsPerRun: 2})
	ctx := ratelimit.WithSession(context.Background(), limiter.Session())

	client := NewHTTPClient(server.Client(), "test-agent", limiter)
	pages, err := client.Crawl(ctx, CrawlRequest{StartURL: server.URL, MaxDepth: 1, MaxPages: 10})
	if !errors.Is(err, ratelimit.ErrRequestCeiling) {
		t.Fatalf("Expected ErrRequestCeiling, got %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("Expected the 2 pages fetched before the ceiling, got %d", len(pages))
	}
}

func TestHTTPClientFetchRaw(t *testing.T) {
	const feed = `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), "test-agent", nil)
	data, err := client.Fetch(context.Background(), ScrapeRequest{URL: server.URL + "/feed.xml"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != feed {
		t.Errorf("Expected raw feed body, got %q", data)
	}
}

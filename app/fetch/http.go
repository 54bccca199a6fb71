package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/urlnorm"
)

const (
	defaultScrapeTimeout = 60 * time.Second
	maxBodyBytes         = 8 << 20
	defaultFetchAttempts = 2
	defaultRetryDelay    = 500 * time.Millisecond
)

// HTTPClient fetches pages directly. It stands in for the external fetch
// service when none is configured: no JavaScript runs, waits are ignored and
// click actions only steer which links are followed first.
//
// Transient failures (timeouts, 408, 429, 5xx) are retried once per page;
// every retry is another request against the limiter.
type HTTPClient struct {
	httpClient  *http.Client
	userAgent   string
	limiter     *ratelimit.Limiter
	maxAttempts int
	retryDelay  time.Duration
}

func NewHTTPClient(httpClient *http.Client, userAgent string, limiter *ratelimit.Limiter) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		httpClient:  httpClient,
		userAgent:   userAgent,
		limiter:     limiter,
		maxAttempts: defaultFetchAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

func (c *HTTPClient) Scrape(ctx context.Context, req ScrapeRequest) (Page, error) {
	if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
		return Page{}, err
	}
	page, _, err := c.get(ctx, req.URL, req.Timeout, req.RateClass, req.OnlyMainContent)
	return page, err
}

// Crawl walks same-host links breadth first from StartURL. Only a failure to
// fetch the start page is returned as an error.
func (c *HTTPClient) Crawl(ctx context.Context, req CrawlRequest) ([]Page, error) {
	start, err := urlnorm.Normalize(req.StartURL, "")
	if err != nil {
		return nil, fmt.Errorf("invalid start url %q: %w", req.StartURL, err)
	}

	include, err := compilePatterns(req.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compilePatterns(req.Exclude)
	if err != nil {
		return nil, err
	}
	clickText := clickMatchers(req.Actions)

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	type queued struct {
		url   string
		depth int
	}
	queue := []queued{{url: start}}
	seen := map[string]struct{}{start: {}}
	var pages []Page

	for len(queue) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		next := queue[0]
		queue = queue[1:]

		if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
			return pages, err
		}

		page, links, err := c.get(ctx, next.url, req.Timeout, req.RateClass, false)
		if err != nil {
			if errors.Is(err, ratelimit.ErrRequestCeiling) {
				return pages, err
			}
			if next.url == start {
				return nil, err
			}
			slog.Warn("Failed to fetch page, skipping", "url", next.url, "error", err)
			continue
		}
		pages = append(pages, page)

		if next.depth >= req.MaxDepth {
			continue
		}

		var prioritized, rest []queued
		for _, link := range links {
			if _, ok := seen[link.URL]; ok {
				continue
			}
			if !urlnorm.SameHost(link.URL, start) {
				continue
			}
			path := pathOf(link.URL)
			if matchesAny(exclude, path) {
				continue
			}
			clicked := matchesText(clickText, link.Text)
			if !clicked && len(include) > 0 && !matchesAny(include, path) {
				continue
			}
			seen[link.URL] = struct{}{}
			item := queued{url: link.URL, depth: next.depth + 1}
			if clicked {
				prioritized = append(prioritized, item)
			} else {
				rest = append(rest, item)
			}
		}
		queue = append(append(queue, prioritized...), rest...)
	}

	return pages, nil
}

// Fetch returns the raw body at req.URL, used for feeds.
func (c *HTTPClient) Fetch(ctx context.Context, req ScrapeRequest) ([]byte, error) {
	if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
		return nil, err
	}
	body, err := c.download(ctx, req.URL, req.Timeout, req.RateClass, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	return body.data, nil
}

type body struct {
	data        []byte
	finalURL    string
	contentType string
}

// statusError is a non-200 response.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.code, e.status)
}

// download fetches pageURL, retrying transient failures. The caller has
// already acquired the limiter for the first attempt.
func (c *HTTPClient) download(ctx context.Context, pageURL string, timeout time.Duration, class ratelimit.Class, accept string) (body, error) {
	attempts := max(c.maxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			slog.Debug("Retrying page fetch", "url", pageURL, "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, c.retryDelay*time.Duration(attempt-1)); err != nil {
				return body{}, err
			}
			if err := ratelimit.Acquire(ctx, c.limiter, class); err != nil {
				return body{}, err
			}
		}
		b, err := c.downloadOnce(ctx, pageURL, timeout, accept)
		if err == nil {
			return b, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			break
		}
	}
	return body{}, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) downloadOnce(ctx context.Context, pageURL string, timeout time.Duration, accept string) (body, error) {
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return body{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return body{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return body{}, &statusError{code: resp.StatusCode, status: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return body{}, fmt.Errorf("failed to read response body: %w", err)
	}

	return body{
		data:        data,
		finalURL:    urlnorm.MustNormalize(resp.Request.URL.String(), ""),
		contentType: strings.ToLower(resp.Header.Get("Content-Type")),
	}, nil
}

func (c *HTTPClient) get(ctx context.Context, pageURL string, timeout time.Duration, class ratelimit.Class, mainOnly bool) (Page, []Link, error) {
	b, err := c.download(ctx, pageURL, timeout, class, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return Page{}, nil, err
	}

	if b.contentType != "" && !strings.Contains(b.contentType, "html") {
		return Page{URL: b.finalURL, Text: string(b.data)}, nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.data))
	if err != nil {
		return Page{}, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	links := ExtractLinks(doc, b.finalURL)

	text := ""
	if mainOnly {
		if main, err := MainContent(b.data, b.finalURL); err == nil {
			text = main
		} else {
			slog.Debug("Main content extraction failed, using full text", "url", b.finalURL, "error", err)
		}
	}
	if text == "" {
		text = PlainText(doc)
	}

	return Page{URL: b.finalURL, Text: text, HTML: string(b.data), Links: linkURLs(links)}, links, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func clickMatchers(actions []Action) []string {
	var out []string
	for _, a := range actions {
		if a.Type != ActionClick {
			continue
		}
		for _, t := range a.Text {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func matchesText(matchers []string, text string) bool {
	if len(matchers) == 0 || text == "" {
		return false
	}
	text = strings.ToLower(text)
	for _, m := range matchers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

// IsTransient reports whether err is worth retrying: timeouts and 408, 429
// or 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code == http.StatusRequestTimeout ||
			statusErr.code == http.StatusTooManyRequests ||
			statusErr.code >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

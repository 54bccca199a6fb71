package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/event-comb/app/ratelimit"
	"github.com/lysyi3m/event-comb/app/urlnorm"
	"github.com/mendableai/firecrawl-go"
)

// firecrawlAPI is the subset of the SDK used here.
type firecrawlAPI interface {
	ScrapeURL(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error)
	CrawlURL(url string, params *firecrawl.CrawlParams, idempotencyKey *string, pollInterval ...int) (*firecrawl.CrawlStatusResponse, error)
}

// FirecrawlClient talks to the external fetch service. A crawl with
// navigation actions first scrapes the start URL with those actions applied,
// so expanded listings reach the extractors alongside the crawled pages.
type FirecrawlClient struct {
	api          firecrawlAPI
	actions      *actionScraper
	limiter      *ratelimit.Limiter
	pollInterval int
}

func NewFirecrawlClient(apiKey, apiURL string, limiter *ratelimit.Limiter) (*FirecrawlClient, error) {
	app, err := firecrawl.NewFirecrawlApp(apiKey, apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create firecrawl client: %w", err)
	}
	return &FirecrawlClient{
		api:          app,
		actions:      &actionScraper{apiURL: app.APIURL, apiKey: app.APIKey, client: app.Client},
		limiter:      limiter,
		pollInterval: 2,
	}, nil
}

var scrapeFormats = []string{"markdown", "rawHtml", "links"}

func scrapeParams(mainOnly bool, waitMs, timeoutMs int) firecrawl.ScrapeParams {
	params := firecrawl.ScrapeParams{
		Formats:         scrapeFormats,
		OnlyMainContent: &mainOnly,
	}
	if waitMs > 0 {
		params.WaitFor = &waitMs
	}
	if timeoutMs > 0 {
		params.Timeout = &timeoutMs
	}
	return params
}

func (c *FirecrawlClient) Scrape(ctx context.Context, req ScrapeRequest) (Page, error) {
	if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
		return Page{}, err
	}

	params := scrapeParams(req.OnlyMainContent, int(req.WaitFor.Milliseconds()), int(req.Timeout.Milliseconds()))

	doc, err := runWithContext(ctx, func() (*firecrawl.FirecrawlDocument, error) {
		return c.api.ScrapeURL(req.URL, &params)
	})
	if err != nil {
		return Page{}, fmt.Errorf("firecrawl scrape %s: %w", req.URL, err)
	}
	if doc == nil {
		return Page{}, fmt.Errorf("firecrawl scrape %s: empty document", req.URL)
	}
	return toPage(doc, req.URL), nil
}

func (c *FirecrawlClient) Crawl(ctx context.Context, req CrawlRequest) ([]Page, error) {
	if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
		return nil, err
	}

	var pages []Page
	seen := make(map[string]bool)
	if len(req.Actions) > 0 && c.actions != nil {
		if page, err := c.scrapeWithActions(ctx, req); err != nil {
			if errors.Is(err, ratelimit.ErrRequestCeiling) {
				return nil, err
			}
			slog.Warn("Scrape with navigation actions failed", "url", req.StartURL, "error", err)
		} else {
			pages = append(pages, page)
			seen[page.URL] = true
		}
	}

	params := firecrawl.CrawlParams{
		ScrapeOptions: scrapeParams(false, int(req.WaitFor.Milliseconds()), int(req.Timeout.Milliseconds())),
		IncludePaths:  req.Include,
		ExcludePaths:  req.Exclude,
	}
	if req.MaxPages > 0 {
		limit := req.MaxPages
		params.Limit = &limit
	}
	if req.MaxDepth > 0 {
		depth := req.MaxDepth
		params.MaxDepth = &depth
	}

	status, err := runWithContext(ctx, func() (*firecrawl.CrawlStatusResponse, error) {
		return c.api.CrawlURL(req.StartURL, &params, nil, c.pollInterval)
	})
	if err != nil {
		return nil, fmt.Errorf("firecrawl crawl %s: %w", req.StartURL, err)
	}
	if status == nil {
		return nil, fmt.Errorf("firecrawl crawl %s: empty status", req.StartURL)
	}

	for _, doc := range status.Data {
		if doc == nil || (strings.TrimSpace(doc.Markdown) == "" && doc.RawHTML == "" && doc.HTML == "") {
			slog.Warn("Skipping empty crawled page", "source_url", req.StartURL)
			continue
		}
		page := toPage(doc, req.StartURL)
		if seen[page.URL] {
			continue
		}
		seen[page.URL] = true
		pages = append(pages, page)
	}
	if req.MaxPages > 0 && len(pages) > req.MaxPages {
		pages = pages[:req.MaxPages]
	}
	return pages, nil
}

func (c *FirecrawlClient) scrapeWithActions(ctx context.Context, req CrawlRequest) (Page, error) {
	if err := ratelimit.Acquire(ctx, c.limiter, req.RateClass); err != nil {
		return Page{}, err
	}
	doc, err := c.actions.scrape(ctx, req)
	if err != nil {
		return Page{}, fmt.Errorf("firecrawl scrape with actions %s: %w", req.StartURL, err)
	}
	return toPage(doc, req.StartURL), nil
}

func toPage(doc *firecrawl.FirecrawlDocument, fallbackURL string) Page {
	pageURL := fallbackURL
	if doc.Metadata != nil && doc.Metadata.SourceURL != nil && *doc.Metadata.SourceURL != "" {
		pageURL = *doc.Metadata.SourceURL
	}
	html := doc.RawHTML
	if html == "" {
		html = doc.HTML
	}

	links := make([]string, 0, len(doc.Links))
	for _, l := range doc.Links {
		if normalized, err := urlnorm.Normalize(l, pageURL); err == nil {
			links = append(links, normalized)
		}
	}

	return Page{
		URL:   urlnorm.MustNormalize(pageURL, ""),
		Text:  doc.Markdown,
		HTML:  html,
		Links: links,
	}
}

// runWithContext runs a blocking SDK call and stops waiting when ctx ends.
// The SDK call itself keeps running until it returns.
func runWithContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}

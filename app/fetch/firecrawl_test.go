package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mendableai/firecrawl-go"
)

type fakeFirecrawl struct {
	scrapeParams *firecrawl.ScrapeParams
	crawlParams  *firecrawl.CrawlParams
	doc          *firecrawl.FirecrawlDocument
	status       *firecrawl.CrawlStatusResponse
	err          error
}

func (f *fakeFirecrawl) ScrapeURL(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error) {
	f.scrapeParams = params
	return f.doc, f.err
}

func (f *fakeFirecrawl) CrawlURL(url string, params *firecrawl.CrawlParams, idempotencyKey *string, pollInterval ...int) (*firecrawl.CrawlStatusResponse, error) {
	f.crawlParams = params
	return f.status, f.err
}

func strPtr(s string) *string { return &s }

func TestFirecrawlScrape(t *testing.T) {
	fake := &fakeFirecrawl{doc: &firecrawl.FirecrawlDocument{
		Markdown: "# Program\n\n4. prosince 2025 Rock Concert",
		RawHTML:  "<html></html>",
		Links:    []string{"/akce/1#top", "https://example.com/akce/2"},
		Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/program")},
	}}
	client := &FirecrawlClient{api: fake}

	page, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com/program", OnlyMainContent: true})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if fake.scrapeParams.OnlyMainContent == nil || !*fake.scrapeParams.OnlyMainContent {
		t.Error("Expected OnlyMainContent to be forwarded")
	}
	if page.URL != "https://example.com/program" {
		t.Errorf("Unexpected page URL %q", page.URL)
	}
	if page.HTML != "<html></html>" {
		t.Errorf("Expected raw HTML, got %q", page.HTML)
	}
	if len(page.Links) != 2 || page.Links[0] != "https://example.com/akce/1" {
		t.Errorf("Unexpected links %v", page.Links)
	}
}

func TestFirecrawlCrawl(t *testing.T) {
	fake := &fakeFirecrawl{status: &firecrawl.CrawlStatusResponse{Data: []*firecrawl.FirecrawlDocument{
		{Markdown: "page one", Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/a")}},
		nil,
		{Markdown: "   "},
		{Markdown: "page two", Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/b")}},
	}}}
	client := &FirecrawlClient{api: fake}

	pages, err := client.Crawl(context.Background(), CrawlRequest{
		StartURL: "https://example.com",
		MaxDepth: 2,
		MaxPages: 15,
		Include:  []string{"^/events/"},
	})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Expected 2 non-empty pages, got %d", len(pages))
	}
	if *fake.crawlParams.Limit != 15 || *fake.crawlParams.MaxDepth != 2 {
		t.Errorf("Caps not forwarded: limit %d depth %d", *fake.crawlParams.Limit, *fake.crawlParams.MaxDepth)
	}
	if len(fake.crawlParams.IncludePaths) != 1 {
		t.Errorf("Include paths not forwarded")
	}
}

func TestFirecrawlError(t *testing.T) {
	client := &FirecrawlClient{api: &fakeFirecrawl{err: errors.New("dns failure")}}
	if _, err := client.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com"}); err == nil {
		t.Error("Expected scrape error")
	}
	if _, err := client.Crawl(context.Background(), CrawlRequest{StartURL: "https://example.com"}); err == nil {
		t.Error("Expected crawl error")
	}
}

func TestFirecrawlCrawlSendsActions(t *testing.T) {
	var body actionScrapeBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scrape" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": "4. prosince 2030 Rock Concert",
				"metadata": map[string]any{"sourceURL": "https://example.com/program"},
			},
		})
	}))
	defer server.Close()

	fake := &fakeFirecrawl{status: &firecrawl.CrawlStatusResponse{Data: []*firecrawl.FirecrawlDocument{
		{Markdown: "same page", Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/program")}},
		{Markdown: "detail", Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/akce/1")}},
	}}}
	client := &FirecrawlClient{
		api:     fake,
		actions: &actionScraper{apiURL: server.URL, apiKey: "key", client: server.Client()},
	}

	pages, err := client.Crawl(context.Background(), CrawlRequest{
		StartURL: "https://example.com/program",
		MaxPages: 5,
		Actions: []Action{
			{Type: ActionClick, Text: []string{"Accept", "Přijmout"}},
			{Type: ActionClick, Selector: "#next"},
			{Type: ActionScroll, Repeat: 2},
			{Type: ActionWait, Milliseconds: 500},
		},
	})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	var types []string
	for _, a := range body.Actions {
		types = append(types, a.Type)
	}
	want := "executeJavascript,wait,click,wait,scroll,scroll,wait"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("Unexpected actions %s, want %s", got, want)
	}
	if !strings.Contains(body.Actions[0].Script, `"přijmout"`) {
		t.Errorf("Expected folded text matchers in script, got %s", body.Actions[0].Script)
	}
	if body.Actions[2].Selector != "#next" || body.Actions[6].Milliseconds != 500 {
		t.Errorf("Unexpected action details %+v", body.Actions)
	}
	if body.URL != "https://example.com/program" {
		t.Errorf("Unexpected scrape URL %q", body.URL)
	}

	if len(pages) != 2 {
		t.Fatalf("Expected action page plus one crawled page, got %d", len(pages))
	}
	if pages[0].Text != "4. prosince 2030 Rock Concert" || pages[1].URL != "https://example.com/akce/1" {
		t.Errorf("Unexpected pages %+v", pages)
	}
}

func TestFirecrawlActionFailureFallsBackToCrawl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	fake := &fakeFirecrawl{status: &firecrawl.CrawlStatusResponse{Data: []*firecrawl.FirecrawlDocument{
		{Markdown: "page", Metadata: &firecrawl.FirecrawlDocumentMetadata{SourceURL: strPtr("https://example.com/a")}},
	}}}
	client := &FirecrawlClient{api: fake, actions: &actionScraper{apiURL: server.URL, client: server.Client()}}

	pages, err := client.Crawl(context.Background(), CrawlRequest{
		StartURL: "https://example.com",
		Actions:  []Action{{Type: ActionScroll}},
	})
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(pages) != 1 || fake.crawlParams == nil {
		t.Errorf("Expected the crawl to run after the failed action scrape, got %d pages", len(pages))
	}
}

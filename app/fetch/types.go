package fetch

import (
	"context"
	"time"

	"github.com/lysyi3m/event-comb/app/ratelimit"
)

// Action is a navigation step for multi-page fetching. Text matchers are
// case-insensitive substrings, usually given in several languages.
type Action struct {
	Type         string   `yaml:"type" json:"type"` // click, scroll, wait
	Text         []string `yaml:"text,omitempty" json:"text,omitempty"`
	Selector     string   `yaml:"selector,omitempty" json:"selector,omitempty"`
	Milliseconds int      `yaml:"milliseconds,omitempty" json:"milliseconds,omitempty"`
	Repeat       int      `yaml:"repeat,omitempty" json:"repeat,omitempty"`
}

const (
	ActionClick  = "click"
	ActionScroll = "scroll"
	ActionWait   = "wait"
)

type ScrapeRequest struct {
	URL             string
	OnlyMainContent bool
	WaitFor         time.Duration
	Timeout         time.Duration
	RateClass       ratelimit.Class
}

type CrawlRequest struct {
	StartURL  string
	MaxDepth  int
	MaxPages  int
	Include   []string
	Exclude   []string
	Actions   []Action
	WaitFor   time.Duration
	Timeout   time.Duration
	RateClass ratelimit.Class
}

// Page is one fetched page. Text is plain text or markdown; HTML keeps the
// raw markup so embedded structured data survives.
type Page struct {
	URL   string
	Text  string
	HTML  string
	Links []string
}

// Client is the external page-fetching service.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (Page, error)
	Crawl(ctx context.Context, req CrawlRequest) ([]Page, error)
}

package source

import (
	"regexp"
	"slices"
	"time"

	"github.com/lysyi3m/event-comb/app/fetch"
	"github.com/lysyi3m/event-comb/app/ratelimit"
)

// CrawlConfig is the effective crawl configuration of one run. It is built
// once and never modified.
type CrawlConfig struct {
	StartURLs []string
	MaxDepth  int
	MaxPages  int
	Include   []string
	Exclude   []string
	Actions   []fetch.Action
	WaitFor   time.Duration
	Timeout   time.Duration
	RateClass ratelimit.Class

	detail  []*regexp.Regexp
	listing []*regexp.Regexp
}

type preset struct {
	maxDepth int
	maxPages int
	include  []string
	exclude  []string
	detail   []string
	listing  []string
	actions  []fetch.Action
	wait     time.Duration
}

var commonExclude = []string{
	`\.(pdf|jpe?g|png|gif|zip|ics)$`,
	`/(login|prihlaseni|anmelden|cart|kosik|warenkorb|account|ucet)(/|$)`,
}

// GenericActions dismiss consent dialogs, advance month or page listings,
// expand "load more" sections and scroll. Matchers cover English, Czech
// and German.
var GenericActions = []fetch.Action{
	{Type: fetch.ActionClick, Text: []string{"accept", "agree", "souhlasím", "přijmout", "akzeptieren", "zustimmen"}},
	{Type: fetch.ActionWait, Milliseconds: 1000},
	{Type: fetch.ActionClick, Text: []string{"next month", "další měsíc", "nächster monat"}, Repeat: 2},
	{Type: fetch.ActionClick, Text: []string{"next", "další", "weiter", "nächste"}, Repeat: 2},
	{Type: fetch.ActionClick, Text: []string{"load more", "show more", "načíst další", "zobrazit více", "mehr laden", "mehr anzeigen"}, Repeat: 3},
	{Type: fetch.ActionScroll, Repeat: 3},
}

var presets = map[string]preset{
	PresetGeneric: {
		maxDepth: 2,
		maxPages: 20,
		exclude:  commonExclude,
		detail:   []string{`/(events?|akce|udalost|veranstaltung(en)?|program)/[^/?#]+`, `/detail`},
		listing:  []string{`/(events?|akce|program|kalendar|calendar|veranstaltungen)/?$`, `/page/\d+`, `[?&]page=\d+`},
		actions:  GenericActions,
		wait:     2 * time.Second,
	},
	PresetTicketing: {
		maxDepth: 3,
		maxPages: 50,
		exclude:  commonExclude,
		detail:   []string{`/(event|tickets?|vstupenky|koncert|tickets?/[^/]+)/[^/?#]+`},
		listing:  []string{`/(search|hledat|suche|category|kategorie|venue|misto)`, `[?&]page=\d+`},
		actions:  GenericActions,
		wait:     3 * time.Second,
	},
	PresetListing: {
		maxDepth: 1,
		maxPages: 10,
		exclude:  commonExclude,
		listing:  []string{`/page/\d+`, `[?&]page=\d+`},
		wait:     time.Second,
	},
}

// BuildCrawlConfig merges the source's crawl override onto its preset.
func BuildCrawlConfig(def *Definition) CrawlConfig {
	p, ok := presets[def.Preset]
	if !ok {
		p = presets[PresetGeneric]
	}
	o := def.Crawl

	cfg := CrawlConfig{
		StartURLs: slices.Clone(o.StartURLs),
		MaxDepth:  pick(o.MaxDepth, p.maxDepth),
		MaxPages:  pick(o.MaxPages, p.maxPages),
		Include:   slices.Clone(o.IncludePaths),
		Exclude:   append(slices.Clone(p.exclude), o.ExcludePaths...),
		Actions:   slices.Clone(p.actions),
		WaitFor:   p.wait,
		Timeout:   time.Duration(def.Settings.Timeout) * time.Second,
		RateClass: ratelimit.ParseClass(def.RateClass),
		detail:    compileAll(append(slices.Clone(o.DetailPatterns), p.detail...)),
		listing:   compileAll(append(slices.Clone(o.ListingPatterns), p.listing...)),
	}
	if len(cfg.StartURLs) == 0 {
		cfg.StartURLs = []string{def.URL}
	}
	if len(cfg.Include) == 0 {
		cfg.Include = slices.Clone(p.include)
	}
	if len(o.Actions) > 0 {
		cfg.Actions = slices.Clone(o.Actions)
	}
	if o.WaitMs > 0 {
		cfg.WaitFor = time.Duration(o.WaitMs) * time.Millisecond
	}
	return cfg
}

// FallbackCrawlConfig is the shallow crawl used after single-page fetches
// found nothing.
func FallbackCrawlConfig(def *Definition) CrawlConfig {
	cfg := BuildCrawlConfig(&Definition{
		URL:       def.URL,
		Preset:    PresetGeneric,
		RateClass: def.RateClass,
		Settings:  def.Settings,
	})
	cfg.MaxDepth = 1
	cfg.MaxPages = 5
	cfg.Actions = slices.Clone(GenericActions)
	return cfg
}

// Request returns the fetch request for one start URL.
func (c CrawlConfig) Request(startURL string) fetch.CrawlRequest {
	return fetch.CrawlRequest{
		StartURL:  startURL,
		MaxDepth:  c.MaxDepth,
		MaxPages:  c.MaxPages,
		Include:   slices.Clone(c.Include),
		Exclude:   slices.Clone(c.Exclude),
		Actions:   slices.Clone(c.Actions),
		WaitFor:   c.WaitFor,
		Timeout:   c.Timeout,
		RateClass: c.RateClass,
	}
}

func (c CrawlConfig) IsDetail(url string) bool {
	return matchAny(c.detail, url)
}

func (c CrawlConfig) IsListing(url string) bool {
	return matchAny(c.listing, url)
}

// Rank orders a page for processing: detail pages first, plain pages next,
// listing pages last.
func (c CrawlConfig) Rank(url string) int {
	switch {
	case c.IsDetail(url):
		return 0
	case c.IsListing(url):
		return 2
	default:
		return 1
	}
}

func pick(override, fallback int) int {
	if override > 0 {
		return override
	}
	return fallback
}

// Patterns are validated when the definition is loaded.
func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

package source

import "github.com/lysyi3m/event-comb/app/fetch"

const (
	StrategySinglePage = "single_page"
	StrategyCrawl      = "crawl"
	StrategyFeed       = "feed"
)

const (
	PresetGeneric   = "generic"
	PresetTicketing = "ticketing"
	PresetListing   = "listing"
)

type Definition struct {
	Name      string         // Derived from filename (without .yml extension)
	URL       string         `yaml:"url"`
	Strategy  string         `yaml:"strategy"`
	Enabled   bool           `yaml:"enabled"`
	RateClass string         `yaml:"rate_class"` // default, gentle
	Preset    string         `yaml:"preset"`
	Crawl     CrawlOverride  `yaml:"crawl"`
	Options   map[string]any `yaml:"options"`
	Settings  Settings       `yaml:"settings"`
	Filters   []Filter       `yaml:"filters"`
}

type Settings struct {
	RefreshInterval int    `yaml:"refresh_interval"` // seconds
	Timeout         int    `yaml:"timeout"`          // seconds, per fetch
	City            string `yaml:"city"`             // fills events without a city
	Category        string `yaml:"category"`         // category hint for every event
}

// CrawlOverride holds per-source values merged onto the preset. Zero
// values keep the preset's value.
type CrawlOverride struct {
	StartURLs       []string       `yaml:"start_urls"`
	MaxDepth        int            `yaml:"max_depth"`
	MaxPages        int            `yaml:"max_pages"`
	IncludePaths    []string       `yaml:"include_paths"`
	ExcludePaths    []string       `yaml:"exclude_paths"`
	DetailPatterns  []string       `yaml:"detail_patterns"`
	ListingPatterns []string       `yaml:"listing_patterns"`
	Actions         []fetch.Action `yaml:"actions"`
	WaitMs          int            `yaml:"wait_ms"`
}

type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

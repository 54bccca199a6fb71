package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/events.db" description:"SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	VenuesFile string `long:"venues-file" env:"VENUES_FILE" description:"YAML file with venue capacities (optional)"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for source runs"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetch service
	FirecrawlAPIKey string `long:"firecrawl-api-key" env:"FIRECRAWL_API_KEY" description:"Fetch service API key; direct HTTP fetching is used when empty"`
	FirecrawlAPIURL string `long:"firecrawl-api-url" env:"FIRECRAWL_API_URL" default:"https://api.firecrawl.dev" description:"Fetch service base URL"`

	// Completion service
	LLMAPIKey  string `long:"llm-api-key" env:"LLM_API_KEY" description:"Completion service API key"`
	LLMBaseURL string `long:"llm-base-url" env:"LLM_BASE_URL" default:"https://api.openai.com/v1" description:"Completion service base URL"`
	LLMModel   string `long:"llm-model" env:"LLM_MODEL" default:"gpt-4o-mini" description:"Completion model name"`

	// Embedding service
	EmbeddingAPIKey  string `long:"embedding-api-key" env:"EMBEDDING_API_KEY" description:"Embedding service API key (defaults to the completion key)"`
	EmbeddingBaseURL string `long:"embedding-base-url" env:"EMBEDDING_BASE_URL" description:"Embedding service base URL (defaults to the completion URL)"`
	EmbeddingModel   string `long:"embedding-model" env:"EMBEDDING_MODEL" default:"text-embedding-3-small" description:"Embedding model name"`

	// Rate limiting
	FetchIntervalMs       int `long:"fetch-interval-ms" env:"FETCH_INTERVAL_MS" default:"1000" description:"Minimum spacing between fetch requests"`
	GentleFetchIntervalMs int `long:"gentle-fetch-interval-ms" env:"GENTLE_FETCH_INTERVAL_MS" default:"5000" description:"Minimum spacing between fetch requests for gentle sources"`
	CompletionIntervalMs  int `long:"completion-interval-ms" env:"COMPLETION_INTERVAL_MS" default:"500" description:"Minimum spacing between completion requests"`
	MaxRequestsPerRun     int `long:"max-requests-per-run" env:"MAX_REQUESTS_PER_RUN" default:"200" description:"Hard cap on external requests in one run"`

	// Deduplication
	DedupThreshold float64 `long:"dedup-threshold" env:"DEDUP_THRESHOLD" default:"0.85" description:"Cosine similarity at which events count as duplicates"`
	DedupTopK      int     `long:"dedup-top-k" env:"DEDUP_TOP_K" default:"5" description:"Nearest neighbours examined per event"`

	// Extraction
	ChunkSize    int `long:"chunk-size" env:"CHUNK_SIZE" default:"12000" description:"Characters per completion chunk"`
	ChunkOverlap int `long:"chunk-overlap" env:"CHUNK_OVERLAP" default:"500" description:"Characters shared by consecutive chunks"`
	MinEvents    int `long:"min-events" env:"MIN_EVENTS" default:"50" description:"Stop chunk processing once this many events are found"`

	// Cache
	RedisAddr  string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the extraction cache (in-memory when empty)"`
	CacheTTLMs int    `long:"cache-ttl" env:"CACHE_TTL" default:"86400000" description:"Extraction cache TTL in milliseconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Event Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Prague)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		SourcesDir:          raw.SourcesDir,
		VenuesFile:          raw.VenuesFile,
		Port:                raw.Port,
		WorkerCount:         raw.WorkerCount,
		SchedulerInterval:   raw.SchedulerInterval,
		APIAccessKey:        raw.APIAccessKey,
		FirecrawlAPIKey:     raw.FirecrawlAPIKey,
		FirecrawlAPIURL:     raw.FirecrawlAPIURL,
		LLMAPIKey:           raw.LLMAPIKey,
		LLMBaseURL:          raw.LLMBaseURL,
		LLMModel:            raw.LLMModel,
		EmbeddingAPIKey:     cmp.Or(raw.EmbeddingAPIKey, raw.LLMAPIKey),
		EmbeddingBaseURL:    cmp.Or(raw.EmbeddingBaseURL, raw.LLMBaseURL),
		EmbeddingModel:      raw.EmbeddingModel,
		FetchInterval:       time.Duration(raw.FetchIntervalMs) * time.Millisecond,
		GentleFetchInterval: time.Duration(raw.GentleFetchIntervalMs) * time.Millisecond,
		CompletionInterval:  time.Duration(raw.CompletionIntervalMs) * time.Millisecond,
		MaxRequestsPerRun:   raw.MaxRequestsPerRun,
		DedupThreshold:      raw.DedupThreshold,
		DedupTopK:           raw.DedupTopK,
		ChunkSize:           raw.ChunkSize,
		ChunkOverlap:        raw.ChunkOverlap,
		MinEvents:           raw.MinEvents,
		RedisAddr:           raw.RedisAddr,
		CacheTTL:            time.Duration(raw.CacheTTLMs) * time.Millisecond,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func validate(c *Cfg) error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0, 1], got %v", c.DedupThreshold)
	}
	if c.MaxRequestsPerRun <= 0 {
		return fmt.Errorf("max requests per run must be positive, got %d", c.MaxRequestsPerRun)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	return nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}

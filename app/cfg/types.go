package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	SourcesDir string
	VenuesFile string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Fetch service
	FirecrawlAPIKey string
	FirecrawlAPIURL string

	// Completion service
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	// Embedding service
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	// Rate limiting
	FetchInterval       time.Duration
	GentleFetchInterval time.Duration
	CompletionInterval  time.Duration
	MaxRequestsPerRun   int

	// Deduplication
	DedupThreshold float64
	DedupTopK      int

	// Extraction
	ChunkSize    int
	ChunkOverlap int
	MinEvents    int

	// Cache
	RedisAddr string
	CacheTTL  time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

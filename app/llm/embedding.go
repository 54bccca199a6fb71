package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultEmbeddingTimeout = 15 * time.Second
	defaultEmbeddingModel   = "text-embedding-3-small"
)

// EmbeddingConfig captures the settings of the embedding service.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// EmbeddingClient wraps an OpenAI-compatible /embeddings API.
type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient *http.Client
	api        *openai.Client
	retry      retrier
}

// EmbeddingOption customizes the embedding client.
type EmbeddingOption func(*EmbeddingClient)

// WithEmbeddingHTTPClient overrides the default HTTP client.
func WithEmbeddingHTTPClient(client *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithEmbeddingRetry overrides attempts and backoff.
func WithEmbeddingRetry(attempts int, baseDelay, maxDelay time.Duration) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.retry.maxAttempts = attempts
		c.retry.baseDelay = baseDelay
		c.retry.maxDelay = maxDelay
	}
}

func NewEmbeddingClient(cfg EmbeddingConfig, opts ...EmbeddingOption) *EmbeddingClient {
	timeout := defaultEmbeddingTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	c := &EmbeddingClient{
		cfg: EmbeddingConfig{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Model:   strings.TrimSpace(cfg.Model),
			Timeout: timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry:      defaultRetrier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.Model == "" {
		c.cfg.Model = defaultEmbeddingModel
	}
	c.api = newAPI(c.cfg.APIKey, c.cfg.BaseURL, c.httpClient)
	return c
}

// Embed returns the embedding vector of text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("llm embed: input required")
	}
	if c.cfg.APIKey == "" {
		return nil, errors.New("llm embed: api key required")
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.Model),
	}

	var vector []float32
	err := c.retry.do(ctx, "llm embed", func(ctx context.Context) error {
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return statusError(ctx, err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errors.New("empty embedding")
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultHTTPTimeout = 45 * time.Second
	defaultBaseURL     = "https://api.openai.com/v1"
)

// Config captures the runtime settings required to talk to the completion
// service.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// MaxTokens overrides the model ceiling when positive and smaller.
	MaxTokens int
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        Config
	model      Model
	httpClient *http.Client
	api        *openai.Client
	retry      retrier
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.maxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.baseDelay = baseDelay
		c.retry.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.sleeper = sleeper
	}
}

// NewClient constructs a completion client. An unrecognised model name is
// replaced by FallbackModel.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	model, ok := ResolveModel(cfg.Model)
	if !ok {
		slog.Warn("Unknown completion model, using fallback", "model", cfg.Model, "fallback", model.Name)
	}

	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Model:   model.Name,
			Timeout: timeout,
		},
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		retry:      defaultRetrier(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	client.api = newAPI(client.cfg.APIKey, client.cfg.BaseURL, client.httpClient)
	return client
}

// newAPI builds the SDK client over a copy of httpClient whose transport
// records Retry-After hints for the retrier.
func newAPI(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	hc := *httpClient
	hc.Transport = &retryAfterTransport{next: httpClient.Transport}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")
	config.HTTPClient = &hc
	return openai.NewClientWithConfig(config)
}

// Model returns the resolved model.
func (c *Client) Model() Model {
	return c.model
}

// Complete sends one JSON-mode chat completion and returns the raw model
// text. The text is not guaranteed to be valid JSON.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	system := strings.TrimSpace(req.System)
	prompt := strings.TrimSpace(req.Prompt)
	if system == "" {
		return "", errors.New("llm complete: system prompt required")
	}
	if prompt == "" {
		return "", errors.New("llm complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("llm complete: api key required")
	}

	maxTokens := c.model.MaxOutputTokens
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	payload := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var content string
	err := c.retry.do(ctx, "llm complete", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, payload)
		if err != nil {
			return statusError(ctx, err)
		}
		text, finishReason := extractContent(resp)
		if text == "" {
			return &emptyContentError{Op: "llm complete", FinishReason: finishReason}
		}
		if finishReason == string(openai.FinishReasonLength) {
			slog.Debug("Completion hit output-token ceiling", "model", c.cfg.Model, "max_tokens", maxTokens)
		}
		content = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func extractContent(resp openai.ChatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range resp.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(string(choice.FinishReason))
		}
		if trimmed := strings.TrimSpace(choice.Message.Content); trimmed != "" {
			return trimmed, finishReason
		}
	}
	return "", finishReason
}

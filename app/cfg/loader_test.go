package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "llm-key")
	t.Setenv("TZ", "UTC")

	cfg, err := load([]string{})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DBPath != "./data/events.db" {
		t.Errorf("Expected default DB path, got '%s'", cfg.DBPath)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("Expected default model 'gpt-4o-mini', got '%s'", cfg.LLMModel)
	}
	if cfg.FetchInterval != time.Second {
		t.Errorf("Expected fetch interval 1s, got %v", cfg.FetchInterval)
	}
	if cfg.GentleFetchInterval != 5*time.Second {
		t.Errorf("Expected gentle fetch interval 5s, got %v", cfg.GentleFetchInterval)
	}
	if cfg.DedupThreshold != 0.85 {
		t.Errorf("Expected dedup threshold 0.85, got %v", cfg.DedupThreshold)
	}
	if cfg.DedupTopK != 5 {
		t.Errorf("Expected dedup top-k 5, got %d", cfg.DedupTopK)
	}
	if cfg.EmbeddingAPIKey != "llm-key" {
		t.Errorf("Expected embedding key to fall back to completion key, got '%s'", cfg.EmbeddingAPIKey)
	}
	if cfg.EmbeddingBaseURL != cfg.LLMBaseURL {
		t.Errorf("Expected embedding URL to fall back to '%s', got '%s'", cfg.LLMBaseURL, cfg.EmbeddingBaseURL)
	}
	if Get() != cfg {
		t.Error("Get should return the loaded configuration")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("MAX_REQUESTS_PER_RUN", "25")

	cfg, err := load([]string{"--llm-model", "gpt-4.1", "--gentle-fetch-interval-ms", "8000"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.LLMModel != "gpt-4.1" {
		t.Errorf("Expected model override, got '%s'", cfg.LLMModel)
	}
	if cfg.GentleFetchInterval != 8*time.Second {
		t.Errorf("Expected gentle interval 8s, got %v", cfg.GentleFetchInterval)
	}
	if cfg.MaxRequestsPerRun != 25 {
		t.Errorf("Expected request ceiling 25 from env, got %d", cfg.MaxRequestsPerRun)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("TZ", "UTC")

	tests := map[string][]string{
		"overlap too large": {"--chunk-size", "100", "--chunk-overlap", "100"},
		"threshold":         {"--dedup-threshold", "1.5"},
		"request ceiling":   {"--max-requests-per-run", "0"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := load(args); err == nil {
				t.Errorf("Expected error for args %v", args)
			}
		})
	}
}

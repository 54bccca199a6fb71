// Package llm provides OpenAI-compatible chat completion and embedding
// clients used by the extraction and deduplication stages.
//
// # Models
//
// A configured model name selects the output-token ceiling. Unknown names
// resolve to the cheapest known-good model instead of failing the run.
//
// # Retry Behaviour
//
// Both clients are built on go-openai with a configurable base URL. They
// retry on HTTP 408/429/5xx errors and network timeouts with exponential
// backoff (base 1s, max 10s, up to 3 attempts by default) and honour
// Retry-After. Context cancellation aborts retries immediately.
//
// # Entry Points
//
// NewClient: construct the completion client from Config.
// Client.Complete: send system/user prompts, receive the raw model text.
// NewEmbeddingClient: construct the embedding client.
// EmbeddingClient.Embed: return the vector for one input text.
package llm

// Package cache provides the optional extraction-result cache. Nothing
// depends on a hit for correctness.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Health reports backend state for the health endpoint.
	Health(ctx context.Context) map[string]any
}

package domain

import (
	"context"
	"time"
)

// Cache stores run summaries so the API can serve past runs without
// re-scoring. Implementations: local LRU or Redis.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetSummary retrieves a cached run summary.
	GetSummary(ctx context.Context, runID string) (*RunSummary, error)

	// SetSummary caches a run summary under its run ID.
	SetSummary(ctx context.Context, runID string, summary *RunSummary, ttl time.Duration) error

	// Ping checks cache health.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// Local LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LastRunID is the well-known pseudo run ID under which the most recent
// summary is also cached.
const LastRunID = "last"

// SummaryTTL is how long run summaries stay cached.
const SummaryTTL = 24 * time.Hour

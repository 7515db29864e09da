package domain

import (
	"context"
	"time"
)

// RecordStore is the remote keyed JSON document store holding credit-request
// records. The engine consumes exactly two operations; everything else about
// the store is someone else's problem.
type RecordStore interface {
	// GetAll returns every record under path, keyed by record ID.
	// A missing path yields an empty map, not an error.
	GetAll(ctx context.Context, path string) (map[string]any, error)

	// Update applies a multi-location patch under path. Patch keys may be
	// slash-delimited to address nested leaf fields without touching
	// sibling fields of the same record.
	Update(ctx context.Context, path string, patch map[string]any) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// StoreConfig holds configuration for record store initialization.
type StoreConfig struct {
	// Driver is "rtdb", "sqlite" or "postgres".
	Driver string

	// Firebase RTDB REST settings
	RTDBBaseURL   string
	RTDBAuthToken string
	RTDBTimeout   time.Duration

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

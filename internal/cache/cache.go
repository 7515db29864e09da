// Package cache provides run-summary caching: a local LRU for single-node
// deployments and Redis when summaries must survive restarts or be shared.
package cache

import (
	"fmt"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

// New creates a cache based on configuration.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

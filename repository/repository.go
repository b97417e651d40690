package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/repository/redis_repository"
)

// SearchCacheRepository stores search results keyed by provider and query.
type SearchCacheRepository interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, urls []string, ttl time.Duration) error
}

// NewRedisClient connects to the configured Redis, or returns nil when Redis is disabled.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return redis_repository.Conn(ctx, cfg)
}

// NewSearchCacheRepository wraps client; a nil client yields a nil repository.
func NewSearchCacheRepository(client *redis.Client) SearchCacheRepository {
	if client == nil {
		return nil
	}
	return redis_repository.NewRedisSearchCache(client)
}

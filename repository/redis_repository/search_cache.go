package redis_repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchKeyPrefix = "researcher:search:"

// redisSearchCache stores search result URLs as JSON arrays.
type redisSearchCache struct {
	client *redis.Client
}

func NewRedisSearchCache(client *redis.Client) *redisSearchCache {
	return &redisSearchCache{client: client}
}

func (r *redisSearchCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	val, err := r.client.Get(ctx, searchKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var urls []string
	if err := json.Unmarshal([]byte(val), &urls); err != nil {
		return nil, false, err
	}
	return urls, true, nil
}

// Set stores urls under key. A zero ttl keeps the entry until evicted.
func (r *redisSearchCache) Set(ctx context.Context, key string, urls []string, ttl time.Duration) error {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, searchKeyPrefix+key, data, ttl).Err()
}

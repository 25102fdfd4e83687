package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "clinicsched:location-provider"
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) key(locationID string) string {
	return c.prefix + ":" + locationID
}

func (c *RedisCache) Get(ctx context.Context, locationID string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(locationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, locationID, providerID string) error {
	return c.rdb.Set(ctx, c.key(locationID), providerID, c.ttl).Err()
}

// ReadyCheck pings redis for /readyz.
func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

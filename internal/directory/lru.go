package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is the in-process Cache used when redis is not configured.
type LRUCache struct {
	cache *expirable.LRU[string, string]
}

func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *LRUCache) Get(ctx context.Context, locationID string) (string, bool, error) {
	v, ok := c.cache.Get(locationID)
	return v, ok, nil
}

func (c *LRUCache) Set(ctx context.Context, locationID, providerID string) error {
	c.cache.Add(locationID, providerID)
	return nil
}

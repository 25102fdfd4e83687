package directory

import (
	"context"
	"log/slog"
)

// Cache stores positive location lookups. Get reports a miss with ok=false;
// only infrastructure failures are returned as errors.
type Cache interface {
	Get(ctx context.Context, locationID string) (providerID string, ok bool, err error)
	Set(ctx context.Context, locationID, providerID string) error
}

// Cached fronts a Directory with a Cache. Cache failures degrade to the
// underlying directory. Misses from the directory are never cached, so a
// newly assigned location resolves immediately.
type Cached struct {
	next   Directory
	cache  Cache
	logger *slog.Logger
}

func NewCached(next Directory, cache Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, logger: logger.With("component", "directory_cache")}
}

func (c *Cached) FindProviderForLocation(ctx context.Context, locationID string) (string, error) {
	prov, ok, err := c.cache.Get(ctx, locationID)
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", "location_id", locationID, "err", err)
	}
	if ok {
		return prov, nil
	}

	prov, err = c.next.FindProviderForLocation(ctx, locationID)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, locationID, prov); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "location_id", locationID, "err", err)
	}
	return prov, nil
}

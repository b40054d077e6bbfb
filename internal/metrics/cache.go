package metrics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/playerpulse/internal/pkg/logger"
)

// Cache is a Redis-backed series cache. Keys cover the full filter tuple and
// the store ID, so a new upload naturally invalidates every cached series.
// All failures are soft: a cache problem degrades to recomputation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a series cache with the given TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached series for the exact (store, metric, filter, grain)
// tuple, or false on miss.
func (c *Cache) Get(ctx context.Context, storeID uuid.UUID, metric string, f Filter, grain Grain) (Series, bool) {
	if c == nil || c.client == nil {
		return Series{}, false
	}
	key := f.CacheKey(storeID, metric, grain)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return Series{}, false
	}
	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Warn("metric cache entry corrupt, evicting", "key", key)
		c.client.Del(ctx, key)
		return Series{}, false
	}
	return s, true
}

// Put stores a computed series.
func (c *Cache) Put(ctx context.Context, storeID uuid.UUID, s Series) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	key := s.Filter.CacheKey(storeID, s.Metric, s.Grain)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("metric cache write failed", "key", key, "error", err)
	}
}

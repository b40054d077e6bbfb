package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/playerpulse/internal/eventstore"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewCache(client, time.Minute), mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	store := eventstore.New(nil)

	f := Filter{Start: dayOf(1), End: dayOf(31)}
	s := Series{
		Metric: "active_users",
		Grain:  GrainDay,
		Filter: f,
		Points: []Point{{Date: dayOf(1), Value: Float(42)}, {Date: dayOf(2), Value: nil}},
	}

	_, ok := c.Get(ctx, store.ID(), "active_users", f, GrainDay)
	assert.False(t, ok, "expected miss before Put")

	c.Put(ctx, store.ID(), s)

	got, ok := c.Get(ctx, store.ID(), "active_users", f, GrainDay)
	require.True(t, ok)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 42.0, *got.Points[0].Value)
	assert.Nil(t, got.Points[1].Value, "null point must round-trip as null")
}

func TestCacheMissOnDifferentFilter(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	store := eventstore.New(nil)

	f := Filter{Start: dayOf(1), End: dayOf(31)}
	c.Put(ctx, store.ID(), Series{Metric: "dau", Grain: GrainDay, Filter: f})

	// Any change to the filter tuple is a different key.
	_, ok := c.Get(ctx, store.ID(), "dau", Filter{Start: dayOf(1), End: dayOf(31), Device: "ios"}, GrainDay)
	assert.False(t, ok)
	_, ok = c.Get(ctx, store.ID(), "dau", f, GrainWeek)
	assert.False(t, ok)

	// A different store build is a different key too.
	other := eventstore.New(nil)
	_, ok = c.Get(ctx, other.ID(), "dau", f, GrainDay)
	assert.False(t, ok)
}

func TestCacheCorruptEntryEvicted(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()
	store := eventstore.New(nil)
	f := Filter{}

	key := f.CacheKey(store.ID(), "dau", GrainDay)
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := c.Get(ctx, store.ID(), "dau", f, GrainDay)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key), "corrupt entry should be evicted")
}

func TestCacheNilIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	store := eventstore.New(nil)

	_, ok := c.Get(ctx, store.ID(), "dau", Filter{}, GrainDay)
	assert.False(t, ok)
	c.Put(ctx, store.ID(), Series{Metric: "dau"}) // must not panic
}

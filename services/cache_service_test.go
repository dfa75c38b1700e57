package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliptyx/scenario-dedup/models"
)

func TestCacheServiceGetSet(t *testing.T) {
	cache := NewCacheServiceWithConfig(time.Minute, 10, 0)
	defer cache.Stop()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("key", "value")
	value, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", value)
	assert.Equal(t, 1, cache.Size())

	cache.Delete("key")
	_, ok = cache.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Size())
}

func TestCacheServiceExpiry(t *testing.T) {
	cache := NewCacheServiceWithConfig(time.Minute, 10, 0)
	defer cache.Stop()

	cache.SetWithTTL("short", 1, 10*time.Millisecond)
	cache.Set("long", 2)

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get("short")
	assert.False(t, ok)
	_, ok = cache.Get("long")
	assert.True(t, ok)
}

func TestCacheServiceCleanupSweepsExpiredEntries(t *testing.T) {
	cache := NewCacheServiceWithConfig(5*time.Millisecond, 10, 5*time.Millisecond)
	defer cache.Stop()

	cache.Set("key", "value")

	assert.Eventually(t, func() bool {
		return cache.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCacheServiceEvictsEntryClosestToExpiry(t *testing.T) {
	cache := NewCacheServiceWithConfig(time.Minute, 2, 0)
	defer cache.Stop()

	cache.SetWithTTL("soon", 1, time.Second)
	cache.SetWithTTL("later", 2, time.Hour)
	cache.Set("new", 3)

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("soon")
	assert.False(t, ok)
	_, ok = cache.Get("later")
	assert.True(t, ok)

	// Overwriting an existing key never evicts
	cache.Set("later", 4)
	assert.Equal(t, 2, cache.Size())
}

func TestMemorySampleCache(t *testing.T) {
	cache := NewMemorySampleCache(time.Minute)
	defer cache.Close()
	ctx := context.Background()

	_, ok := cache.GetSample(ctx)
	assert.False(t, ok)

	sample := []models.StoredScenario{hashedScenario("Bitcoin reaches 100k", "", 1)}
	cache.SetSample(ctx, sample)

	// Mutating the caller's slice must not leak into the cache
	*sample[0].ContentHash = "tampered"
	sample[0].Title = "tampered"

	cached, ok := cache.GetSample(ctx)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "Bitcoin reaches 100k", cached[0].Title)
	assert.Equal(t, "49040bdf", *cached[0].ContentHash)

	cache.Invalidate(ctx)
	_, ok = cache.GetSample(ctx)
	assert.False(t, ok)
}

func TestMemorySampleCacheExpires(t *testing.T) {
	cache := NewMemorySampleCache(10 * time.Millisecond)
	defer cache.Close()
	ctx := context.Background()

	cache.SetSample(ctx, []models.StoredScenario{storedScenario("Bitcoin", "", 1)})
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.GetSample(ctx)
	assert.False(t, ok)
}

package services

import (
	"context"
	"sync"
	"time"

	"github.com/apocaliptyx/scenario-dedup/models"
)

// suggestionSampleKey is the cache key of the bounded suggestion sample
const suggestionSampleKey = "suggestion-sample"

// SampleCache holds the bounded scenario sample used by the suggestion feed.
// Misses and backend failures both report ok=false so callers fall back to the store.
type SampleCache interface {
	GetSample(ctx context.Context) ([]models.StoredScenario, bool)
	SetSample(ctx context.Context, sample []models.StoredScenario)
	Invalidate(ctx context.Context)
}

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().After(ce.ExpiresAt)
}

// CacheService is a thread-safe in-memory TTL cache with bounded size.
// Expired entries are swept periodically until Stop is called.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewCacheServiceWithConfig creates a cache service with custom configuration
func NewCacheServiceWithConfig(defaultTTL time.Duration, maxSize int, cleanupInterval time.Duration) *CacheService {
	cs := &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		stop:       make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go cs.cleanupExpired(cleanupInterval)
	}

	return cs
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	entry, exists := cs.cache[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Data, true
}

// Set stores a value in cache with default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, exists := cs.cache[key]; !exists && len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// evictOldest removes the entry closest to expiry
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// Stop ends the cleanup goroutine
func (cs *CacheService) Stop() {
	cs.stopOnce.Do(func() { close(cs.stop) })
}

func (cs *CacheService) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cs.stop:
			return
		case <-ticker.C:
			cs.mutex.Lock()
			for key, entry := range cs.cache {
				if entry.IsExpired() {
					delete(cs.cache, key)
				}
			}
			cs.mutex.Unlock()
		}
	}
}

// MemorySampleCache keeps the suggestion sample in a CacheService
type MemorySampleCache struct {
	cache *CacheService
}

// NewMemorySampleCache creates an in-process sample cache with the given TTL
func NewMemorySampleCache(ttl time.Duration) *MemorySampleCache {
	return &MemorySampleCache{
		cache: NewCacheServiceWithConfig(ttl, 1, time.Minute),
	}
}

func (c *MemorySampleCache) GetSample(ctx context.Context) ([]models.StoredScenario, bool) {
	value, ok := c.cache.Get(suggestionSampleKey)
	if !ok {
		return nil, false
	}
	sample, ok := value.([]models.StoredScenario)
	if !ok {
		return nil, false
	}
	return cloneSample(sample), true
}

func (c *MemorySampleCache) SetSample(ctx context.Context, sample []models.StoredScenario) {
	c.cache.Set(suggestionSampleKey, cloneSample(sample))
}

func (c *MemorySampleCache) Invalidate(ctx context.Context) {
	c.cache.Delete(suggestionSampleKey)
}

// Close stops the underlying cache's cleanup goroutine
func (c *MemorySampleCache) Close() error {
	c.cache.Stop()
	return nil
}

func cloneSample(sample []models.StoredScenario) []models.StoredScenario {
	cloned := make([]models.StoredScenario, len(sample))
	for i, scenario := range sample {
		cloned[i] = cloneScenario(scenario)
	}
	return cloned
}

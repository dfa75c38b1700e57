package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/models"
	"github.com/apocaliptyx/scenario-dedup/shared"
)

// RedisSampleCache shares the suggestion sample between service replicas.
// Redis errors are logged and treated as cache misses.
type RedisSampleCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logrus.Entry
}

// NewRedisSampleCache connects to Redis and verifies connectivity
func NewRedisSampleCache(config shared.CacheConfig) (*RedisSampleCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
	}

	return NewRedisSampleCacheWithClient(client, config.RedisKey, config.SuggestionTTL), nil
}

// NewRedisSampleCacheWithClient wraps an existing client
func NewRedisSampleCacheWithClient(client *redis.Client, key string, ttl time.Duration) *RedisSampleCache {
	return &RedisSampleCache{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logrus.WithField("component", "RedisSampleCache"),
	}
}

func (c *RedisSampleCache) GetSample(ctx context.Context) ([]models.StoredScenario, bool) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Failed to read suggestion sample from redis")
		}
		return nil, false
	}

	var sample []models.StoredScenario
	if err := json.Unmarshal(data, &sample); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable suggestion sample")
		return nil, false
	}
	return sample, true
}

func (c *RedisSampleCache) SetSample(ctx context.Context, sample []models.StoredScenario) {
	data, err := json.Marshal(sample)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode suggestion sample")
		return
	}

	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to write suggestion sample to redis")
	}
}

func (c *RedisSampleCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate suggestion sample in redis")
	}
}

// Close closes the redis client
func (c *RedisSampleCache) Close() error {
	return c.client.Close()
}

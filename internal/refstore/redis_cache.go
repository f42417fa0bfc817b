package refstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"folio/api/internal/reference"
)

const defaultCacheTTL = 24 * time.Hour

// RedisCache serves metadata from Redis and falls back to the backing
// source on a miss. Misses are not cached.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	backing MetadataSource
	logger  *slog.Logger
}

// NewRedisCache connects to redisURL and caches lookups against backing.
func NewRedisCache(redisURL string, ttl time.Duration, backing MetadataSource, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl, backing, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, backing MetadataSource, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client:  client,
		prefix:  "folio:ref:",
		ttl:     ttl,
		backing: backing,
		logger:  logger,
	}
}

func (c *RedisCache) key(storageID string) string {
	return c.prefix + storageID
}

// GetMetadata returns cached metadata for key, filling the cache from the
// backing source on a miss. A Redis outage degrades to the backing source.
func (c *RedisCache) GetMetadata(ctx context.Context, key string) (reference.Metadata, error) {
	storageID, err := StorageIDForKey(key)
	if err != nil {
		return reference.Metadata{}, err
	}

	cached, err := c.client.Get(ctx, c.key(storageID)).Result()
	switch {
	case err == nil:
		var md reference.Metadata
		if jsonErr := json.Unmarshal([]byte(cached), &md); jsonErr == nil {
			return md, nil
		}
	case !errors.Is(err, redis.Nil):
		if ctx.Err() != nil {
			return reference.Metadata{}, ctx.Err()
		}
	}

	md, err := c.backing.GetMetadata(ctx, key)
	if err != nil {
		return reference.Metadata{}, err
	}
	if err := c.Set(ctx, storageID, md); err != nil {
		c.logger.Warn("metadata cache fill failed", "storage_id", storageID, "error", err)
	}
	return md, nil
}

// Set stores metadata under a storage id.
func (c *RedisCache) Set(ctx context.Context, storageID string, md reference.Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := c.client.Set(ctx, c.key(storageID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache metadata %s: %w", storageID, err)
	}
	return nil
}

// Invalidate drops the cached entry for a storage id.
func (c *RedisCache) Invalidate(ctx context.Context, storageID string) error {
	if err := c.client.Del(ctx, c.key(storageID)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", storageID, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

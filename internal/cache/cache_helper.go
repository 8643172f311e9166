package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache key not found")
)

// CacheHelper provides common caching operations for repositories.
type CacheHelper struct {
	client *redis.Client
	prefix string
}

// NewCacheHelper creates a new cache helper instance.
func NewCacheHelper(client *redis.Client, prefix string) *CacheHelper {
	return &CacheHelper{
		client: client,
		prefix: prefix,
	}
}

// CacheConfig defines cache configuration for different data types.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

var (
	// Short-lived cache for hot attempt reads. Attempt rows mutate constantly
	// while a session is live, so the TTL stays small and every mutation
	// invalidates.
	FastCacheConfig = CacheConfig{
		TTL:    30 * time.Second,
		Prefix: "fast:",
	}

	// Quiz configuration changes rarely.
	QuizCacheConfig = CacheConfig{
		TTL:    5 * time.Minute,
		Prefix: "quiz:",
	}
)

// GetCacheKey generates a cache key with prefix.
func (c *CacheHelper) GetCacheKey(key string) string {
	return fmt.Sprintf("%s%s", c.prefix, key)
}

// Get retrieves and unmarshals data from cache.
func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.GetCacheKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}

	return nil
}

// Set marshals and stores data in cache.
func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // graceful degradation when cache not available
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return c.client.Set(ctx, c.GetCacheKey(key), data, ttl).Err()
}

// Delete removes keys from cache.
func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}

	cacheKeys := make([]string, len(keys))
	for i, key := range keys {
		cacheKeys[i] = c.GetCacheKey(key)
	}

	return c.client.Del(ctx, cacheKeys...).Err()
}

// CacheOrExecute returns the cached value for key, or executes fn, caches its
// result and unmarshals it into dest. Cache failures fall through to fn.
func (c *CacheHelper) CacheOrExecute(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	_ = c.Set(ctx, key, value, ttl)

	// round-trip through JSON so dest gets the same shape as a cache hit
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// CacheManager bundles the helpers the repositories use.
type CacheManager struct {
	client *redis.Client
	Fast   *CacheHelper
	Quiz   *CacheHelper
}

// NewCacheManager creates helpers over one shared client. A nil client
// disables caching without changing call sites.
func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		client: client,
		Fast:   NewCacheHelper(client, FastCacheConfig.Prefix),
		Quiz:   NewCacheHelper(client, QuizCacheConfig.Prefix),
	}
}

// HealthCheck pings the cache backend.
func (m *CacheManager) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Ping(ctx).Err()
}

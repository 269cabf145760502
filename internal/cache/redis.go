package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// redisKeyPrefix namespaces every Kestrel key in a shared Redis.
const redisKeyPrefix = "kestrel:"

// RedisCache is the Pro tier cache and the L2 of TwoPhaseCache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return newRedisCache(client), nil
}

func newRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns nil, nil when the key does not exist.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, redisKeyPrefix+k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value with the given expiry.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+k, value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, redisKeyPrefix+k).Err()
}

// GetDecision implements domain.Cache.
func (c *RedisCache) GetDecision(ctx context.Context, tenantID string, key string) (*domain.Decision, error) {
	return getDecision(ctx, c, tenantID, key)
}

// SetDecision implements domain.Cache.
func (c *RedisCache) SetDecision(ctx context.Context, tenantID string, key string, d *domain.Decision, ttl time.Duration) error {
	return setDecision(ctx, c, tenantID, key, d, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

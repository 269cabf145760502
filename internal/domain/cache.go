package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetDecision retrieves a cached decision by key.
	// Returns nil, nil if key not found.
	GetDecision(ctx context.Context, tenantID string, key string) (*Decision, error)

	// SetDecision caches a decision under key.
	SetDecision(ctx context.Context, tenantID string, key string, d *Decision, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache key prefixes for decisions.
const (
	CacheKeyDecision    = "decision:"
	CacheKeyFingerprint = "fingerprint:"
	CacheKeyLatest      = "decision:latest"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" yaml:"type" toml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" yaml:"local_max_size" toml:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" yaml:"local_ttl" toml:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"-" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redisDb" yaml:"redis_db" toml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" yaml:"enable_two_phase" toml:"enable_two_phase"` // If true, check local first, then Redis

	// DecisionTTL bounds how long identical inputs reuse a memoized decision.
	DecisionTTL time.Duration `json:"decisionTtl" yaml:"decision_ttl" toml:"decision_ttl"`
}

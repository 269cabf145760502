// Package cache provides decision caches for Kestrel.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrTenantRequired is returned by every cache operation called without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// New creates a cache from configuration:
// "memory" is an in-process LRU, "redis" is Redis alone or, with
// EnableTwoPhase, an LRU in front of Redis.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			c, err := NewTwoPhaseCache(cfg)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		c, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// scopedKey namespaces key under tenantID.
func scopedKey(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", ErrTenantRequired
	}
	return tenantID + ":" + key, nil
}

// byteStore is the raw surface every cache tier implements.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

// getDecision returns nil, nil on a miss.
func getDecision(ctx context.Context, s byteStore, tenantID, key string) (*domain.Decision, error) {
	data, err := s.Get(ctx, tenantID, key)
	if err != nil || data == nil {
		return nil, err
	}

	d := new(domain.Decision)
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to decode cached decision %s: %w", key, err)
	}
	return d, nil
}

func setDecision(ctx context.Context, s byteStore, tenantID, key string, d *domain.Decision, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode decision %s: %w", d.ID, err)
	}
	return s.Set(ctx, tenantID, key, data, ttl)
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultL1TTL = 5 * time.Minute

// TwoPhaseCache reads through a local LRU (L1) to a shared store (L2).
// Writes go to both tiers; an L1 entry never outlives its L2 copy.
type TwoPhaseCache struct {
	l1    *LRUCache
	l2    domain.Cache
	l1TTL time.Duration
}

// NewTwoPhaseCache builds an LRU in front of Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	l2, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), l2, cfg.LocalTTL), nil
}

func newTwoPhase(l1 *LRUCache, l2 domain.Cache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = defaultL1TTL
	}
	return &TwoPhaseCache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get checks L1, then L2, refilling L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if val, err := c.l1.Get(ctx, tenantID, key); err != nil || val != nil {
		return val, err
	}

	val, err := c.l2.Get(ctx, tenantID, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.l1.Set(ctx, tenantID, key, val, c.l1TTL)
	return val, nil
}

// Set writes L1 with min(ttl, l1TTL) and L2 with ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, tenantID, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.l2.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes key from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	return errors.Join(c.l1.Delete(ctx, tenantID, key), c.l2.Delete(ctx, tenantID, key))
}

// GetDecision implements domain.Cache.
func (c *TwoPhaseCache) GetDecision(ctx context.Context, tenantID string, key string) (*domain.Decision, error) {
	return getDecision(ctx, c, tenantID, key)
}

// SetDecision implements domain.Cache.
func (c *TwoPhaseCache) SetDecision(ctx context.Context, tenantID string, key string, d *domain.Decision, ttl time.Duration) error {
	return setDecision(ctx, c, tenantID, key, d, ttl)
}

// Ping reports L2 health; L1 is always available.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.l2.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both tiers.
func (c *TwoPhaseCache) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() LRUStats {
	return c.l1.Stats()
}

// Purge drops expired L1 entries. Redis expires L2 entries on its own.
func (c *TwoPhaseCache) Purge() int {
	return c.l1.Purge()
}

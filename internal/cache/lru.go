package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLRUSize = 10000

// LRUCache is an in-process, size-bounded cache with per-entry expiry.
// It backs the Community tier and is the L1 of TwoPhaseCache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time

	hits, misses, evictions uint64
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRUStats is a point-in-time view of an LRUCache.
type LRUStats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// NewLRUCache creates a cache holding at most capacity entries.
// A non-positive capacity selects the default of 10000.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultLRUSize
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *LRUCache) Get(_ context.Context, tenantID string, key string) ([]byte, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := el.Value.(*lruEntry)
	if !c.now().Before(e.expiresAt) {
		c.drop(el)
		c.misses++
		return nil, nil
	}

	c.recency.MoveToFront(el)
	c.hits++
	return e.value, nil
}

// Set stores value until ttl elapses, evicting the least recently used
// entries beyond capacity.
func (c *LRUCache) Set(_ context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[k]; ok {
		e := el.Value.(*lruEntry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(el)
		return nil
	}

	c.entries[k] = c.recency.PushFront(&lruEntry{key: k, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (c *LRUCache) Delete(_ context.Context, tenantID string, key string) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[k]; ok {
		c.drop(el)
	}
	return nil
}

// GetDecision implements domain.Cache.
func (c *LRUCache) GetDecision(ctx context.Context, tenantID string, key string) (*domain.Decision, error) {
	return getDecision(ctx, c, tenantID, key)
}

// SetDecision implements domain.Cache.
func (c *LRUCache) SetDecision(ctx context.Context, tenantID string, key string, d *domain.Decision, ttl time.Duration) error {
	return setDecision(ctx, c, tenantID, key, d, ttl)
}

// Purge drops every expired entry and returns how many were removed.
func (c *LRUCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*lruEntry).expiresAt) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns the current size and lookup counters.
func (c *LRUCache) Stats() LRUStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LRUStats{
		Size:      c.recency.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
	return nil
}

func (c *LRUCache) drop(el *list.Element) {
	c.recency.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).key)
}

// Package cache provides the evaluation and rate-limit caches for Kestrel.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	defaultCapacity = 10000

	// sweepThreshold is the number of live rate windows above which
	// expired windows are dropped on the next increment.
	sweepThreshold = 1024
)

// Stats is a point-in-time view of an LRU cache.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// LRUCache is a bounded in-process cache. It backs the community tier and
// sits in front of Redis as L1 in the two-phase cache. Rate windows are
// kept apart from cached values and never count against capacity.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front is most recently used
	windows  map[string]*rateWindow
	now      func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// NewLRUCache creates an LRU cache holding at most capacity values.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		windows:  make(map[string]*rateWindow),
		now:      time.Now,
	}
}

// Get returns the value for key, or nil on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, nil
	}

	e := elem.Value.(*lruEntry)
	if e.expired(c.now()) {
		c.remove(elem)
		c.misses++
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	c.hits++
	return e.value, nil
}

// Set stores value under key. A ttl of zero or less never expires.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.entries[k]; ok {
		e := elem.Value.(*lruEntry)
		e.value = value
		e.expiresAt = expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[k] = c.recency.PushFront(&lruEntry{key: k, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.remove(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		c.remove(elem)
	}
	return nil
}

// GetEvaluation retrieves a cached evaluation.
func (c *LRUCache) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	return getEvaluation(ctx, c, tenantID, evalID)
}

// SetEvaluation caches a scored evaluation.
func (c *LRUCache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation, ttl time.Duration) error {
	return setEvaluation(ctx, c, tenantID, eval, ttl)
}

// IncrementCounter counts hits within a fixed window that starts on the
// first hit and returns the count including this one.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	k, err := scopedKey(tenantID, counterKey(key))
	if err != nil {
		return 0, err
	}
	if window <= 0 {
		return 0, fmt.Errorf("counter window must be positive, got %s", window)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.windows) >= sweepThreshold {
		for wk, w := range c.windows {
			if !now.Before(w.resetAt) {
				delete(c.windows, wk)
			}
		}
	}

	w, ok := c.windows[k]
	if !ok || !now.Before(w.resetAt) {
		c.windows[k] = &rateWindow{count: 1, resetAt: now.Add(window)}
		return 1, nil
	}

	w.count++
	return w.count, nil
}

// Ping always succeeds for the in-process cache.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every value and rate window.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*rateWindow)
	return nil
}

// Stats returns the current size, capacity and hit counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.recency.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) remove(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).key)
}

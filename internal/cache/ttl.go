package cache

import (
	"fmt"
	"sync"
	"time"
)

// TTL is a bounded, thread-safe key-value store with time-based expiry and
// FIFO size eviction. Reads never refresh an entry's timestamp, so eviction
// order follows true insertion order rather than access order. A ttl of 0
// disables expiry; a maxSize of 0 disables the size bound.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	items   map[string]ttlEntry[V]
	order   []string // insertion order, oldest first
	clock   func() time.Time
}

type ttlEntry[V any] struct {
	value V
	ts    time.Time
}

// NewTTL validates its bounds at construction; negative values are rejected
// here so they can never surface as a runtime surprise on first use.
func NewTTL[V any](ttl time.Duration, maxSize int) (*TTL[V], error) {
	if ttl < 0 {
		return nil, fmt.Errorf("cache: ttl must be >= 0, got %v", ttl)
	}
	if maxSize < 0 {
		return nil, fmt.Errorf("cache: max size must be >= 0, got %d", maxSize)
	}
	return &TTL[V]{
		ttl:     ttl,
		maxSize: maxSize,
		items:   make(map[string]ttlEntry[V]),
		clock:   time.Now,
	}, nil
}

// SetClock replaces the time source. Intended for tests that need to simulate
// expiry without sleeping.
func (c *TTL[V]) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Check reports whether key has been seen within the TTL window, inserting it
// as freshly seen when it has not. An empty key is never seen and never
// stored, so malformed upstream identities cannot pollute the cache.
//
// A hit does not refresh the entry's timestamp. An expired entry that is
// checked again is re-inserted at the end of the FIFO order with its new
// timestamp.
func (c *TTL[V]) Check(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if e, ok := c.items[key]; ok && c.fresh(e.ts, now) {
		c.prune(now)
		return true
	}
	var zero V
	c.insert(key, zero, now)
	c.prune(now)
	return false
}

// Get returns the value stored under key if it is present and unexpired.
// Unlike Check, a miss does not mark the key as seen.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.fresh(e.ts, now) {
		c.remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key at the current time, then prunes expired entries
// and enforces the size bound. Overwriting a key moves it to the end of the
// FIFO order.
func (c *TTL[V]) Set(key string, value V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.insert(key, value, now)
	c.prune(now)
}

// Len returns the current number of entries.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]ttlEntry[V])
	c.order = c.order[:0]
}

func (c *TTL[V]) fresh(ts, now time.Time) bool {
	return c.ttl == 0 || now.Sub(ts) < c.ttl
}

// insert must be called with the lock held.
func (c *TTL[V]) insert(key string, value V, now time.Time) {
	if _, ok := c.items[key]; ok {
		c.removeFromOrder(key)
	}
	c.items[key] = ttlEntry[V]{value: value, ts: now}
	c.order = append(c.order, key)
}

// remove must be called with the lock held.
func (c *TTL[V]) remove(key string) {
	delete(c.items, key)
	c.removeFromOrder(key)
}

func (c *TTL[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// prune removes expired entries, then evicts oldest-inserted entries until
// the size bound holds. Must be called with the lock held.
func (c *TTL[V]) prune(now time.Time) {
	if c.ttl > 0 {
		kept := c.order[:0]
		for _, k := range c.order {
			if e, ok := c.items[k]; ok && c.fresh(e.ts, now) {
				kept = append(kept, k)
			} else {
				delete(c.items, k)
			}
		}
		c.order = kept
	}
	if c.maxSize > 0 {
		for len(c.items) > c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
}

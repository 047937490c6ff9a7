// Package cache provides a bounded, TTL-expiring key-value store with strict
// least-recently-used eviction, where both reads and writes count as access.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Key is the exact resource URI used for lookups, including query parameters
// in their original order. Two logically-equivalent URIs with reordered query
// parameters are distinct keys on purpose: silently canonicalizing would mask
// cache-hit-rate regressions.
type Key = string

type entry struct {
	key       Key
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Option is a function that applies an option to a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithEnabled toggles the cache. A disabled cache always misses on Get and
// treats Set as a no-op, without errors.
func WithEnabled(enabled bool) Option {
	return func(c *Cache) {
		c.enabled = enabled
	}
}

// Cache is a TTL + LRU store. All mutation is serialized behind a single
// mutex; the access-order list keeps the most recently used entry at the
// front so eviction of the least recently used entry is O(1).
type Cache struct {
	mu         sync.Mutex
	enabled    bool
	ttl        time.Duration
	maxEntries int
	order      *list.List
	index      map[Key]*list.Element
	now        func() time.Time
}

// New creates a cache holding at most maxEntries entries, each expiring ttl
// after it was stored.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Cache {
	_inst := &Cache{
		enabled:    true,
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[Key]*list.Element),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst
}

// Get returns the stored value when present and unexpired, and promotes the
// key to most-recently-used. An expired entry is evicted on sight and reported
// as a miss.
func (c *Cache) Get(key Key) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.index[key]
	if !found {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if !c.now().Before(ent.expiresAt) {
		c.remove(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return ent.value, true
}

// Set stores value under key with expiry now+ttl. Storing an existing key
// refreshes its value and expiry and counts as an access. When the cache is
// full and the key is new, the single least-recently-used entry is evicted
// first.
func (c *Cache) Set(key Key, value []byte) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, found := c.index[key]; found {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.storedAt = now
		ent.expiresAt = now.Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	c.index[key] = c.order.PushFront(&entry{
		key:       key,
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	})
}

// PruneExpired removes every expired entry regardless of access patterns and
// returns the number removed. It reclaims memory held by cold entries that no
// read would otherwise touch.
func (c *Cache) PruneExpired() int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	pruned := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if !now.Before(elem.Value.(*entry).expiresAt) {
			c.remove(elem)
			pruned++
		}
		elem = next
	}
	return pruned
}

// Len returns the current number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.index, elem.Value.(*entry).key)
}

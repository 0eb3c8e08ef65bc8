// Package cache implements the bounded query cache and the invalidation
// gateway the quota and reset subsystems call after mutations.
//
// Keys are namespaced ("user_stats:U123", "leaderboard:monthly") so a
// mutation can drop a whole family with a trailing-star pattern.
// Lookup, insert and delete are O(1); pattern invalidation walks the
// key set once. Eviction order is least-recently-used, tracked with a
// hash map over a doubly linked list.
package cache

import (
	"strings"
	"sync"
	"time"
)

// entry is a doubly linked list node holding one cached value.
type entry struct {
	key     string
	val     interface{}
	expires time.Time
	prev    *entry
	next    *entry
}

// Cache is a thread-safe LRU query cache with per-entry TTL.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry
	head     *entry // most recently used (sentinel)
	tail     *entry // least recently used (sentinel)

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given capacity and default TTL.
// Panics if capacity < 1.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		panic("cache: capacity must be >= 1")
	}

	head := &entry{}
	tail := &entry{}
	head.next = tail
	tail.prev = head

	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry, capacity),
		head:     head,
		tail:     tail,
	}
}

// Key builds a namespaced cache key.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

// Get retrieves a live value by key. Expired entries are dropped on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.remove(e)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	c.moveToFront(e)
	c.hits++
	return e.val, true
}

// Set inserts or refreshes a key. The least recently used entry is
// evicted when the cache is full.
func (c *Cache) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)

	if e, ok := c.items[key]; ok {
		e.val = val
		e.expires = expires
		c.moveToFront(e)
		return
	}

	if len(c.items) >= c.capacity {
		victim := c.tail.prev
		c.remove(victim)
		delete(c.items, victim.key)
		c.evictions++
	}

	e := &entry{key: key, val: val, expires: expires}
	c.items[key] = e
	c.pushFront(e)
}

// Invalidate drops a single key. Returns true if it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(e)
	delete(c.items, key)
	return true
}

// InvalidatePattern drops every key matching the pattern. A trailing
// '*' matches any suffix; without it the match is exact. Returns the
// number of dropped entries.
func (c *Cache) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix, wildcard := strings.CutSuffix(pattern, "*")

	dropped := 0
	for key, e := range c.items {
		match := key == pattern
		if wildcard {
			match = strings.HasPrefix(key, prefix)
		}
		if match {
			c.remove(e)
			delete(c.items, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats reports hit/miss/eviction counters since startup.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[string]*entry, c.capacity)
}

// --- internal linked list operations (caller must hold lock) ---

func (c *Cache) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (c *Cache) pushFront(e *entry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) moveToFront(e *entry) {
	c.remove(e)
	c.pushFront(e)
}

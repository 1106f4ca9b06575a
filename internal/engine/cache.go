package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type cacheEntry struct {
	inserted time.Time
	expiry   time.Time
}

// Cache is the set of ticket keys to skip because their last pass changed nothing.
// Entries expire after a fixed TTL; expired keys are dropped when read or swept.
//
// An expired entry is remembered as lapsed until the ticket is processed again, so the
// poller can scan everything that happened on the ticket while it was being skipped.
type Cache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
	lapsed  map[string]cacheEntry
}

// NewCache returns an empty cache whose entries live for ttl.
func NewCache(clock clockwork.Clock, ttl time.Duration) *Cache {
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		lapsed:  make(map[string]cacheEntry),
	}
}

// Add inserts key, resetting its expiry if it is already present.
func (c *Cache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.entries[key] = cacheEntry{inserted: now, expiry: now.Add(c.ttl)}
	delete(c.lapsed, key)
}

// Remove forgets key entirely, including its lapsed record.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	delete(c.lapsed, key)
}

// Contains reports whether key is present and not yet expired.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if !c.clock.Now().Before(entry.expiry) {
		c.expire(key, entry)
		return false
	}
	return true
}

// Lapsed returns when an expired key was last inserted, if it has not been processed since.
func (c *Cache) Lapsed(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lapsed[key]
	return entry.inserted, ok
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiry) {
			c.expire(key, entry)
			removed++
		}
	}
	return removed
}

// Forget drops lapsed records that expired before cutoff and returns how many were dropped.
// Tickets last skipped before the search window cannot come back through a search.
func (c *Cache) Forget(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.lapsed {
		if entry.expiry.Before(cutoff) {
			delete(c.lapsed, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of entries, including expired ones not swept yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// expire must be called with mu held.
func (c *Cache) expire(key string, entry cacheEntry) {
	delete(c.entries, key)
	c.lapsed[key] = entry
}

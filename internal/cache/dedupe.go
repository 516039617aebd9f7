// Package cache holds small in-memory caches shared by the adapters.
package cache

import (
	"sync"
	"time"
)

// DedupeCache remembers keys for a while so redelivered events are only
// handled once.
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// DedupeCacheOptions configures the cache.
type DedupeCacheOptions struct {
	// TTL is how long a key counts as seen. Zero keeps keys until evicted.
	TTL time.Duration

	// MaxSize bounds the number of keys; the oldest are evicted first.
	// Default: 1000
	MaxSize int
}

// NewDedupeCache creates a deduplication cache.
func NewDedupeCache(opts DedupeCacheOptions) *DedupeCache {
	if opts.TTL < 0 {
		opts.TTL = 0
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000
	}
	return &DedupeCache{
		seen:    make(map[string]time.Time),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     time.Now,
	}
}

// Check reports whether key was seen within the TTL and records it as seen
// now. Empty keys are never duplicates.
func (c *DedupeCache) Check(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.seen[key]; ok && c.live(at, now) {
		c.seen[key] = now
		return true
	}

	c.seen[key] = now
	c.prune(now)
	return false
}

// Size returns the number of remembered keys.
func (c *DedupeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *DedupeCache) live(at, now time.Time) bool {
	return c.ttl <= 0 || now.Sub(at) < c.ttl
}

func (c *DedupeCache) prune(now time.Time) {
	for key, at := range c.seen {
		if !c.live(at, now) {
			delete(c.seen, key)
		}
	}
	for len(c.seen) > c.maxSize {
		var oldestKey string
		var oldest time.Time
		for key, at := range c.seen {
			if oldestKey == "" || at.Before(oldest) {
				oldestKey, oldest = key, at
			}
		}
		delete(c.seen, oldestKey)
	}
}

// MessageDedupeKey identifies a message by channel and timestamp.
func MessageDedupeKey(channel, ts string) string {
	if ts == "" {
		return ""
	}
	if channel == "" {
		return ts
	}
	return channel + ":" + ts
}

package flags

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache defaults, overridable via CACHE_TTL_SECONDS / CACHE_MAX_SIZE.
const (
	DefaultCacheTTL     = 60 * time.Second
	DefaultCacheMaxSize = 10000
)

var (
	errCacheTTL  = errors.New("flags: cache ttl must be positive")
	errCacheSize = errors.New("flags: cache max size must be positive")
)

type cacheKey struct {
	flagID uuid.UUID
	userID string
}

type cacheEntry struct {
	result    Evaluation
	createdAt time.Time
}

// Cache holds recently computed evaluations keyed by (flag, user). Entries
// expire after a fixed TTL and the map never grows past maxSize: writes sweep
// expired entries first, then drop the oldest-inserted entry if needed.
// All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewCache builds a cache with the given TTL and capacity.
func NewCache(ttl time.Duration, maxSize int) (*Cache, error) {
	if ttl <= 0 {
		return nil, errCacheTTL
	}
	if maxSize <= 0 {
		return nil, errCacheSize
	}
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}, nil
}

func (c *Cache) expired(e cacheEntry, now time.Time) bool {
	return now.Sub(e.createdAt) >= c.ttl
}

// Get returns the cached evaluation for (flagID, userID) when present and
// fresh. An expired entry found here is deleted as a side effect.
func (c *Cache) Get(flagID uuid.UUID, userID string) (Evaluation, bool) {
	key := cacheKey{flagID: flagID, userID: userID}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Evaluation{}, false
	}
	if c.expired(entry, c.now()) {
		delete(c.entries, key)
		return Evaluation{}, false
	}
	return entry.result, true
}

// Put inserts or replaces the entry for (flagID, userID), stamped now.
// When the insert would exceed capacity, already-expired entries are swept
// first; if that is not enough, the oldest-inserted entries are evicted until
// there is room.
func (c *Cache) Put(flagID uuid.UUID, userID string, result Evaluation) {
	key := cacheKey{flagID: flagID, userID: userID}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		for k, e := range c.entries {
			if c.expired(e, now) {
				delete(c.entries, k)
			}
		}
		for len(c.entries) > c.maxSize-1 {
			var oldestKey cacheKey
			var oldestAt time.Time
			first := true
			for k, e := range c.entries {
				if first || e.createdAt.Before(oldestAt) {
					oldestKey, oldestAt = k, e.createdAt
					first = false
				}
			}
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = cacheEntry{result: result, createdAt: now}
}

// InvalidateFlag removes every entry for the flag, across all users.
func (c *Cache) InvalidateFlag(flagID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.flagID == flagID {
			delete(c.entries, k)
		}
	}
}

// InvalidateOverride removes the single entry for (flagID, userID).
func (c *Cache) InvalidateOverride(flagID uuid.UUID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{flagID: flagID, userID: userID})
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

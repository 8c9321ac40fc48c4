package session

import (
	"fmt"
	"sync"
	"time"
)

// optionEntry is one cached option list with its expiry.
type optionEntry struct {
	options   []string
	expiresAt time.Time
}

// OptionCache holds the option lists presented to subscribers, keyed by
// (subscriber id, filter field id). Entries live only for the duration of
// one selection dialogue turn: each re-fetch overwrites the prior list, and
// a successful pick consumes the entry so stale indexes cannot be replayed.
type OptionCache struct {
	ttl time.Duration
	mu  sync.RWMutex

	entries map[string]*optionEntry
}

// NewOptionCache creates an option cache. A non-positive ttl defaults to
// 15 minutes, comfortably longer than one dialogue turn.
func NewOptionCache(ttl time.Duration) *OptionCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &OptionCache{
		ttl:     ttl,
		entries: make(map[string]*optionEntry),
	}
}

func cacheKey(subscriberID int64, fieldID string) string {
	return fmt.Sprintf("%d:%s", subscriberID, fieldID)
}

// Put stores the option list for the key, overwriting any prior list.
func (c *OptionCache) Put(subscriberID int64, fieldID string, options []string) {
	stored := make([]string, len(options))
	copy(stored, options)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(subscriberID, fieldID)] = &optionEntry{
		options:   stored,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Take removes and returns the option list for the key. Expired or absent
// entries report ok=false.
func (c *OptionCache) Take(subscriberID int64, fieldID string) ([]string, bool) {
	key := cacheKey(subscriberID, fieldID)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	delete(c.entries, key)
	if time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.options, true
}

// Len reports the number of live entries. Used by tests.
func (c *OptionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

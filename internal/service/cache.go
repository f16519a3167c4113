package service

import (
	"sync"
	"time"

	"github.com/auraticabhi/Human-in-the-Loop-AI-Supervisor/internal/models"
)

type cacheItem struct {
	match    *models.KnowledgeMatch
	storedAt time.Time
}

// lookupCache is a bounded-TTL read cache for successful knowledge lookups.
// Only hits are stored; a cached "not found" would hide newly learned
// answers, so misses always re-score. Entries expire by TTL only.
type lookupCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cacheItem
	now   func() time.Time
}

func newLookupCache(ttl time.Duration) *lookupCache {
	return &lookupCache{
		ttl:   ttl,
		items: make(map[string]cacheItem),
		now:   time.Now,
	}
}

func (c *lookupCache) get(key string) (*models.KnowledgeMatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(item.storedAt) > c.ttl {
		delete(c.items, key)
		return nil, false
	}
	return item.match, true
}

func (c *lookupCache) set(key string, match *models.KnowledgeMatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistically drop expired entries so the map stays bounded by
	// the distinct questions seen within one TTL window.
	now := c.now()
	for k, item := range c.items {
		if now.Sub(item.storedAt) > c.ttl {
			delete(c.items, k)
		}
	}

	c.items[key] = cacheItem{match: match, storedAt: now}
}

// Package cache provides the short-lived in-memory price cache used by the price provider.
package cache

import (
	"grantcalc/internal/model"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

// DefaultTTL is how long a cached price stays usable without a refetch.
const DefaultTTL = 5 * time.Minute

// PriceCache stores one decimal value per model.CacheKey.
//
// An entry is valid while now - StoredAt < ttl. Expired entries stay in the map until
// they are overwritten or the cache is cleared, so Status reports them too. Each key is
// written as a whole value; concurrent fetches own disjoint keys.
type PriceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[model.CacheKey]model.CacheEntry
	order   []model.CacheKey // first-insertion order of keys
}

// NewPriceCache creates an empty cache. A non-positive ttl falls back to DefaultTTL and a
// nil clock to the wall clock.
func NewPriceCache(ttl time.Duration, clk clock.Clock) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}

	return &PriceCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[model.CacheKey]model.CacheEntry),
	}
}

// Get returns the cached value for key if a valid entry exists.
func (c *PriceCache) Get(key model.CacheKey) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.isValid(entry) {
		return decimal.Zero, false
	}
	return entry.Value, true
}

// Set stores value under key stamped with the current time, replacing any previous entry.
func (c *PriceCache) Set(key model.CacheKey, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = model.CacheEntry{
		Key:      key,
		Value:    value,
		StoredAt: c.clock.Now(),
	}
}

// Clear drops every entry.
func (c *PriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[model.CacheKey]model.CacheEntry)
	c.order = nil
}

// Status reports the number of entries and their names in insertion order.
func (c *PriceCache) Status() model.CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.order))
	for _, k := range c.order {
		keys = append(keys, k.String())
	}

	return model.CacheStatus{
		Size: len(c.entries),
		Keys: keys,
	}
}

// TTL returns the configured time-to-live.
func (c *PriceCache) TTL() time.Duration {
	return c.ttl
}

func (c *PriceCache) isValid(entry model.CacheEntry) bool {
	return c.clock.Since(entry.StoredAt) < c.ttl
}

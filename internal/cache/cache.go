// Package cache implements the item-state cache (C4): the authoritative
// identity map from ItemId to shared ItemState. The only writers are the
// manager's load path (on miss) and its listener callbacks
// (state_destroyed, state_discarded).
package cache

import (
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/metrics"
)

// DefaultCapacity bounds the LRU beneath the identity map. It is large
// enough that ordinary commit/read traffic never forces an eviction the
// manager did not itself request; it exists as a hook for bounding memory
// under sustained load, per spec's "eviction hooks" note on C4.
const DefaultCapacity = 65536

// EvictionHook is invoked whenever an entry falls out of the cache,
// whether by explicit Evict/EvictAll or because the bounded LRU reclaimed
// space for a newer entry.
type EvictionHook func(id itemid.ItemId, s itemstate.ItemState)

// Cache is the shared item-state identity map.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[itemid.ItemId, itemstate.ItemState]
	hook  EvictionHook
	stats *metrics.CacheMetrics
}

// New constructs a cache bounded at capacity entries (DefaultCapacity if
// capacity <= 0). The eviction hook, if non-nil, fires for every removal,
// including ones caused by capacity pressure rather than an explicit
// Evict call.
func New(capacity int, hook EvictionHook, stats *metrics.CacheMetrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{hook: hook, stats: stats}
	onEvicted := func(id itemid.ItemId, s itemstate.ItemState) {
		if c.hook != nil {
			c.hook(id, s)
		}
		if c.stats != nil {
			c.stats.Evictions.Inc()
		}
	}
	l, err := lru.NewWithEvict(capacity, onEvicted)
	if err != nil {
		// Only returns an error for capacity <= 0, which is excluded above.
		panic(fmt.Errorf("cache: construct lru: %w", err))
	}
	c.lru = l
	return c
}

// IsCached reports whether id currently has a cached shared state.
func (c *Cache) IsCached(id itemid.ItemId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(id)
}

// Retrieve returns the cached shared state for id, if present.
func (c *Cache) Retrieve(id itemid.ItemId) (itemstate.ItemState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.lru.Get(id)
	if c.stats != nil {
		if ok {
			c.stats.Hits.Inc()
		} else {
			c.stats.Misses.Inc()
		}
	}
	return s, ok
}

// Cache inserts s, keyed by its id. Inserting an id that is already
// present is a programming error: the cache is the sole owner of shared
// state identity and a double-insert means two code paths raced to load
// the same item.
func (c *Cache) Cache(s itemstate.ItemState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(s.ID()) {
		panic(fmt.Errorf("%w: %s", itemstate.ErrAlreadyCached, s.ID()))
	}
	c.lru.Add(s.ID(), s)
}

// Evict removes id from the cache if present. As with every removal, the
// eviction hook fires for the removed entry.
func (c *Cache) Evict(id itemid.ItemId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

// EvictAll clears the cache entirely.
func (c *Cache) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Dump writes a diagnostic listing of every cached id and status to sink.
func (c *Cache) Dump(sink io.Writer) {
	c.mu.Lock()
	keys := c.lru.Keys()
	c.mu.Unlock()
	for _, id := range keys {
		s, ok := c.Retrieve(id)
		if !ok {
			continue
		}
		fmt.Fprintf(sink, "%s\t%s\n", id, s.Status())
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

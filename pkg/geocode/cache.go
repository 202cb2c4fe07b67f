package geocode

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// SuggestCacheMaxAge is how long a cached suggestion set stays live.
	SuggestCacheMaxAge = 30 * time.Minute
	// SuggestCacheMaxEntries bounds the suggestion cache size.
	SuggestCacheMaxEntries = 200

	// DetailsCacheMaxAge is how long a cached place-details record stays live.
	DetailsCacheMaxAge = time.Hour
	// DetailsCacheMaxEntries bounds the details cache size.
	DetailsCacheMaxEntries = 100
)

// suggestionKey builds the cache key for a suggestion set:
// provider, normalized query, requested limit, coarse location bucket.
func suggestionKey(provider ProviderName, normQuery string, limit int, bucket string) string {
	return fmt.Sprintf("%s_%s_%d_%s", provider, normQuery, limit, bucket)
}

type suggestionEntry struct {
	results   []Suggestion
	query     string // normalized query, kept for the prefix pass
	bucket    string
	createdAt time.Time
}

// suggestionCache is a concurrent-safe, bounded, time-expiring cache of
// suggestion sets. Eviction removes the single globally oldest entry when an
// insert would exceed capacity; the scan is O(n) over a bounded n.
type suggestionCache struct {
	mu         sync.Mutex
	entries    map[string]*suggestionEntry
	maxEntries int
	maxAge     time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
	now        func() time.Time // injectable for tests
}

// CacheStats reports cache occupancy and hit performance.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

func newSuggestionCache(maxEntries int, maxAge time.Duration) *suggestionCache {
	return &suggestionCache{
		entries:    make(map[string]*suggestionEntry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// lookup performs the two-pass consult: an exact-key check per provider in
// chain order, then a prefix pass where a longer cached query may serve a
// retyped prefix of itself. Prefix-pass results are filtered to those whose
// primary text still matches the query; exact hits were produced by this very
// query and are returned as stored.
func (c *suggestionCache) lookup(normQuery string, limit int, bucket string) ([]Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	// Exact-key pass.
	for _, provider := range chainOrder {
		key := suggestionKey(provider, normQuery, limit, bucket)
		entry, ok := c.entries[key]
		if !ok {
			continue
		}
		if now.Sub(entry.createdAt) >= c.maxAge {
			delete(c.entries, key)
			continue
		}
		c.hits.Add(1)
		return entry.results, true
	}

	// Prefix pass: a live entry whose embedded query has the current query
	// as a prefix (same location bucket) can satisfy the lookup. The cached
	// query must be the super-string; a shorter cached query never serves a
	// longer one.
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.maxAge {
			delete(c.entries, key)
			continue
		}
		if entry.bucket != bucket || entry.query == normQuery {
			continue
		}
		if !strings.HasPrefix(entry.query, normQuery) {
			continue
		}
		if filtered := filterByQuery(entry.results, normQuery); len(filtered) > 0 {
			c.hits.Add(1)
			return filtered, true
		}
	}

	c.misses.Add(1)
	return nil, false
}

// put stores a suggestion set, evicting the oldest entry if at capacity.
func (c *suggestionCache) put(provider ProviderName, normQuery string, limit int, bucket string, results []Suggestion) {
	key := suggestionKey(provider, normQuery, limit, bucket)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &suggestionEntry{
		results:   results,
		query:     normQuery,
		bucket:    bucket,
		createdAt: c.now(),
	}
}

// evictOldest removes the entry with the smallest timestamp. Caller holds mu.
func (c *suggestionCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// clear drops every entry.
func (c *suggestionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*suggestionEntry)
}

// stats returns cache occupancy and hit-rate counters.
func (c *suggestionCache) stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// filterByQuery keeps suggestions whose primary or display text starts with
// or contains the folded query. This defends against a cached set for a
// shorter query being served unfiltered for a longer one.
func filterByQuery(results []Suggestion, normQuery string) []Suggestion {
	var out []Suggestion
	for _, s := range results {
		primary := fold(s.primaryText())
		display := fold(s.DisplayName)
		if strings.HasPrefix(primary, normQuery) || strings.Contains(primary, normQuery) || strings.Contains(display, normQuery) {
			out = append(out, s)
		}
	}
	return out
}

// keyedCache is a bounded TTL cache for single records (place details,
// reverse lookups, feature flags). Same eviction policy as the suggestion
// cache without the prefix machinery.
type keyedCache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*keyedEntry[T]
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
}

type keyedEntry[T any] struct {
	value     T
	createdAt time.Time
}

func newKeyedCache[T any](maxEntries int, maxAge time.Duration) *keyedCache[T] {
	return &keyedCache[T]{
		entries:    make(map[string]*keyedEntry[T]),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

func (c *keyedCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(entry.createdAt) >= c.maxAge {
		delete(c.entries, key)
		return zero, false
	}
	return entry.value, true
}

func (c *keyedCache[T]) put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.createdAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.createdAt
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = &keyedEntry[T]{value: value, createdAt: c.now()}
}

func (c *keyedCache[T]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*keyedEntry[T])
}

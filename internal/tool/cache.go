package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures handler result caching.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for read-only tools.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxSize: defaultCacheMaxSize, TTL: defaultCacheTTL}
}

type cacheEntry struct {
	data     any
	storedAt time.Time
}

// CachedHandler wraps a read-only tool handler with an LRU result cache
// keyed by (tool name + normalised input). Only successful results are
// cached; mutating tools must not be wrapped.
func CachedHandler(name string, handler Handler, config CacheConfig) Handler {
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return handler
	}
	ttl := config.TTL

	return func(ctx context.Context, input map[string]any, tc Context) (any, error) {
		key := fmt.Sprintf("%s:%s:%s", tc.WebsiteID, name, normalizeInput(input))

		if entry, ok := cache.Get(key); ok {
			if time.Since(entry.storedAt) < ttl {
				return entry.data, nil
			}
			// Expired: evict so the LRU bookkeeping stays clean.
			cache.Remove(key)
		}

		data, err := handler(ctx, input, tc)
		if err != nil {
			return data, err
		}
		cache.Add(key, cacheEntry{data: data, storedAt: time.Now()})
		return data, nil
	}
}

// normalizeInput serialises input into a deterministic JSON string by
// sorting keys at every level.
func normalizeInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	data, err := json.Marshal(sortedMap(input))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// sortedMap returns a representation of m that json.Marshal serialises
// with keys in sorted order at every nesting level.
func sortedMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = sortedMap(nested)
		}
		out[k] = v
	}
	return out
}

package serv

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/buildstate/fm-sync/core"
)

// Default memory cache size (number of entries)
const defaultMemoryCacheSize = 10000

// memoryCacheEntry wraps a cache entry with expiration info
type memoryCacheEntry struct {
	entry      *core.Entry
	storedAt   time.Time
	freshUntil int64
	staleUntil int64
}

// MemoryCache is the in-process LRU backend. Entries are stored
// structured, no serialization; reads hand out deep copies so a caller
// can never mutate the cached value in place.
type MemoryCache struct {
	cache   *lru.Cache[string, *memoryCacheEntry]
	conf    CachingConfig
	metrics *core.Metrics

	// keyIndex: entry hash -> full key, for prefix invalidation.
	keyIndex map[string]core.Key
	mu       sync.Mutex
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(conf CachingConfig) (*MemoryCache, error) {
	maxEntries := conf.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMemoryCacheSize
	}

	mc := &MemoryCache{
		conf:     conf,
		metrics:  core.NewMetrics(),
		keyIndex: make(map[string]core.Key),
	}

	cache, err := lru.NewWithEvict[string, *memoryCacheEntry](maxEntries,
		func(hash string, _ *memoryCacheEntry) {
			mc.mu.Lock()
			delete(mc.keyIndex, hash)
			mc.mu.Unlock()
		})
	if err != nil {
		return nil, err
	}
	mc.cache = cache
	return mc, nil
}

// Get retrieves the entry for a key.
// Returns (entry, isStale, found).
func (mc *MemoryCache) Get(ctx context.Context, key core.Key) (*core.Entry, bool, bool) {
	wrapped, ok := mc.cache.Get(key.Hash())
	if !ok {
		mc.metrics.RecordMiss(ctx)
		return nil, false, false
	}

	now := time.Now().Unix()

	// Expired (past hard TTL)
	if wrapped.staleUntil > 0 && now >= wrapped.staleUntil {
		mc.cache.Remove(key.Hash())
		mc.metrics.RecordMiss(ctx)
		return nil, false, false
	}

	mc.metrics.RecordHit(ctx)

	isStale := wrapped.freshUntil > 0 && now >= wrapped.freshUntil
	return wrapped.entry.Clone(), isStale, true
}

// Set stores an entry under its key.
func (mc *MemoryCache) Set(ctx context.Context, key core.Key, e *core.Entry) error {
	now := time.Now()
	wrapped := &memoryCacheEntry{
		entry:    e.Clone(),
		storedAt: now,
	}
	if mc.conf.TTL > 0 {
		wrapped.staleUntil = now.Add(time.Duration(mc.conf.TTL) * time.Second).Unix()
		freshTTL := mc.conf.FreshTTL
		if freshTTL == 0 {
			freshTTL = mc.conf.TTL // no SWR, fresh until hard TTL
		}
		wrapped.freshUntil = now.Add(time.Duration(freshTTL) * time.Second).Unix()
	}

	hash := key.Hash()
	mc.cache.Add(hash, wrapped)

	mc.mu.Lock()
	mc.keyIndex[hash] = append(core.Key(nil), key...)
	mc.mu.Unlock()
	return nil
}

// Delete removes one slot.
func (mc *MemoryCache) Delete(ctx context.Context, key core.Key) error {
	mc.cache.Remove(key.Hash())
	return nil
}

// Invalidate drops every entry whose key extends the prefix.
func (mc *MemoryCache) Invalidate(ctx context.Context, prefix core.Key) error {
	mc.mu.Lock()
	var hashes []string
	for hash, key := range mc.keyIndex {
		if key.HasPrefix(prefix) {
			hashes = append(hashes, hash)
		}
	}
	mc.mu.Unlock()

	for _, hash := range hashes {
		mc.cache.Remove(hash)
	}
	if n := int64(len(hashes)); n > 0 {
		mc.metrics.RecordInvalidation(ctx, n)
	}
	return nil
}

// Metrics returns the cache metrics
func (mc *MemoryCache) Metrics() *core.Metrics { return mc.metrics }

// Close clears the cache.
func (mc *MemoryCache) Close() error {
	mc.cache.Purge()
	return nil
}

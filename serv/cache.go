package serv

import (
	"context"

	"github.com/buildstate/fm-sync/core"
)

// Cache is the interface for query cache backends. Both MemoryCache
// and RedisCache implement it. It extends the engine's Store contract
// with stale reporting: an entry past its fresh TTL is still served,
// and the service schedules a background refresh for it.
type Cache interface {
	// Get retrieves the entry for a key.
	// Returns (entry, isStale, found). isStale is true past the fresh TTL.
	Get(ctx context.Context, key core.Key) (*core.Entry, bool, bool)

	// Set stores an entry under its key.
	Set(ctx context.Context, key core.Key, e *core.Entry) error

	// Delete removes one slot.
	Delete(ctx context.Context, key core.Key) error

	// Invalidate drops every entry whose key extends the prefix.
	Invalidate(ctx context.Context, prefix core.Key) error

	// Metrics returns the cache counters.
	Metrics() *core.Metrics

	// Close releases resources.
	Close() error
}

// CachingConfig controls entry lifetimes and sizing for both backends.
type CachingConfig struct {
	// TTL is the hard lifetime in seconds. Entries past it are gone.
	TTL int `mapstructure:"ttl"`

	// FreshTTL is the soft lifetime in seconds. Entries between fresh
	// and hard TTL are served stale while a background refresh runs.
	// Zero disables stale-while-revalidate.
	FreshTTL int `mapstructure:"fresh_ttl"`

	// MaxEntries bounds the memory backend's LRU.
	MaxEntries int `mapstructure:"max_entries"`
}

// storeAdapter exposes a Cache as the engine's core.Store. Staleness
// is reported to onStale so the refresh pool can revalidate without
// blocking the read.
type storeAdapter struct {
	cache   Cache
	onStale func(key core.Key)
}

var _ core.Store = (*storeAdapter)(nil)

func (a *storeAdapter) Get(ctx context.Context, key core.Key) (*core.Entry, bool) {
	e, isStale, found := a.cache.Get(ctx, key)
	if !found {
		return nil, false
	}
	if isStale && a.onStale != nil {
		a.onStale(key)
	}
	return e, true
}

func (a *storeAdapter) Set(ctx context.Context, key core.Key, e *core.Entry) error {
	return a.cache.Set(ctx, key, e)
}

func (a *storeAdapter) Delete(ctx context.Context, key core.Key) error {
	return a.cache.Delete(ctx, key)
}

func (a *storeAdapter) Invalidate(ctx context.Context, prefix core.Key) error {
	return a.cache.Invalidate(ctx, prefix)
}

func (a *storeAdapter) Metrics() *core.Metrics { return a.cache.Metrics() }
func (a *storeAdapter) Close() error           { return a.cache.Close() }

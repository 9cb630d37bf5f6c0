package core

import "context"

// Store is the query cache backend. The engine owns lifecycle and
// consistency; backends own storage, eviction and TTL. Implementations
// live in the service layer (memory LRU for a single process, Redis
// when several workers share one cache).
type Store interface {
	// Get retrieves the entry for a key. The second return is false
	// when the slot is empty or expired.
	Get(ctx context.Context, key Key) (*Entry, bool)

	// Set stores an entry under its key, replacing any prior value.
	Set(ctx context.Context, key Key, e *Entry) error

	// Delete removes the slot entirely. Used by rollback when the
	// snapshot recorded an absent slot.
	Delete(ctx context.Context, key Key) error

	// Invalidate drops every entry whose key has the given prefix, so
	// the next read triggers a fresh fetch.
	Invalidate(ctx context.Context, prefix Key) error

	// Metrics returns the backend's counters.
	Metrics() *Metrics

	// Close releases backend resources.
	Close() error
}

// Canceller aborts in-flight refetches so a slow, now-stale read
// cannot overwrite an optimistic patch after the fact. The Fetcher
// implements it; the Executor calls it before patching.
type Canceller interface {
	CancelPrefix(prefix Key)
}

// RestoreSnapshot puts every slot covered by the snapshot back to its
// recorded state: recorded entries are rewritten, slots recorded as
// absent are deleted. Rollback is all-or-nothing across the affected
// keys; the first backend error aborts and is returned, which only
// happens when the backend itself is down.
func RestoreSnapshot(ctx context.Context, store Store, snap *Snapshot) error {
	for _, key := range snap.Keys() {
		if e, ok := snap.Entry(key); ok {
			if err := store.Set(ctx, key, e.Clone()); err != nil {
				return err
			}
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

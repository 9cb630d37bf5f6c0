package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader performs the remote read for one key and returns the decoded
// JSON body.
type Loader func(ctx context.Context) (any, error)

// Fetcher is the read path: a read-through on the store with
// single-flight collapsing, so N concurrent readers of one key produce
// one network call. In-flight loads are tracked per key and can be
// cancelled by the mutation executor before it patches optimistically,
// which keeps a slow stale read from clobbering the patch when it
// finally lands.
type Fetcher struct {
	store   Store
	metrics *Metrics

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*inflightLoad
}

type inflightLoad struct {
	key    Key
	cancel context.CancelFunc
}

// NewFetcher creates a fetcher over the store.
func NewFetcher(store Store) *Fetcher {
	return &Fetcher{
		store:    store,
		metrics:  store.Metrics(),
		inflight: make(map[string]*inflightLoad),
	}
}

// Fetch returns the cached entry for key, loading it through the
// loader on a miss. Load failures are cached as error entries so the
// consuming view can render an inline retry; the next Fetch for the
// key retries the load.
func (f *Fetcher) Fetch(ctx context.Context, key Key, load Loader) (*Entry, error) {
	if e, ok := f.store.Get(ctx, key); ok && e.Status == StatusSuccess {
		return e, nil
	}

	hash := key.Hash()
	v, err, _ := f.group.Do(hash, func() (any, error) {
		return f.load(ctx, key, hash, load)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (f *Fetcher) load(ctx context.Context, key Key, hash string, load Loader) (*Entry, error) {
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.mu.Lock()
	f.inflight[hash] = &inflightLoad{key: key, cancel: cancel}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.inflight, hash)
		f.mu.Unlock()
	}()

	body, err := load(lctx)

	// A cancelled load means a mutation patched this key while we were
	// in flight. The response is stale by definition; drop it without
	// touching the store.
	if lctx.Err() != nil {
		return nil, lctx.Err()
	}

	if err != nil {
		e := &Entry{Key: key, Status: StatusError, Err: err, UpdatedAt: time.Now()}
		if serr := f.store.Set(ctx, key, e); serr != nil {
			return nil, serr
		}
		f.metrics.RecordError(ctx)
		return nil, err
	}

	coll, err := Normalize(body)
	if err != nil {
		f.metrics.RecordError(ctx)
		return nil, err
	}

	e := &Entry{Key: key, Data: &coll, Status: StatusSuccess, UpdatedAt: time.Now()}
	if err := f.store.Set(ctx, key, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CancelPrefix aborts every in-flight load whose key extends the
// prefix. Safe to call with no loads in flight.
func (f *Fetcher) CancelPrefix(prefix Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.inflight {
		if l.key.HasPrefix(prefix) {
			l.cancel()
		}
	}
}

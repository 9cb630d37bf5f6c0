package serv

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buildstate/fm-sync/core"
)

const (
	defaultRefreshWorkers = 4
	refreshQueueDepth     = 256
)

// refreshPool revalidates stale cache entries in the background.
// Reads that hit an entry past its fresh TTL are served immediately
// and the key is scheduled here; workers re-run the key's loader and
// overwrite the slot. A key with no registered loader, or one already
// queued, is skipped.
type refreshPool struct {
	store   core.Store
	cache   Cache
	log     *zap.SugaredLogger
	tasks   chan core.Key
	workers int

	mu      sync.Mutex
	loaders map[string]core.Loader
	queued  map[string]bool

	wg sync.WaitGroup
}

func newRefreshPool(store core.Store, workers int, log *zap.SugaredLogger) *refreshPool {
	if workers <= 0 {
		workers = defaultRefreshWorkers
	}
	return &refreshPool{
		store:   store,
		log:     log,
		tasks:   make(chan core.Key, refreshQueueDepth),
		workers: workers,
		loaders: make(map[string]core.Loader),
		queued:  make(map[string]bool),
	}
}

// register remembers how to reload a key. Called on every read-through
// so the pool always holds the latest loader for the keys it may see.
func (p *refreshPool) register(key core.Key, load core.Loader) {
	p.mu.Lock()
	p.loaders[key.Hash()] = load
	p.mu.Unlock()
}

// schedule queues a stale key for revalidation. Never blocks: when the
// queue is full the key is dropped and will be rescheduled by the next
// stale read.
func (p *refreshPool) schedule(key core.Key) {
	h := key.Hash()

	p.mu.Lock()
	if p.queued[h] || p.loaders[h] == nil {
		p.mu.Unlock()
		return
	}
	p.queued[h] = true
	p.mu.Unlock()

	select {
	case p.tasks <- key:
	default:
		p.mu.Lock()
		delete(p.queued, h)
		p.mu.Unlock()
	}
}

func (p *refreshPool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case key, ok := <-p.tasks:
					if !ok {
						return
					}
					p.revalidate(ctx, key)
				}
			}
		}()
	}
}

func (p *refreshPool) revalidate(ctx context.Context, key core.Key) {
	h := key.Hash()

	p.mu.Lock()
	load := p.loaders[h]
	p.mu.Unlock()

	// The key stays marked queued until the load settles so stale
	// reads racing this refresh cannot enqueue a second one.
	defer func() {
		p.mu.Lock()
		delete(p.queued, h)
		p.mu.Unlock()
	}()

	if load == nil {
		return
	}

	// Capture the slot's state before loading. The raw cache is read
	// here, not the adapter, so the check itself cannot reschedule.
	prev, _, prevFound := p.cache.Get(ctx, key)

	body, err := load(ctx)
	if err != nil {
		// The stale entry stays served until its hard TTL.
		p.log.Warnw("background refresh failed", "key", key.String(), "error", err)
		return
	}
	col, err := core.Normalize(body)
	if err != nil {
		p.log.Warnw("background refresh returned unusable data", "key", key.String(), "error", err)
		return
	}

	// A mutation may have patched, committed or invalidated this slot
	// while the load was in flight. Its write wins: a refresh response
	// loaded before the write is stale by definition and is dropped.
	cur, _, curFound := p.cache.Get(ctx, key)
	if curFound != prevFound || (curFound && !cur.UpdatedAt.Equal(prev.UpdatedAt)) {
		p.log.Debugw("refresh discarded, slot changed in flight", "key", key.String())
		return
	}

	e := &core.Entry{
		Key:       key,
		Data:      &col,
		Status:    core.StatusSuccess,
		UpdatedAt: time.Now(),
	}
	if err := p.store.Set(ctx, key, e); err != nil {
		p.log.Warnw("background refresh store write failed", "key", key.String(), "error", err)
	}
}

func (p *refreshPool) close() {
	close(p.tasks)
	p.wg.Wait()
}

package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcher_ReadThrough(t *testing.T) {
	store := newTestStore()
	f := NewFetcher(store)
	ctx := context.Background()
	key := Keys.Properties.List()

	var loads atomic.Int32
	load := func(ctx context.Context) (any, error) {
		loads.Add(1)
		return map[string]any{"items": []any{map[string]any{"id": "p1"}}}, nil
	}

	e, err := f.Fetch(ctx, key, load)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if e.Status != StatusSuccess || e.Data.Len() != 1 {
		t.Errorf("unexpected entry: %+v", e)
	}

	// Second fetch is a hit, no load.
	if _, err := f.Fetch(ctx, key, load); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if loads.Load() != 1 {
		t.Errorf("expected 1 load, got %d", loads.Load())
	}
	if store.metrics.Hits.Load() != 1 || store.metrics.Misses.Load() != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d",
			store.metrics.Hits.Load(), store.metrics.Misses.Load())
	}
}

func TestFetcher_SingleFlight(t *testing.T) {
	store := newTestStore()
	f := NewFetcher(store)
	ctx := context.Background()
	key := Keys.Jobs.List()

	var loads atomic.Int32
	gate := make(chan struct{})
	load := func(ctx context.Context) (any, error) {
		loads.Add(1)
		<-gate
		return []any{map[string]any{"id": "j1"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Fetch(ctx, key, load)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if loads.Load() != 1 {
		t.Errorf("expected concurrent fetches to collapse to 1 load, got %d", loads.Load())
	}
}

func TestFetcher_CancelPrefixDropsStaleLoad(t *testing.T) {
	store := newTestStore()
	f := NewFetcher(store)
	ctx := context.Background()
	key := Keys.Jobs.ByUnit("u1")

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		// Respond with data that is stale by the time it lands.
		return []any{map[string]any{"id": "j1", "status": JobOpen}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, key, load)
		done <- err
	}()

	<-started
	f.CancelPrefix(Keys.Jobs.All())
	close(release)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := store.Get(ctx, key); ok {
		t.Errorf("cancelled load must not write to the store")
	}
}

func TestFetcher_LoadErrorCachedForRetry(t *testing.T) {
	store := newTestStore()
	f := NewFetcher(store)
	ctx := context.Background()
	key := Keys.Tenants.List()

	boom := errors.New("500 internal")
	calls := 0
	load := func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return []any{map[string]any{"id": "t1"}}, nil
	}

	if _, err := f.Fetch(ctx, key, load); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}

	// The error entry is stored for inline display but a new fetch
	// retries the load.
	e, ok := store.Get(ctx, key)
	if !ok || e.Status != StatusError || !errors.Is(e.Err, boom) {
		t.Errorf("expected error entry cached, got %+v", e)
	}

	e, err := f.Fetch(ctx, key, load)
	if err != nil {
		t.Fatalf("retry fetch: %v", err)
	}
	if e.Status != StatusSuccess || e.Data.Len() != 1 {
		t.Errorf("retry did not replace error entry: %+v", e)
	}
}

package serv

import (
	"context"
	"testing"
	"time"

	"github.com/buildstate/fm-sync/core"
)

func testEntry(key core.Key, docs ...core.Doc) *core.Entry {
	col := core.Flat(docs)
	return &core.Entry{
		Key:       key,
		Data:      &col,
		Status:    core.StatusSuccess,
		UpdatedAt: time.Now(),
	}
}

func TestMemoryCacheBasicOperations(t *testing.T) {
	mc, err := NewMemoryCache(CachingConfig{TTL: 60})
	if err != nil {
		t.Fatal(err)
	}
	defer mc.Close()

	ctx := context.Background()
	key := core.Keys.Jobs.List()

	if _, _, found := mc.Get(ctx, key); found {
		t.Error("expected miss on empty cache")
	}

	e := testEntry(key, core.Doc{"id": "j1", "status": core.JobOpen})
	if err := mc.Set(ctx, key, e); err != nil {
		t.Fatal(err)
	}

	got, isStale, found := mc.Get(ctx, key)
	if !found {
		t.Fatal("expected hit after set")
	}
	if isStale {
		t.Error("fresh entry reported stale")
	}
	if got.Data.Len() != 1 {
		t.Errorf("expected 1 item, got %d", got.Data.Len())
	}

	if err := mc.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, _, found := mc.Get(ctx, key); found {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	mc, _ := NewMemoryCache(CachingConfig{TTL: 60})
	defer mc.Close()

	ctx := context.Background()
	key := core.Keys.Jobs.List()
	mc.Set(ctx, key, testEntry(key, core.Doc{"id": "j1", "status": core.JobOpen}))

	got, _, _ := mc.Get(ctx, key)
	got.Data.Items[0]["status"] = "MUTATED"

	again, _, _ := mc.Get(ctx, key)
	if again.Data.Items[0]["status"] != core.JobOpen {
		t.Error("cached entry was mutated through a returned copy")
	}
}

func TestMemoryCacheStaleAndExpiry(t *testing.T) {
	mc, _ := NewMemoryCache(CachingConfig{TTL: 3600, FreshTTL: 300})
	defer mc.Close()

	ctx := context.Background()
	key := core.Keys.Jobs.List()
	mc.Set(ctx, key, testEntry(key, core.Doc{"id": "j1"}))

	// Age the entry past the fresh TTL.
	wrapped, _ := mc.cache.Get(key.Hash())
	wrapped.freshUntil = time.Now().Add(-time.Minute).Unix()

	_, isStale, found := mc.Get(ctx, key)
	if !found {
		t.Fatal("stale entry should still be served")
	}
	if !isStale {
		t.Error("aged entry not reported stale")
	}

	// Age it past the hard TTL.
	wrapped.staleUntil = time.Now().Add(-time.Minute).Unix()
	if _, _, found := mc.Get(ctx, key); found {
		t.Error("expired entry was served")
	}
}

func TestMemoryCacheInvalidatePrefix(t *testing.T) {
	mc, _ := NewMemoryCache(CachingConfig{TTL: 60})
	defer mc.Close()

	ctx := context.Background()
	keys := []core.Key{
		core.Keys.Jobs.List(),
		core.Keys.Jobs.Detail("j1"),
		core.Keys.Jobs.ByUnit("u1"),
		core.Keys.Tenants.List(),
	}
	for _, k := range keys {
		mc.Set(ctx, k, testEntry(k, core.Doc{"id": "x"}))
	}

	if err := mc.Invalidate(ctx, core.Keys.Jobs.All()); err != nil {
		t.Fatal(err)
	}

	for _, k := range keys[:3] {
		if _, _, found := mc.Get(ctx, k); found {
			t.Errorf("key %s survived prefix invalidation", k)
		}
	}
	if _, _, found := mc.Get(ctx, core.Keys.Tenants.List()); !found {
		t.Error("unrelated key was invalidated")
	}

	if n := mc.Metrics().Invalidations.Load(); n != 3 {
		t.Errorf("expected 3 invalidations recorded, got %d", n)
	}
}

func TestMemoryCacheEvictionCleansIndex(t *testing.T) {
	mc, _ := NewMemoryCache(CachingConfig{TTL: 60, MaxEntries: 2})
	defer mc.Close()

	ctx := context.Background()
	k1 := core.Keys.Jobs.Detail("j1")
	k2 := core.Keys.Jobs.Detail("j2")
	k3 := core.Keys.Jobs.Detail("j3")

	mc.Set(ctx, k1, testEntry(k1, core.Doc{"id": "j1"}))
	mc.Set(ctx, k2, testEntry(k2, core.Doc{"id": "j2"}))
	mc.Set(ctx, k3, testEntry(k3, core.Doc{"id": "j3"}))

	mc.mu.Lock()
	n := len(mc.keyIndex)
	mc.mu.Unlock()
	if n != 2 {
		t.Errorf("key index holds %d entries after eviction, want 2", n)
	}
	if _, _, found := mc.Get(ctx, k1); found {
		t.Error("oldest entry should have been evicted")
	}
}

package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MutationState is the lifecycle of one mutation attempt. Success and
// Error are both terminal; a retry is always a fresh attempt with a
// fresh snapshot.
type MutationState string

const (
	MutationIdle    MutationState = "idle"
	MutationPending MutationState = "pending"
	MutationSuccess MutationState = "success"
	MutationError   MutationState = "error"
)

// CommitMode selects how the cache is reconciled after a successful
// write.
type CommitMode uint8

const (
	// CommitReplace merges the server's authoritative document over the
	// optimistic one in every affected key. Falls back to invalidation
	// when the response carries no single document.
	CommitReplace CommitMode = iota

	// CommitInvalidate drops the affected keys so the next read
	// refetches.
	CommitInvalidate
)

// Mutation describes one client-initiated write.
type Mutation struct {
	// Name appears in logs and errors, e.g. "jobs.updateStatus".
	Name string

	// Affects lists every cache key the write touches. The optimistic
	// patch, snapshot, rollback and commit all operate on this set.
	Affects []Key

	// Validate runs before anything else. A non-nil error rejects the
	// mutation with no cache write and no network call.
	Validate func() error

	// Patch is the optimistic change applied to each affected key
	// before the network call. Optional.
	Patch Patch

	// Do performs the remote write and returns the decoded response
	// body.
	Do func(ctx context.Context) (any, error)

	// Commit selects the reconciliation policy on success.
	Commit CommitMode

	// Invalidates lists additional key prefixes to drop on success,
	// beyond the affected keys themselves. A job status change, for
	// example, also invalidates the unit-scoped job lists.
	Invalidates []Key
}

// Result is the terminal outcome of one Execute call.
type Result struct {
	State    MutationState
	Response any
}

// Executor runs mutations while keeping the store optimistically
// consistent: snapshot, patch, write, then reconcile or roll back.
// Writes against the same key are serialized by per-key locks, and
// total in-flight mutations are bounded so rapid-fire usage cannot
// hold an unbounded number of snapshots.
type Executor struct {
	store     Store
	canceller Canceller
	metrics   *Metrics
	log       *zap.SugaredLogger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	sem chan struct{}
}

// DefaultMaxInflight bounds concurrent mutation attempts, and with
// them the number of live rollback snapshots.
const DefaultMaxInflight = 32

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// OptionSetCanceller wires the fetcher so in-flight refetches of
// affected keys are aborted before patching.
func OptionSetCanceller(c Canceller) ExecutorOption {
	return func(e *Executor) { e.canceller = c }
}

// OptionSetLogger sets the executor's logger.
func OptionSetLogger(log *zap.SugaredLogger) ExecutorOption {
	return func(e *Executor) { e.log = log }
}

// OptionSetMaxInflight bounds concurrent mutations.
func OptionSetMaxInflight(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// NewExecutor creates an executor over the store.
func NewExecutor(store Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:   store,
		metrics: store.Metrics(),
		log:     zap.NewNop().Sugar(),
		locks:   make(map[string]*sync.Mutex),
		sem:     make(chan struct{}, DefaultMaxInflight),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one mutation attempt through the full lifecycle:
//
//  1. client-side validation, rejecting before any cache touch
//  2. per-key locks, acquired in sorted order
//  3. cancel in-flight refetches for the affected keys
//  4. snapshot every affected entry
//  5. apply the optimistic patch
//  6. perform the remote write
//  7. on success, commit (replace or invalidate); on failure, restore
//     the snapshot exactly and return the error
//
// Locks are released on every exit path.
func (ex *Executor) Execute(ctx context.Context, m Mutation) (Result, error) {
	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			return Result{State: MutationError}, fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	if m.Do == nil {
		return Result{State: MutationError}, fmt.Errorf("%s: mutation has no Do", m.Name)
	}

	select {
	case ex.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{State: MutationError}, ctx.Err()
	}
	defer func() { <-ex.sem }()

	unlock := ex.lockKeys(m.Affects)
	defer unlock()

	if ex.canceller != nil {
		for _, key := range m.Affects {
			ex.canceller.CancelPrefix(key)
		}
	}

	snap := NewSnapshot(m.Affects)
	for _, key := range m.Affects {
		if e, ok := ex.store.Get(ctx, key); ok {
			snap.Record(key, e)
		} else {
			snap.Record(key, nil)
		}
	}

	if m.Patch != nil {
		ex.applyPatch(ctx, m.Affects, m.Patch)
	}

	resp, err := m.Do(ctx)
	if err != nil {
		if rerr := RestoreSnapshot(ctx, ex.store, snap); rerr != nil {
			ex.log.Errorw("rollback failed", "mutation", m.Name, "error", rerr)
			ex.metrics.RecordError(ctx)
		}
		ex.metrics.RecordRollback(ctx)
		ex.log.Debugw("mutation rolled back", "mutation", m.Name, "error", err)
		return Result{State: MutationError}, fmt.Errorf("%s: %w", m.Name, err)
	}

	if err := ex.commit(ctx, m, resp); err != nil {
		return Result{State: MutationError, Response: resp}, fmt.Errorf("%s: %w", m.Name, err)
	}
	return Result{State: MutationSuccess, Response: resp}, nil
}

// applyPatch writes the patched collection into every affected key
// that currently holds data. Entries the patch does not change keep
// their stored value untouched.
func (ex *Executor) applyPatch(ctx context.Context, keys []Key, p Patch) {
	applied := false
	for _, key := range keys {
		e, ok := ex.store.Get(ctx, key)
		if !ok || e.Data == nil {
			continue
		}
		patched, changed := p.Apply(*e.Data)
		if !changed {
			continue
		}
		ex.store.Set(ctx, key, &Entry{
			Key:       key,
			Data:      &patched,
			Status:    e.Status,
			UpdatedAt: time.Now(),
		})
		applied = true
	}
	if applied {
		ex.metrics.RecordOptimisticApply(ctx)
	}
}

// commit reconciles the cache after a successful write. Stale
// optimistic data must never stay cached: replace merges the server
// document where possible and invalidates otherwise.
func (ex *Executor) commit(ctx context.Context, m Mutation, resp any) error {
	invalidate := func(keys []Key) error {
		for _, key := range keys {
			if err := ex.store.Invalidate(ctx, key); err != nil {
				return err
			}
		}
		return nil
	}

	switch m.Commit {
	case CommitInvalidate:
		if err := invalidate(m.Affects); err != nil {
			return err
		}
	default:
		doc, ok := singleDoc(resp)
		if !ok {
			if err := invalidate(m.Affects); err != nil {
				return err
			}
			break
		}
		p := replaceDocPatch{doc: doc}
		for _, key := range m.Affects {
			e, ok := ex.store.Get(ctx, key)
			if !ok || e.Data == nil {
				continue
			}
			patched, changed := p.Apply(*e.Data)
			if !changed {
				continue
			}
			if err := ex.store.Set(ctx, key, &Entry{
				Key:       key,
				Data:      &patched,
				Status:    e.Status,
				UpdatedAt: time.Now(),
			}); err != nil {
				return err
			}
		}
	}
	return invalidate(m.Invalidates)
}

// singleDoc extracts the authoritative document from a mutation
// response when the envelope carries exactly one entity with an id.
func singleDoc(resp any) (Doc, bool) {
	coll, err := Normalize(resp)
	if err != nil || coll.Shape != ShapeFlat || len(coll.Items) != 1 {
		return nil, false
	}
	doc := coll.Items[0]
	if doc.ID() == "" {
		return nil, false
	}
	return doc, true
}

// replaceDocPatch swaps the matched document for the server's
// authoritative copy, id match, whole-document replace.
type replaceDocPatch struct {
	doc Doc
}

func (p replaceDocPatch) Apply(c Collection) (Collection, bool) {
	id := p.doc.ID()

	replace := func(items []Doc) ([]Doc, bool) {
		for i, d := range items {
			if d.ID() != id {
				continue
			}
			n := make([]Doc, len(items))
			copy(n, items)
			n[i] = p.doc.Clone()
			return n, true
		}
		return items, false
	}

	if c.Shape == ShapeFlat {
		items, changed := replace(c.Items)
		if !changed {
			return c, false
		}
		return Collection{Shape: ShapeFlat, Items: items}, true
	}
	for i, page := range c.Pages {
		items, changed := replace(page.Items)
		if !changed {
			continue
		}
		pages := make([]Page, len(c.Pages))
		copy(pages, c.Pages)
		pages[i] = Page{Items: items, Cursor: page.Cursor}
		return Collection{Shape: ShapePaginated, Pages: pages}, true
	}
	return c, false
}

// lockKeys acquires one mutex per distinct affected key, in sorted
// hash order so two mutations over overlapping key sets cannot
// deadlock. The returned func releases them in reverse order.
func (ex *Executor) lockKeys(keys []Key) func() {
	hashes := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		h := key.Hash()
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)

	acquired := make([]*sync.Mutex, 0, len(hashes))
	for _, h := range hashes {
		ex.lockMu.Lock()
		mu, ok := ex.locks[h]
		if !ok {
			mu = &sync.Mutex{}
			ex.locks[h] = mu
		}
		ex.lockMu.Unlock()
		mu.Lock()
		acquired = append(acquired, mu)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

package core

import "time"

// Status is the fetch lifecycle state of a cache entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is the stored value for one Key. Entries are created on first
// fetch, replaced on every subsequent fetch or optimistic patch, and
// evicted only by the owning store.
type Entry struct {
	Key       Key
	Data      *Collection
	Status    Status
	Err       error
	UpdatedAt time.Time
}

// Clone returns a deep copy of the entry. The copy shares nothing with
// the original, so a snapshot taken before an optimistic patch can be
// restored exactly.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	n := &Entry{
		Key:       append(Key(nil), e.Key...),
		Status:    e.Status,
		Err:       e.Err,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Data != nil {
		c := e.Data.Clone()
		n.Data = &c
	}
	return n
}

// Snapshot holds the pre-mutation state of every affected key. It is
// created at the start of a mutation attempt, consumed at most once on
// rollback, and discarded on success.
type Snapshot struct {
	entries map[string]*Entry // Key.Hash() -> deep copy, nil for absent slots
	keys    []Key
}

// NewSnapshot builds an empty snapshot for the given keys.
func NewSnapshot(keys []Key) *Snapshot {
	return &Snapshot{
		entries: make(map[string]*Entry, len(keys)),
		keys:    keys,
	}
}

// Record stores the pre-mutation entry for a key. A nil entry records
// that the slot was absent, so rollback can delete it again.
func (s *Snapshot) Record(key Key, e *Entry) {
	s.entries[key.Hash()] = e.Clone()
}

// Entry returns the recorded copy for a key and whether the slot held
// a value when the snapshot was taken.
func (s *Snapshot) Entry(key Key) (*Entry, bool) {
	e, ok := s.entries[key.Hash()]
	return e, ok && e != nil
}

// Keys returns the keys covered by the snapshot.
func (s *Snapshot) Keys() []Key { return s.keys }

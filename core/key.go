package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// missingSegment stands in for an empty or zero scope argument so that
// key construction never fails. A component may build its keys before
// its data is available; the resulting key is stable and distinct from
// any real scope.
const missingSegment = "~missing"

// Key identifies one cache slot. It is an ordered sequence of segments:
// entity type first, then progressively narrower scope values. A broad
// scope key is always a structural prefix of the narrower keys derived
// from it, so invalidating the broad key covers every narrower slot.
type Key []string

// NewKey builds a key from raw segments, substituting missingSegment
// for empty values.
func NewKey(segments ...string) Key {
	k := make(Key, len(segments))
	for i, s := range segments {
		if s == "" {
			s = missingSegment
		}
		k[i] = s
	}
	return k
}

// Extend returns a new key with extra segments appended. The receiver
// is not modified.
func (k Key) Extend(segments ...string) Key {
	n := make(Key, 0, len(k)+len(segments))
	n = append(n, k...)
	return append(n, NewKey(segments...)...)
}

// HasPrefix reports whether prefix is a structural prefix of k. Every
// key is a prefix of itself.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, s := range prefix {
		if k[i] != s {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// String returns the human-readable form used in logs.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Hash returns the backend slot identifier for the key. Segments are
// length-prefixed before hashing so that ["ab","c"] and ["a","bc"]
// cannot collide.
func (k Key) Hash() string {
	h := sha256.New()
	for _, s := range k {
		var lenBuf [4]byte
		lenBuf[0] = byte(len(s) >> 24)
		lenBuf[1] = byte(len(s) >> 16)
		lenBuf[2] = byte(len(s) >> 8)
		lenBuf[3] = byte(len(s))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Keys is the registry of key constructors used across the app. Each
// entity gets a scope type whose methods derive keys for it. The
// constructors are pure and never panic; invalid scope arguments
// produce a stable placeholder segment instead.
var Keys = keyRegistry{
	Properties:      entityScope{"properties"},
	Units:           entityScope{"units"},
	Tenants:         entityScope{"tenants"},
	Jobs:            entityScope{"jobs"},
	Inspections:     inspectionScope{entityScope{"inspections"}},
	ServiceRequests: entityScope{"service_requests"},
	Billing:         entityScope{"billing"},
	Blog:            entityScope{"blog"},
	Team:            teamScope{entityScope{"team"}},
}

type keyRegistry struct {
	Properties      entityScope
	Units           entityScope
	Tenants         entityScope
	Jobs            entityScope
	Inspections     inspectionScope
	ServiceRequests entityScope
	Billing         entityScope
	Blog            entityScope
	Team            teamScope
}

type entityScope struct {
	entity string
}

// Entity returns the entity type segment for this scope.
func (s entityScope) Entity() string { return s.entity }

// All keys the full collection for the entity. It is the invalidation
// prefix for every narrower scope below.
func (s entityScope) All() Key {
	return NewKey(s.entity)
}

// List keys the default list view.
func (s entityScope) List() Key {
	return s.All().Extend("list")
}

// Detail keys a single entity by id.
func (s entityScope) Detail(id string) Key {
	return s.All().Extend("detail", id)
}

// ByProperty keys the entity collection scoped to one property.
func (s entityScope) ByProperty(propertyID string) Key {
	return s.All().Extend("property", propertyID)
}

// ByUnit keys the entity collection scoped to one unit.
func (s entityScope) ByUnit(unitID string) Key {
	return s.All().Extend("unit", unitID)
}

// Comments keys the comment thread of one entity.
func (s entityScope) Comments(id string) Key {
	return s.Detail(id).Extend("comments")
}

type inspectionScope struct {
	entityScope
}

// Rooms keys the room list of one inspection.
func (s inspectionScope) Rooms(inspectionID string) Key {
	return s.Detail(inspectionID).Extend("rooms")
}

// Issues keys the issues recorded for one room.
func (s inspectionScope) Issues(inspectionID, roomID string) Key {
	return s.Rooms(inspectionID).Extend(roomID, "issues")
}

// Photos keys the photos attached to one room.
func (s inspectionScope) Photos(inspectionID, roomID string) Key {
	return s.Rooms(inspectionID).Extend(roomID, "photos")
}

type teamScope struct {
	entityScope
}

// Invites keys the pending invite list.
func (s teamScope) Invites() Key {
	return s.All().Extend("invites")
}

// Members keys the member list.
func (s teamScope) Members() Key {
	return s.All().Extend("members")
}

// Package changelog implements the grouped set of added/modified/deleted
// item states and modified reference bundles that a session presents to
// the shared item-state manager for a single commit.
package changelog

import (
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
)

// ChangeLog is a commit unit: three deduped, ordered sets of item states
// plus a set of modified reference bundles keyed by target UUID. It is not
// thread-safe; it is owned by exactly one session.
type ChangeLog struct {
	addedOrder    []itemid.ItemId
	added         map[itemid.ItemId]itemstate.ItemState
	modifiedOrder []itemid.ItemId
	modified      map[itemid.ItemId]itemstate.ItemState
	deletedOrder  []itemid.ItemId
	deleted       map[itemid.ItemId]itemstate.ItemState

	modifiedRefsOrder []itemid.NodeReferencesId
	modifiedRefs      map[itemid.NodeReferencesId]*refs.NodeReferences
}

// New returns an empty change log.
func New() *ChangeLog {
	return &ChangeLog{
		added:        make(map[itemid.ItemId]itemstate.ItemState),
		modified:     make(map[itemid.ItemId]itemstate.ItemState),
		deleted:      make(map[itemid.ItemId]itemstate.ItemState),
		modifiedRefs: make(map[itemid.NodeReferencesId]*refs.NodeReferences),
	}
}

// Added records s as added, deduped by id.
func (c *ChangeLog) Added(s itemstate.ItemState) {
	id := s.ID()
	if _, exists := c.added[id]; !exists {
		c.addedOrder = append(c.addedOrder, id)
	}
	c.added[id] = s
}

// Modified records s as modified, deduped by id.
func (c *ChangeLog) Modified(s itemstate.ItemState) {
	id := s.ID()
	if _, exists := c.modified[id]; !exists {
		c.modifiedOrder = append(c.modifiedOrder, id)
	}
	c.modified[id] = s
}

// Deleted records s as deleted, deduped by id.
func (c *ChangeLog) Deleted(s itemstate.ItemState) {
	id := s.ID()
	if _, exists := c.deleted[id]; !exists {
		c.deletedOrder = append(c.deletedOrder, id)
	}
	c.deleted[id] = s
}

// ModifiedRefs records a reference bundle as modified, deduped by target
// UUID.
func (c *ChangeLog) ModifiedRefs(r *refs.NodeReferences) {
	id := r.ID
	if _, exists := c.modifiedRefs[id]; !exists {
		c.modifiedRefsOrder = append(c.modifiedRefsOrder, id)
	}
	c.modifiedRefs[id] = r
}

// AddedStates returns the added item states in insertion order.
func (c *ChangeLog) AddedStates() []itemstate.ItemState { return c.collect(c.addedOrder, c.added) }

// ModifiedStates returns the modified item states in insertion order.
func (c *ChangeLog) ModifiedStates() []itemstate.ItemState {
	return c.collect(c.modifiedOrder, c.modified)
}

// DeletedStates returns the deleted item states in insertion order.
func (c *ChangeLog) DeletedStates() []itemstate.ItemState {
	return c.collect(c.deletedOrder, c.deleted)
}

// ModifiedRefsList returns the modified reference bundles in insertion
// order.
func (c *ChangeLog) ModifiedRefsList() []*refs.NodeReferences {
	out := make([]*refs.NodeReferences, 0, len(c.modifiedRefsOrder))
	for _, id := range c.modifiedRefsOrder {
		out = append(out, c.modifiedRefs[id])
	}
	return out
}

func (c *ChangeLog) collect(order []itemid.ItemId, m map[itemid.ItemId]itemstate.ItemState) []itemstate.ItemState {
	out := make([]itemstate.ItemState, 0, len(order))
	for _, id := range order {
		out = append(out, m[id])
	}
	return out
}

// Get looks up an item state by id across all three sets, added taking
// precedence over modified, then deleted.
func (c *ChangeLog) Get(id itemid.ItemId) (itemstate.ItemState, bool) {
	if s, ok := c.added[id]; ok {
		return s, true
	}
	if s, ok := c.modified[id]; ok {
		return s, true
	}
	if s, ok := c.deleted[id]; ok {
		return s, true
	}
	return nil, false
}

// IsDeleted reports whether id is recorded as deleted in this log.
func (c *ChangeLog) IsDeleted(id itemid.ItemId) bool {
	_, ok := c.deleted[id]
	return ok
}

// Push copies transient data into the shared peer of every connected state
// in the log. Every state must already be connected (see Connect in the
// manager's reconnection phase).
func (c *ChangeLog) Push() {
	for _, s := range c.AddedStates() {
		s.Push()
	}
	for _, s := range c.ModifiedStates() {
		s.Push()
	}
	// deleted states carry no forward data; their shared peer transitions
	// to EXISTING_REMOVED purely via status, handled in the manager.
}

// Persisted invokes the post-commit status transition on every state in
// the log. Intended to be called on the shared-side log built during
// reconnection, not on the original local log.
func (c *ChangeLog) Persisted() {
	for _, s := range c.AddedStates() {
		s.Persisted()
	}
	for _, s := range c.ModifiedStates() {
		s.Persisted()
	}
	for _, s := range c.DeletedStates() {
		s.Persisted()
	}
}

// Reset discards all recorded changes, returning the log to empty.
func (c *ChangeLog) Reset() {
	*c = *New()
}

// Empty reports whether the log has no added, modified, or deleted states
// and no modified reference bundles.
func (c *ChangeLog) Empty() bool {
	return len(c.added) == 0 && len(c.modified) == 0 && len(c.deleted) == 0 && len(c.modifiedRefs) == 0
}

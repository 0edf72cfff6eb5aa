// Package refs implements the reference bundle: the set of REFERENCE
// property back-pointers to a target node UUID.
package refs

import (
	"jcrcore/internal/itemid"
)

// NodeReferences is the set of PropertyIds that hold a REFERENCE value
// pointing at ID.TargetUUID. It is not cached by the manager by design:
// the commit path is the only writer and re-reads it per commit.
type NodeReferences struct {
	ID         itemid.NodeReferencesId
	References []itemid.ItemId
}

// New returns an empty bundle for the given target node.
func New(id itemid.NodeReferencesId) *NodeReferences {
	return &NodeReferences{ID: id}
}

// HasReferences reports whether any reference remains in the bundle.
func (r *NodeReferences) HasReferences() bool {
	return len(r.References) > 0
}

// AddReference appends a back-pointer, deduped by equality.
func (r *NodeReferences) AddReference(source itemid.ItemId) {
	for _, existing := range r.References {
		if existing == source {
			return
		}
	}
	r.References = append(r.References, source)
}

// RemoveReference removes a back-pointer if present.
func (r *NodeReferences) RemoveReference(source itemid.ItemId) {
	for i, existing := range r.References {
		if existing == source {
			r.References = append(r.References[:i], r.References[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy.
func (r *NodeReferences) Clone() *NodeReferences {
	cp := &NodeReferences{ID: r.ID}
	cp.References = append([]itemid.ItemId(nil), r.References...)
	return cp
}

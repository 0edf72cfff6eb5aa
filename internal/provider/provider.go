// Package provider defines the virtual provider capability (C6): a
// pluggable overlay that owns a subtree rooted at a virtual root id plus
// arbitrary extra item ids, and owns its own reference bundles for the
// nodes it hosts.
package provider

import (
	"github.com/google/uuid"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
	"jcrcore/internal/value"
)

// Provider is the capability set the manager requires of a virtual
// overlay. Implementations must never return or accept states whose id
// collides with a UUID known to the base persistence layer.
type Provider interface {
	// IsVirtualRoot reports whether id is this provider's virtual root.
	IsVirtualRoot(id itemid.ItemId) bool
	// VirtualRootID returns the node id this provider overlays at.
	VirtualRootID() itemid.ItemId

	HasItemState(id itemid.ItemId) bool
	GetItemState(id itemid.ItemId) (itemstate.ItemState, error)

	HasNodeState(id uuid.UUID) bool
	GetNodeState(id uuid.UUID) (*itemstate.NodeState, error)

	HasPropertyState(id itemid.ItemId) bool
	GetPropertyState(id itemid.ItemId) (*itemstate.PropertyState, error)

	GetNodeReferences(id itemid.NodeReferencesId) (*refs.NodeReferences, error)
	// SetNodeReferences accepts bundle if its target belongs to this
	// provider, returning true on acceptance. A provider that does not
	// own the target returns false without error.
	SetNodeReferences(bundle *refs.NodeReferences) bool

	CreateNodeState(parent uuid.UUID, name itemid.QName, id uuid.UUID, nodeType itemid.QName) (*itemstate.NodeState, error)
	CreatePropertyState(parent uuid.UUID, name itemid.QName, valueType value.Type, multiValued bool) (*itemstate.PropertyState, error)
}

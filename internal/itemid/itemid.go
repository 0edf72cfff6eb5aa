// Package itemid defines the identity model for items in the shared
// content tree: namespace-qualified names, node UUIDs, and the tagged
// NodeId/PropertyId variant used throughout the manager and persistence
// layers.
package itemid

import (
	"fmt"

	"github.com/google/uuid"
)

// QName is a namespace-qualified name: a namespace URI plus a local name.
type QName struct {
	URI   string
	Local string
}

// String renders the QName in expanded Clark-notation form, e.g. "{uri}local".
func (q QName) String() string {
	if q.URI == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.URI, q.Local)
}

// NewUUID generates a fresh random node UUID.
func NewUUID() uuid.UUID {
	return uuid.New()
}

// ParseUUID parses a canonical UUID string.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// ItemId is a tagged variant identifying either a node (by UUID) or a
// property (by parent UUID plus qualified name). It is comparable and
// usable as a map key.
type ItemId struct {
	nodeUUID   uuid.UUID
	parentUUID uuid.UUID
	name       QName
	isNode     bool
}

// NodeId constructs an ItemId denoting a node identified by its UUID.
func NodeId(id uuid.UUID) ItemId {
	return ItemId{nodeUUID: id, isNode: true}
}

// PropertyId constructs an ItemId denoting a property identified by its
// parent node's UUID plus a qualified name.
func PropertyId(parentUUID uuid.UUID, name QName) ItemId {
	return ItemId{parentUUID: parentUUID, name: name, isNode: false}
}

// DenotesNode reports whether id identifies a node (true) or a property
// (false). Total over all valid ItemId values.
func (id ItemId) DenotesNode() bool {
	return id.isNode
}

// UUID returns the node UUID for a node id. It panics if id does not
// denote a node; callers must check DenotesNode first.
func (id ItemId) UUID() uuid.UUID {
	if !id.isNode {
		panic("itemid: UUID() called on a property id")
	}
	return id.nodeUUID
}

// ParentUUID returns the owning node's UUID for a property id. It panics
// if id does not denote a property.
func (id ItemId) ParentUUID() uuid.UUID {
	if id.isNode {
		panic("itemid: ParentUUID() called on a node id")
	}
	return id.parentUUID
}

// Name returns the qualified name for a property id. It panics if id does
// not denote a property.
func (id ItemId) Name() QName {
	if id.isNode {
		panic("itemid: Name() called on a node id")
	}
	return id.name
}

// String renders a human-readable identity, used in logs and error
// messages only — never parsed back.
func (id ItemId) String() string {
	if id.isNode {
		return id.nodeUUID.String()
	}
	return fmt.Sprintf("%s/%s", id.parentUUID, id.name)
}

// NodeReferencesId keys a reference bundle by the UUID of the node it
// targets.
type NodeReferencesId struct {
	TargetUUID uuid.UUID
}

// String renders the reference bundle id for logs.
func (id NodeReferencesId) String() string {
	return "refs:" + id.TargetUUID.String()
}

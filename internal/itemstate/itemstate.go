// Package itemstate implements the in-memory representation of a node or
// property, its status machine, and the transient/shared overlay
// relationship described by the manager's commit protocol.
package itemstate

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"jcrcore/internal/itemid"
	"jcrcore/internal/value"
)

// Status is the lifecycle state of an item state, shared or transient.
type Status int

// Status values. For any cached shared state, Status is always one of
// StatusExisting or StatusExistingModified.
const (
	StatusUndefined Status = iota
	StatusNew
	StatusExisting
	StatusExistingModified
	StatusExistingRemoved
	StatusStaleModified
	StatusStaleDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusExisting:
		return "EXISTING"
	case StatusExistingModified:
		return "EXISTING_MODIFIED"
	case StatusExistingRemoved:
		return "EXISTING_REMOVED"
	case StatusStaleModified:
		return "STALE_MODIFIED"
	case StatusStaleDestroyed:
		return "STALE_DESTROYED"
	default:
		return "UNDEFINED"
	}
}

// Listener receives lifecycle notifications from an item state. A state's
// listener set is registered once at load/create time and removed on
// destruction; registration must be order-independent and duplicate-safe.
type Listener interface {
	StateCreated(s ItemState)
	StateModified(s ItemState)
	StateDestroyed(s ItemState)
	StateDiscarded(s ItemState)
}

// ItemState is implemented by *NodeState and *PropertyState. It carries the
// fields and transitions common to both: identity, status, the overlay
// (transient-over-shared) relationship, and the listener set.
type ItemState interface {
	ID() itemid.ItemId
	IsNode() bool
	Status() Status
	SetStatus(Status)
	DefinitionID() string
	SetDefinitionID(string)

	// Overlay returns the shared peer this state overlays, or nil if this
	// state is itself a shared state (or not yet connected).
	Overlay() ItemState

	// Connect binds this (transient) state to its shared peer. It is a
	// one-shot operation: calling it twice is a programming error.
	Connect(shared ItemState) error

	// Push copies this state's working data into its overlayed shared
	// peer. Valid only after Connect.
	Push()

	// Persisted transitions status following a successful durable store
	// and fires the corresponding listener notification.
	Persisted()

	// Discard signals an externally caused invalidation (e.g. a virtual
	// provider replacing its root) and fires StateDiscarded.
	Discard()

	AddListener(l Listener)
	RemoveListener(l Listener)
	Listeners() []Listener
}

// base holds the fields and behavior shared by NodeState and PropertyState.
// It is never used standalone.
type base struct {
	mu           sync.Mutex
	id           itemid.ItemId
	status       Status
	definitionID string
	overlay      ItemState
	listeners    []Listener
}

func (b *base) ID() itemid.ItemId           { return b.id }
func (b *base) Status() Status              { return b.status }
func (b *base) SetStatus(s Status)          { b.status = s }
func (b *base) DefinitionID() string        { return b.definitionID }
func (b *base) SetDefinitionID(id string)   { b.definitionID = id }
func (b *base) Overlay() ItemState          { return b.overlay }

func (b *base) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing == l {
			return
		}
	}
	b.listeners = append(b.listeners, l)
}

func (b *base) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *base) Listeners() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Listener(nil), b.listeners...)
}

func (b *base) connect(shared ItemState) error {
	if b.overlay != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, b.id)
	}
	b.overlay = shared
	return nil
}

// persisted applies the shared-state status transition table from the
// commit protocol's Phase F and fires the matching listener notification.
// self must be the ItemState wrapper (NodeState/PropertyState) so listeners
// receive the concrete value, not the embedded base.
func (b *base) persisted(self ItemState) {
	switch b.status {
	case StatusNew:
		b.status = StatusExisting
		for _, l := range b.Listeners() {
			l.StateCreated(self)
		}
	case StatusExistingModified:
		b.status = StatusExisting
		for _, l := range b.Listeners() {
			l.StateModified(self)
		}
	case StatusExistingRemoved:
		b.status = StatusStaleDestroyed
		for _, l := range b.Listeners() {
			l.StateDestroyed(self)
		}
	default:
		// Existing/unmodified shared states are not touched by a commit
		// that did not include them.
	}
}

func (b *base) discard(self ItemState) {
	for _, l := range b.Listeners() {
		l.StateDiscarded(self)
	}
}

// ChildEntry is one ordered child-node reference of a NodeState: its
// qualified name, the child's UUID, and its 1-based index among same-named
// siblings.
type ChildEntry struct {
	Name  itemid.QName
	UUID  uuid.UUID
	Index int
}

// NodeState is the in-memory representation of a node.
type NodeState struct {
	base

	UUID          uuid.UUID
	ParentUUID    uuid.UUID
	HasParent     bool // false only for the repository root
	NodeTypeName  itemid.QName
	MixinTypes    []itemid.QName
	Children      []ChildEntry
	PropertyNames []itemid.QName
}

// NewNodeState constructs a NodeState with status StatusNew, ready to be
// filled in by a session before being presented in a change log.
func NewNodeState(id uuid.UUID) *NodeState {
	n := &NodeState{UUID: id}
	n.base.id = itemid.NodeId(id)
	n.base.status = StatusNew
	return n
}

func (n *NodeState) IsNode() bool { return true }

func (n *NodeState) Connect(shared ItemState) error {
	if _, ok := shared.(*NodeState); !ok {
		return fmt.Errorf("itemstate: cannot connect node state to %T", shared)
	}
	return n.base.connect(shared)
}

// Push copies this node's working fields into its overlayed shared peer.
func (n *NodeState) Push() {
	shared := n.base.overlay.(*NodeState)
	shared.ParentUUID = n.ParentUUID
	shared.HasParent = n.HasParent
	shared.NodeTypeName = n.NodeTypeName
	shared.MixinTypes = append([]itemid.QName(nil), n.MixinTypes...)
	shared.Children = append([]ChildEntry(nil), n.Children...)
	shared.PropertyNames = append([]itemid.QName(nil), n.PropertyNames...)
	shared.definitionID = n.definitionID
}

func (n *NodeState) Persisted() { n.base.persisted(n) }
func (n *NodeState) Discard()   { n.base.discard(n) }

// AddChild inserts a child entry, assigning the next ascending 1-based
// index among same-named siblings, preserving insertion order.
func (n *NodeState) AddChild(name itemid.QName, childUUID uuid.UUID) {
	maxIndex := 0
	for _, c := range n.Children {
		if c.Name == name && c.Index > maxIndex {
			maxIndex = c.Index
		}
	}
	n.Children = append(n.Children, ChildEntry{Name: name, UUID: childUUID, Index: maxIndex + 1})
}

// RemoveChild removes the first matching child entry by name and UUID.
func (n *NodeState) RemoveChild(name itemid.QName, childUUID uuid.UUID) bool {
	for i, c := range n.Children {
		if c.Name == name && c.UUID == childUUID {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep, disconnected copy for cache-friendly read access
// and for seeding a new transient overlay.
func (n *NodeState) Clone() *NodeState {
	cp := &NodeState{
		UUID:         n.UUID,
		ParentUUID:   n.ParentUUID,
		HasParent:    n.HasParent,
		NodeTypeName: n.NodeTypeName,
	}
	cp.base.id = n.base.id
	cp.base.status = n.base.status
	cp.base.definitionID = n.base.definitionID
	cp.MixinTypes = append([]itemid.QName(nil), n.MixinTypes...)
	cp.Children = append([]ChildEntry(nil), n.Children...)
	cp.PropertyNames = append([]itemid.QName(nil), n.PropertyNames...)
	return cp
}

// PropertyState is the in-memory representation of a property.
type PropertyState struct {
	base

	ParentUUID  uuid.UUID
	QName       itemid.QName
	ValueType   value.Type
	MultiValued bool
	Values      []value.InternalValue
}

// NewPropertyState constructs a PropertyState with status StatusNew.
func NewPropertyState(parentUUID uuid.UUID, name itemid.QName) *PropertyState {
	p := &PropertyState{ParentUUID: parentUUID, QName: name}
	p.base.id = itemid.PropertyId(parentUUID, name)
	p.base.status = StatusNew
	return p
}

func (p *PropertyState) IsNode() bool { return false }

func (p *PropertyState) Connect(shared ItemState) error {
	if _, ok := shared.(*PropertyState); !ok {
		return fmt.Errorf("itemstate: cannot connect property state to %T", shared)
	}
	return p.base.connect(shared)
}

// Push copies this property's working values into its overlayed shared
// peer.
func (p *PropertyState) Push() {
	shared := p.base.overlay.(*PropertyState)
	shared.ValueType = p.ValueType
	shared.MultiValued = p.MultiValued
	shared.Values = make([]value.InternalValue, len(p.Values))
	for i, v := range p.Values {
		shared.Values[i] = v.Clone()
	}
	shared.definitionID = p.definitionID
}

func (p *PropertyState) Persisted() { p.base.persisted(p) }
func (p *PropertyState) Discard()   { p.base.discard(p) }

// Clone returns a deep, disconnected copy.
func (p *PropertyState) Clone() *PropertyState {
	cp := &PropertyState{
		ParentUUID:  p.ParentUUID,
		QName:       p.QName,
		ValueType:   p.ValueType,
		MultiValued: p.MultiValued,
	}
	cp.base.id = p.base.id
	cp.base.status = p.base.status
	cp.base.definitionID = p.base.definitionID
	cp.Values = make([]value.InternalValue, len(p.Values))
	for i, v := range p.Values {
		cp.Values[i] = v.Clone()
	}
	return cp
}

var (
	_ ItemState = (*NodeState)(nil)
	_ ItemState = (*PropertyState)(nil)
)

// Package events derives a typed event stream from the diff between a
// change log's transient states and the shared state they overlay (C7),
// and dispatches it to registered observers strictly after durable write.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"jcrcore/internal/changelog"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
)

// Type is the kind of event derived from a change log entry.
type Type int

const (
	NodeAdded Type = iota
	NodeRemoved
	PropertyAdded
	PropertyChanged
	PropertyRemoved
)

func (t Type) String() string {
	switch t {
	case NodeAdded:
		return "NodeAdded"
	case NodeRemoved:
		return "NodeRemoved"
	case PropertyAdded:
		return "PropertyAdded"
	case PropertyChanged:
		return "PropertyChanged"
	case PropertyRemoved:
		return "PropertyRemoved"
	default:
		return "Unknown"
	}
}

// Event is one derived notification.
type Event struct {
	Type       Type
	ItemID     itemid.ItemId
	ParentUUID uuid.UUID
}

// ItemStateSource resolves ids against the manager's view of the tree,
// used while deriving events (e.g. to find a property's owning node). It
// is satisfied by the shared item-state manager.
type ItemStateSource interface {
	GetItemState(id itemid.ItemId) (itemstate.ItemState, error)
}

// EventStateCollection is one commit's worth of derived events, moving
// through derive -> prepare -> dispatch.
type EventStateCollection struct {
	mgr    *Manager
	events []Event
	ready  bool
}

// CreateEventStates derives events from local (the session's transient
// change log) against source, the pre-push shared-state view, rooted at
// rootUUID. It must run before the commit's Phase D push — event
// derivation is a pure function of the pre-push snapshot.
func (c *EventStateCollection) CreateEventStates(rootUUID uuid.UUID, local *changelog.ChangeLog, source ItemStateSource) error {
	// parentOf prefers the authoritative pre-push shared-state view over
	// local's own record, so a concurrently relocated parent is reflected
	// in the event; it falls back to local when source has no shared peer
	// yet (true for every just-added item) or reports none (the root).
	parentOf := func(s itemstate.ItemState) uuid.UUID {
		if s.ID() == itemid.NodeId(rootUUID) {
			return uuid.Nil
		}
		if shared, err := source.GetItemState(s.ID()); err == nil {
			return itemParent(shared)
		}
		return itemParent(s)
	}

	for _, s := range local.AddedStates() {
		if s.IsNode() {
			c.events = append(c.events, Event{Type: NodeAdded, ItemID: s.ID(), ParentUUID: parentOf(s)})
		} else {
			c.events = append(c.events, Event{Type: PropertyAdded, ItemID: s.ID(), ParentUUID: parentOf(s)})
		}
	}
	for _, s := range local.ModifiedStates() {
		if s.IsNode() {
			// Structural node modification (e.g. reordered children) has
			// no dedicated event type in this model; only property value
			// changes are surfaced as events.
			continue
		}
		c.events = append(c.events, Event{Type: PropertyChanged, ItemID: s.ID(), ParentUUID: parentOf(s)})
	}
	for _, s := range local.DeletedStates() {
		if s.IsNode() {
			c.events = append(c.events, Event{Type: NodeRemoved, ItemID: s.ID(), ParentUUID: parentOf(s)})
		} else {
			c.events = append(c.events, Event{Type: PropertyRemoved, ItemID: s.ID(), ParentUUID: parentOf(s)})
		}
	}
	return nil
}

// itemParent returns s's own ParentUUID, whether s is a node or a
// property; zero for the repository root, whose NodeState.HasParent is
// false.
func itemParent(s itemstate.ItemState) uuid.UUID {
	switch t := s.(type) {
	case *itemstate.NodeState:
		if !t.HasParent {
			return uuid.Nil
		}
		return t.ParentUUID
	case *itemstate.PropertyState:
		return t.ParentUUID
	default:
		return uuid.Nil
	}
}

// Prepare brings the collection to a prepared-but-not-visible state. No
// further events may be added afterward.
func (c *EventStateCollection) Prepare() error {
	c.ready = true
	return nil
}

// Events returns the derived events; only meaningful after Prepare.
func (c *EventStateCollection) Events() []Event {
	return append([]Event(nil), c.events...)
}

// Dispatch publishes the prepared events to every subscriber registered
// on the owning Manager. It must only be called after the commit that
// produced it has been durably stored.
func (c *EventStateCollection) Dispatch() error {
	if !c.ready {
		return fmt.Errorf("events: dispatch called before prepare")
	}
	c.mgr.dispatch(c.events)
	return nil
}

// ObservationManager is the external interface the shared item-state
// manager consumes to turn a change log into a dispatched event stream.
type ObservationManager interface {
	CreateEventStateCollection() *EventStateCollection
}

// Subscriber receives a batch of events from one dispatched commit. A
// subscriber must not block for long: it runs synchronously on the
// dispatching goroutine, preserving commit order across calls — observers
// must never see events from two commits reordered relative to each
// other.
type Subscriber func(batch []Event)

// Manager is the default in-process ObservationManager: it fans out each
// commit's prepared events to every registered Subscriber, in
// registration order, preserving commit order across calls.
type Manager struct {
	mu   sync.Mutex
	subs []Subscriber
}

// NewManager constructs an empty observation manager.
func NewManager() *Manager {
	return &Manager{}
}

// CreateEventStateCollection starts a new, empty collection bound to this
// manager.
func (m *Manager) CreateEventStateCollection() *EventStateCollection {
	return &EventStateCollection{mgr: m}
}

// Subscribe registers a subscriber, called for every subsequent dispatch.
func (m *Manager) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, s)
}

func (m *Manager) dispatch(batch []Event) {
	m.mu.Lock()
	subs := append([]Subscriber(nil), m.subs...)
	m.mu.Unlock()
	for _, s := range subs {
		s(batch)
	}
}

// Package memory implements an in-memory persistence.Engine for tests and
// ephemeral deployments, using a plain map+mutex store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"jcrcore/internal/changelog"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/persistence"
	"jcrcore/internal/refs"
)

// Store is an in-memory persistence.Engine. The maps hold the canonical
// shared-state instances directly: a load returns the same pointer every
// time, matching the manager's identity-cache invariant.
type Store struct {
	mu         sync.Mutex
	nodes      map[uuid.UUID]*itemstate.NodeState
	properties map[itemid.ItemId]*itemstate.PropertyState
	references map[uuid.UUID]*refs.NodeReferences
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nodes:      make(map[uuid.UUID]*itemstate.NodeState),
		properties: make(map[itemid.ItemId]*itemstate.PropertyState),
		references: make(map[uuid.UUID]*refs.NodeReferences),
	}
}

func (s *Store) LoadNode(_ context.Context, id uuid.UUID) (*itemstate.NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, itemstate.ErrNoSuchItem
	}
	return n, nil
}

func (s *Store) LoadProperty(_ context.Context, id itemid.ItemId) (*itemstate.PropertyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, itemstate.ErrNoSuchItem
	}
	return p, nil
}

func (s *Store) LoadReferences(_ context.Context, id itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.references[id.TargetUUID]
	if !ok {
		return nil, itemstate.ErrNoSuchItem
	}
	return r, nil
}

func (s *Store) ExistsNode(_ context.Context, id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	return ok
}

func (s *Store) ExistsProperty(_ context.Context, id itemid.ItemId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.properties[id]
	return ok
}

func (s *Store) CreateNewNode(id uuid.UUID) *itemstate.NodeState {
	return itemstate.NewNodeState(id)
}

func (s *Store) CreateNewProperty(id itemid.ItemId) *itemstate.PropertyState {
	return itemstate.NewPropertyState(id.ParentUUID(), id.Name())
}

// Store durably applies every added/modified/deleted state and modified
// reference bundle in log. Nothing in this backend can fail mid-apply, so
// the whole operation is trivially atomic.
func (s *Store) Store(_ context.Context, log *changelog.ChangeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range log.AddedStates() {
		s.apply(st, false)
	}
	for _, st := range log.ModifiedStates() {
		s.apply(st, false)
	}
	for _, st := range log.DeletedStates() {
		s.apply(st, true)
	}
	for _, r := range log.ModifiedRefsList() {
		if r.HasReferences() {
			s.references[r.ID.TargetUUID] = r
		} else {
			delete(s.references, r.ID.TargetUUID)
		}
	}
	return nil
}

func (s *Store) apply(st itemstate.ItemState, remove bool) {
	switch v := st.(type) {
	case *itemstate.NodeState:
		if remove {
			delete(s.nodes, v.UUID)
		} else {
			s.nodes[v.UUID] = v
		}
	case *itemstate.PropertyState:
		if remove {
			delete(s.properties, v.ID())
		} else {
			s.properties[v.ID()] = v
		}
	}
}

// ImportNode installs n directly as the canonical shared state for its
// UUID, used by durable backends to hydrate from a prior snapshot.
func (s *Store) ImportNode(n *itemstate.NodeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.UUID] = n
}

// ImportProperty installs p directly as the canonical shared state for
// its id.
func (s *Store) ImportProperty(p *itemstate.PropertyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID()] = p
}

// ImportReferences installs r directly as the canonical reference bundle
// for its target.
func (s *Store) ImportReferences(r *refs.NodeReferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references[r.ID.TargetUUID] = r
}

// Dump writes every stored node id in sorted order, for diagnostics.
func (s *Store) Dump() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, fmt.Sprintf("node:%s", id))
	}
	sort.Strings(out)
	return out
}

var _ persistence.Engine = (*Store)(nil)

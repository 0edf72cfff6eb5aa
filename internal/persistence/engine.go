// Package persistence defines the contract for the external persistence
// engine consumed by the manager: byte-level load/store of node and
// property states plus reference bundles, with atomic change-log writes.
// Concrete backends (memory, sqlite, postgres) live in subpackages.
package persistence

import (
	"context"

	"github.com/google/uuid"
	"jcrcore/internal/changelog"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
)

// Engine is the persistence contract consumed by the manager. Store must
// be atomic: on error, no observable persisted change occurs.
type Engine interface {
	LoadNode(ctx context.Context, id uuid.UUID) (*itemstate.NodeState, error)
	LoadProperty(ctx context.Context, id itemid.ItemId) (*itemstate.PropertyState, error)
	LoadReferences(ctx context.Context, id itemid.NodeReferencesId) (*refs.NodeReferences, error)

	ExistsNode(ctx context.Context, id uuid.UUID) bool
	ExistsProperty(ctx context.Context, id itemid.ItemId) bool

	// CreateNew returns a fresh NodeState/PropertyState with status NEW
	// and no I/O performed.
	CreateNewNode(id uuid.UUID) *itemstate.NodeState
	CreateNewProperty(id itemid.ItemId) *itemstate.PropertyState

	// Store durably applies every added/modified/deleted state and every
	// modified reference bundle in log as one atomic unit.
	Store(ctx context.Context, log *changelog.ChangeLog) error
}

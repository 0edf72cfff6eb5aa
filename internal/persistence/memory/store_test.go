package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"jcrcore/internal/changelog"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
)

func TestLoadNodeNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.LoadNode(context.Background(), uuid.New())
	if !errors.Is(err, itemstate.ErrNoSuchItem) {
		t.Fatalf("LoadNode(missing) = %v, want ErrNoSuchItem", err)
	}
}

func TestStoreAddedNodeRoundTripsByIdentity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	n := itemstate.NewNodeState(uuid.New())

	log := changelog.New()
	log.Added(n)
	if err := s.Store(ctx, log); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if !s.ExistsNode(ctx, n.UUID) {
		t.Fatal("ExistsNode should be true after storing an added node")
	}
	got, err := s.LoadNode(ctx, n.UUID)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	if got != n {
		t.Fatal("LoadNode must return the same pointer that was stored")
	}
}

func TestStoreDeletedNodeRemoves(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	n := itemstate.NewNodeState(uuid.New())
	s.ImportNode(n)

	log := changelog.New()
	log.Deleted(n)
	if err := s.Store(ctx, log); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if s.ExistsNode(ctx, n.UUID) {
		t.Fatal("node should no longer exist after a deleted-state Store")
	}
}

func TestStorePropertyAndCreateNewProperty(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	parent := uuid.New()
	id := itemid.PropertyId(parent, itemid.QName{Local: "p"})

	p := s.CreateNewProperty(id)
	log := changelog.New()
	log.Added(p)
	if err := s.Store(ctx, log); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !s.ExistsProperty(ctx, id) {
		t.Fatal("ExistsProperty should be true after storing an added property")
	}
}

func TestModifiedRefsAppliedAndRemovedWhenEmpty(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	target := itemid.NodeReferencesId{TargetUUID: uuid.New()}

	log := changelog.New()
	r := refs.New(target)
	r.AddReference(itemid.PropertyId(uuid.New(), itemid.QName{Local: "ref"}))
	log.ModifiedRefs(r)
	if err := s.Store(ctx, log); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.LoadReferences(ctx, target)
	if err != nil {
		t.Fatalf("LoadReferences: %v", err)
	}
	if !got.HasReferences() {
		t.Fatal("stored bundle should have references")
	}

	r2 := refs.New(target)
	log2 := changelog.New()
	log2.ModifiedRefs(r2)
	if err := s.Store(ctx, log2); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := s.LoadReferences(ctx, target); !errors.Is(err, itemstate.ErrNoSuchItem) {
		t.Fatal("an emptied bundle should be removed from the store")
	}
}

func TestDumpListsImportedNodes(t *testing.T) {
	s := NewStore()
	n := itemstate.NewNodeState(uuid.New())
	s.ImportNode(n)
	out := s.Dump()
	if len(out) != 1 {
		t.Fatalf("Dump() = %v, want 1 entry", out)
	}
}

package changelog

import (
	"testing"

	"github.com/google/uuid"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
)

func TestAddedModifiedDeletedDedupeByID(t *testing.T) {
	cl := New()
	n := itemstate.NewNodeState(uuid.New())
	cl.Added(n)
	cl.Added(n)
	if len(cl.AddedStates()) != 1 {
		t.Fatalf("Added should dedupe by id, got %d entries", len(cl.AddedStates()))
	}
}

func TestEmptyAndGet(t *testing.T) {
	cl := New()
	if !cl.Empty() {
		t.Fatal("new change log should be Empty")
	}
	n := itemstate.NewNodeState(uuid.New())
	cl.Added(n)
	if cl.Empty() {
		t.Fatal("change log with an added state should not be Empty")
	}
	got, ok := cl.Get(n.ID())
	if !ok || got != n {
		t.Fatal("Get should find the added state by id")
	}
}

func TestGetPrecedenceAddedOverModifiedOverDeleted(t *testing.T) {
	cl := New()
	id := itemid.NodeId(uuid.New())
	added := itemstate.NewNodeState(id.UUID())
	cl.Added(added)
	cl.Modified(added)
	got, ok := cl.Get(id)
	if !ok || got != added {
		t.Fatal("Get should prefer the added bucket")
	}
}

func TestIsDeleted(t *testing.T) {
	cl := New()
	n := itemstate.NewNodeState(uuid.New())
	if cl.IsDeleted(n.ID()) {
		t.Fatal("unrecorded id should not be deleted")
	}
	cl.Deleted(n)
	if !cl.IsDeleted(n.ID()) {
		t.Fatal("recorded id should be deleted")
	}
}

func TestPushCopiesConnectedStateIntoSharedPeer(t *testing.T) {
	cl := New()
	shared := itemstate.NewNodeState(uuid.New())
	shared.SetStatus(itemstate.StatusExisting)
	local := itemstate.NewNodeState(shared.UUID)
	local.NodeTypeName = itemid.QName{Local: "nt:unstructured"}
	if err := local.Connect(shared); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	cl.Added(local)
	cl.Push()
	if shared.NodeTypeName != local.NodeTypeName {
		t.Fatal("Push should copy connected local state into its shared peer")
	}
}

func TestPersistedTransitionsEveryBucket(t *testing.T) {
	cl := New()
	added := itemstate.NewNodeState(uuid.New())
	modified := itemstate.NewNodeState(uuid.New())
	modified.SetStatus(itemstate.StatusExistingModified)
	deleted := itemstate.NewNodeState(uuid.New())
	deleted.SetStatus(itemstate.StatusExistingRemoved)

	cl.Added(added)
	cl.Modified(modified)
	cl.Deleted(deleted)
	cl.Persisted()

	if added.Status() != itemstate.StatusExisting {
		t.Errorf("added status = %v, want EXISTING", added.Status())
	}
	if modified.Status() != itemstate.StatusExisting {
		t.Errorf("modified status = %v, want EXISTING", modified.Status())
	}
	if deleted.Status() != itemstate.StatusStaleDestroyed {
		t.Errorf("deleted status = %v, want STALE_DESTROYED", deleted.Status())
	}
}

func TestModifiedRefsListAndReset(t *testing.T) {
	cl := New()
	target := itemid.NodeReferencesId{TargetUUID: uuid.New()}
	bundle := refs.New(target)
	cl.ModifiedRefs(bundle)
	cl.ModifiedRefs(bundle)
	if len(cl.ModifiedRefsList()) != 1 {
		t.Fatalf("ModifiedRefs should dedupe by target, got %d", len(cl.ModifiedRefsList()))
	}
	cl.Reset()
	if !cl.Empty() {
		t.Fatal("Reset should return the log to empty")
	}
}

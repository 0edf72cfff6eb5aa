package provider

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
	"jcrcore/internal/value"
)

// fakeProvider is a minimal Provider used to confirm the interface shape
// is satisfiable by a straightforward in-memory implementation, the way
// a virtual overlay would be built.
type fakeProvider struct {
	rootID uuid.UUID
	nodes  map[uuid.UUID]*itemstate.NodeState
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{rootID: uuid.New(), nodes: map[uuid.UUID]*itemstate.NodeState{}}
}

func (f *fakeProvider) IsVirtualRoot(id itemid.ItemId) bool {
	return id.DenotesNode() && id.UUID() == f.rootID
}

func (f *fakeProvider) VirtualRootID() itemid.ItemId { return itemid.NodeId(f.rootID) }

func (f *fakeProvider) HasItemState(id itemid.ItemId) bool {
	return id.DenotesNode() && f.HasNodeState(id.UUID())
}

func (f *fakeProvider) GetItemState(id itemid.ItemId) (itemstate.ItemState, error) {
	return f.GetNodeState(id.UUID())
}

func (f *fakeProvider) HasNodeState(id uuid.UUID) bool {
	_, ok := f.nodes[id]
	return ok
}

func (f *fakeProvider) GetNodeState(id uuid.UUID) (*itemstate.NodeState, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return n, nil
}

func (f *fakeProvider) HasPropertyState(itemid.ItemId) bool                        { return false }
func (f *fakeProvider) GetPropertyState(itemid.ItemId) (*itemstate.PropertyState, error) {
	return nil, errors.New("not found")
}

func (f *fakeProvider) GetNodeReferences(id itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	return refs.New(id), nil
}

func (f *fakeProvider) SetNodeReferences(*refs.NodeReferences) bool { return false }

func (f *fakeProvider) CreateNodeState(parent uuid.UUID, name itemid.QName, id uuid.UUID, nodeType itemid.QName) (*itemstate.NodeState, error) {
	n := itemstate.NewNodeState(id)
	n.ParentUUID = parent
	n.NodeTypeName = nodeType
	f.nodes[id] = n
	return n, nil
}

func (f *fakeProvider) CreatePropertyState(parent uuid.UUID, name itemid.QName, valueType value.Type, multiValued bool) (*itemstate.PropertyState, error) {
	return nil, errors.New("unsupported")
}

func TestFakeProviderSatisfiesInterface(t *testing.T) {
	var _ Provider = newFakeProvider()
}

func TestFakeProviderRoundTrip(t *testing.T) {
	p := newFakeProvider()
	root := p.VirtualRootID()
	if !p.IsVirtualRoot(root) {
		t.Fatal("IsVirtualRoot should be true for the provider's own root id")
	}

	id := uuid.New()
	n, err := p.CreateNodeState(p.rootID, itemid.QName{Local: "child"}, id, itemid.QName{Local: "nt:unstructured"})
	if err != nil {
		t.Fatalf("CreateNodeState: %v", err)
	}
	if !p.HasNodeState(id) {
		t.Fatal("HasNodeState should be true after CreateNodeState")
	}
	got, err := p.GetNodeState(id)
	if err != nil || got != n {
		t.Fatal("GetNodeState should return the created state")
	}
	if !p.HasItemState(itemid.NodeId(id)) {
		t.Fatal("HasItemState should delegate to HasNodeState for node ids")
	}
}

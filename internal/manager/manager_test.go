package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"jcrcore/internal/blobstore/memoryblob"
	"jcrcore/internal/changelog"
	"jcrcore/internal/events"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/nodetype"
	"jcrcore/internal/persistence"
	"jcrcore/internal/persistence/memory"
	"jcrcore/internal/refs"
	"jcrcore/internal/value"
)

func testRegistry() nodetype.Registry {
	primaryType := nodetype.PropertyDef{ID: "nt:base/jcr:primaryType", Name: NameJCRPrimaryType, Type: value.TypeName}
	base := nodetype.NodeDef{ID: "nt:base", Name: NameNTBase, Properties: []nodetype.PropertyDef{primaryType}}
	return nodetype.NewStaticRegistry(NameNTBase, base)
}

func newTestManager(t *testing.T) (*Manager, uuid.UUID, persistence.Engine) {
	t.Helper()
	engine := memory.NewStore()
	root := uuid.New()
	mgr, err := New(context.Background(), engine, root, testRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return mgr, root, engine
}

func TestNewBootstrapsRootNode(t *testing.T) {
	mgr, root, _ := newTestManager(t)
	got, err := mgr.GetItemState(itemid.NodeId(root))
	if err != nil {
		t.Fatalf("GetItemState(root): %v", err)
	}
	n, ok := got.(*itemstate.NodeState)
	if !ok {
		t.Fatalf("root state type = %T, want *itemstate.NodeState", got)
	}
	if n.NodeTypeName != NameRepRoot {
		t.Errorf("root NodeTypeName = %v, want %v", n.NodeTypeName, NameRepRoot)
	}
	if n.HasParent {
		t.Error("root must report HasParent = false")
	}
}

func TestNewIsIdempotentAcrossReopen(t *testing.T) {
	engine := memory.NewStore()
	root := uuid.New()
	ctx := context.Background()
	if _, err := New(ctx, engine, root, testRegistry()); err != nil {
		t.Fatalf("first New: %v", err)
	}
	mgr2, err := New(ctx, engine, root, testRegistry())
	if err != nil {
		t.Fatalf("second New against the same engine: %v", err)
	}
	if !mgr2.HasItemState(itemid.NodeId(root)) {
		t.Fatal("root should still resolve after re-bootstrapping against an already-populated engine")
	}
}

func TestGetItemStateCachesSameInstance(t *testing.T) {
	mgr, root, _ := newTestManager(t)
	a, err := mgr.GetItemState(itemid.NodeId(root))
	if err != nil {
		t.Fatalf("GetItemState: %v", err)
	}
	b, err := mgr.GetItemState(itemid.NodeId(root))
	if err != nil {
		t.Fatalf("GetItemState: %v", err)
	}
	if a != b {
		t.Fatal("repeated GetItemState for the same id must return the same cached instance")
	}
}

func TestHasItemStateFalseForUnknown(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if mgr.HasItemState(itemid.NodeId(uuid.New())) {
		t.Fatal("HasItemState should be false for an unrelated random id")
	}
}

func addChildNode(t *testing.T, mgr *Manager, root uuid.UUID) *itemstate.NodeState {
	t.Helper()
	child := itemstate.NewNodeState(uuid.New())
	child.ParentUUID = root
	child.NodeTypeName = itemid.QName{Local: "nt:unstructured"}
	child.HasParent = true

	local := changelog.New()
	local.Added(child)
	if err := mgr.Store(context.Background(), local, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	return child
}

func TestStoreAddedNodeBecomesRetrievable(t *testing.T) {
	mgr, root, _ := newTestManager(t)
	child := addChildNode(t, mgr, root)

	got, err := mgr.GetItemState(itemid.NodeId(child.UUID))
	if err != nil {
		t.Fatalf("GetItemState(child): %v", err)
	}
	n := got.(*itemstate.NodeState)
	if n.NodeTypeName != child.NodeTypeName {
		t.Errorf("committed node type = %v, want %v", n.NodeTypeName, child.NodeTypeName)
	}
	if n.Status() != itemstate.StatusExisting {
		t.Errorf("committed node status = %v, want EXISTING", n.Status())
	}
}

func TestStoreEmptyChangeLogIsNoOp(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.Store(context.Background(), changelog.New(), nil); err != nil {
		t.Fatalf("Store(empty): %v", err)
	}
}

func TestStoreDispatchesDerivedEvents(t *testing.T) {
	mgr, root, _ := newTestManager(t)
	obs := events.NewManager()
	var batches [][]events.Event
	obs.Subscribe(func(b []events.Event) { batches = append(batches, b) })

	child := itemstate.NewNodeState(uuid.New())
	child.ParentUUID = root
	child.NodeTypeName = itemid.QName{Local: "nt:unstructured"}
	child.HasParent = true

	local := changelog.New()
	local.Added(child)
	if err := mgr.Store(context.Background(), local, obs); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected exactly one dispatched batch with one event, got %v", batches)
	}
	if batches[0][0].Type != events.NodeAdded {
		t.Errorf("event type = %v, want NodeAdded", batches[0][0].Type)
	}
}

func TestStoreReferentialIntegrityFailureRejectsCommit(t *testing.T) {
	mgr, root, engine := newTestManager(t)

	prop := itemstate.NewPropertyState(root, itemid.QName{Local: "link"})
	prop.ValueType = value.TypeReference
	prop.Values = []value.InternalValue{value.NewReference(uuid.New())}

	local := changelog.New()
	local.Added(prop)
	err := mgr.Store(context.Background(), local, nil)
	if !errors.Is(err, itemstate.ErrReferentialIntegrity) {
		t.Fatalf("Store with a dangling reference = %v, want ErrReferentialIntegrity", err)
	}
	if engine.ExistsProperty(context.Background(), prop.ID()) {
		t.Fatal("a rejected commit must not leave the property durably stored")
	}
}

func TestStoreReferenceToExistingNodeUpdatesBundle(t *testing.T) {
	mgr, root, _ := newTestManager(t)
	child := addChildNode(t, mgr, root)

	prop := itemstate.NewPropertyState(root, itemid.QName{Local: "link"})
	prop.ValueType = value.TypeReference
	prop.Values = []value.InternalValue{value.NewReference(child.UUID)}

	local := changelog.New()
	local.Added(prop)
	if err := mgr.Store(context.Background(), local, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	bundle, err := mgr.GetNodeReferences(itemid.NodeReferencesId{TargetUUID: child.UUID})
	if err != nil {
		t.Fatalf("GetNodeReferences: %v", err)
	}
	if !bundle.HasReferences() {
		t.Fatal("expected the reference bundle to record the new REFERENCE property")
	}
}

func TestNewBinaryValueInlinesSmallPayloadWithoutBlobStore(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	v, err := mgr.NewBinaryValue(context.Background(), "k", []byte("small"))
	if err != nil {
		t.Fatalf("NewBinaryValue: %v", err)
	}
	if v.Blob.Key != "" {
		t.Fatal("without a configured blob store, NewBinaryValue must always inline")
	}
	if string(v.Bytes) != "small" {
		t.Errorf("inlined payload = %q, want %q", v.Bytes, "small")
	}
}

func TestNewBinaryValueSpillsPayloadAboveThreshold(t *testing.T) {
	engine := memory.NewStore()
	root := uuid.New()
	store := memoryblob.New()
	mgr, err := New(context.Background(), engine, root, testRegistry(),
		WithBlobStore(store), WithBinaryInlineThreshold(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v, err := mgr.NewBinaryValue(context.Background(), "big", []byte("payload over threshold"))
	if err != nil {
		t.Fatalf("NewBinaryValue: %v", err)
	}
	if v.Blob.Key != "big" {
		t.Fatalf("payload above threshold should spill to the blob store, got Blob=%v", v.Blob)
	}
	if len(v.Bytes) != 0 {
		t.Error("a spilled BINARY value must not also carry an inline copy")
	}

	_, r, err := store.Get(context.Background(), "big")
	if err != nil {
		t.Fatalf("blob store Get: %v", err)
	}
	defer r.Close()
}

func TestNewBinaryValueBelowThresholdInlinesEvenWithBlobStore(t *testing.T) {
	engine := memory.NewStore()
	root := uuid.New()
	mgr, err := New(context.Background(), engine, root, testRegistry(), WithBlobStore(memoryblob.New()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := mgr.NewBinaryValue(context.Background(), "k", []byte("small"))
	if err != nil {
		t.Fatalf("NewBinaryValue: %v", err)
	}
	if v.Blob.Key != "" {
		t.Fatal("a payload within the default inline threshold should not spill")
	}
}

func TestStorePreSuppliedModifiedRefsBundleIsPersisted(t *testing.T) {
	mgr, root, engine := newTestManager(t)
	child := addChildNode(t, mgr, root)

	bundle := refs.New(itemid.NodeReferencesId{TargetUUID: child.UUID})
	bundle.AddReference(itemid.PropertyId(root, itemid.QName{Local: "link"}))

	local := changelog.New()
	local.ModifiedRefs(bundle)
	if err := mgr.Store(context.Background(), local, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := engine.LoadReferences(context.Background(), itemid.NodeReferencesId{TargetUUID: child.UUID})
	if err != nil {
		t.Fatalf("LoadReferences: %v", err)
	}
	if !got.HasReferences() {
		t.Fatal("a pre-supplied ModifiedRefs bundle must reach the persistence engine")
	}
}

func TestStorePreSuppliedModifiedRefsBundleRejectsMissingTarget(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	bundle := refs.New(itemid.NodeReferencesId{TargetUUID: uuid.New()})
	bundle.AddReference(itemid.PropertyId(uuid.New(), itemid.QName{Local: "link"}))

	local := changelog.New()
	local.ModifiedRefs(bundle)
	err := mgr.Store(context.Background(), local, nil)
	if !errors.Is(err, itemstate.ErrReferentialIntegrity) {
		t.Fatalf("Store with a pre-supplied bundle for a nonexistent target = %v, want ErrReferentialIntegrity", err)
	}
}

func TestStorePreSuppliedEmptyModifiedRefsBundleSkipsExistenceCheck(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	bundle := refs.New(itemid.NodeReferencesId{TargetUUID: uuid.New()})
	local := changelog.New()
	local.ModifiedRefs(bundle)
	if err := mgr.Store(context.Background(), local, nil); err != nil {
		t.Fatalf("Store with an emptied bundle for a deleted target should not fail existence validation: %v", err)
	}
}

type failingEngine struct {
	persistence.Engine
	failStore bool
}

func (f *failingEngine) Store(ctx context.Context, log *changelog.ChangeLog) error {
	if f.failStore {
		return errors.New("disk full")
	}
	return f.Engine.Store(ctx, log)
}

func TestStorePersistenceFailurePoisonsManagerUntilReopen(t *testing.T) {
	mem := memory.NewStore()
	fe := &failingEngine{Engine: mem}
	root := uuid.New()
	ctx := context.Background()
	mgr, err := New(ctx, fe, root, testRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fe.failStore = true
	child := itemstate.NewNodeState(uuid.New())
	child.ParentUUID = root
	child.NodeTypeName = itemid.QName{Local: "nt:unstructured"}
	child.HasParent = true
	local := changelog.New()
	local.Added(child)

	if err := mgr.Store(ctx, local, nil); !errors.Is(err, itemstate.ErrPersistenceFailure) {
		t.Fatalf("Store with a failing engine = %v, want ErrPersistenceFailure", err)
	}
	if !mgr.Poisoned() {
		t.Fatal("a Phase E failure must poison the manager")
	}

	_, err = mgr.GetItemState(itemid.NodeId(root))
	if !errors.Is(err, itemstate.ErrPersistenceFailure) {
		t.Fatalf("GetItemState on a poisoned manager = %v, want ErrPersistenceFailure", err)
	}

	fe.failStore = false
	mgr.Reopen()
	if mgr.Poisoned() {
		t.Fatal("Reopen must clear the poisoned flag")
	}
	if _, err := mgr.GetItemState(itemid.NodeId(root)); err != nil {
		t.Fatalf("GetItemState after Reopen: %v", err)
	}
}

// fakeManagerProvider is a minimal virtual provider used to exercise overlay
// resolution without pulling in the provider package's own test double.
type fakeManagerProvider struct {
	rootID uuid.UUID
	nodes  map[uuid.UUID]*itemstate.NodeState
}

func (f *fakeManagerProvider) IsVirtualRoot(id itemid.ItemId) bool {
	return id.DenotesNode() && id.UUID() == f.rootID
}
func (f *fakeManagerProvider) VirtualRootID() itemid.ItemId { return itemid.NodeId(f.rootID) }
func (f *fakeManagerProvider) HasItemState(id itemid.ItemId) bool {
	return id.DenotesNode() && f.HasNodeState(id.UUID())
}
func (f *fakeManagerProvider) GetItemState(id itemid.ItemId) (itemstate.ItemState, error) {
	return f.GetNodeState(id.UUID())
}
func (f *fakeManagerProvider) HasNodeState(id uuid.UUID) bool { _, ok := f.nodes[id]; return ok }
func (f *fakeManagerProvider) GetNodeState(id uuid.UUID) (*itemstate.NodeState, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, itemstate.ErrNoSuchItem
	}
	return n, nil
}
func (f *fakeManagerProvider) HasPropertyState(itemid.ItemId) bool { return false }
func (f *fakeManagerProvider) GetPropertyState(itemid.ItemId) (*itemstate.PropertyState, error) {
	return nil, itemstate.ErrNoSuchItem
}
func (f *fakeManagerProvider) GetNodeReferences(id itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	return refs.New(id), nil
}
func (f *fakeManagerProvider) SetNodeReferences(*refs.NodeReferences) bool { return false }
func (f *fakeManagerProvider) CreateNodeState(parent uuid.UUID, name itemid.QName, id uuid.UUID, nodeType itemid.QName) (*itemstate.NodeState, error) {
	n := itemstate.NewNodeState(id)
	n.ParentUUID = parent
	n.NodeTypeName = nodeType
	return n, nil
}
func (f *fakeManagerProvider) CreatePropertyState(parent uuid.UUID, name itemid.QName, valueType value.Type, multiValued bool) (*itemstate.PropertyState, error) {
	return nil, itemstate.ErrNoSuchItem
}

func TestAddVirtualProviderRoutesVirtualRoot(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	virtualRoot := uuid.New()
	virtualChild := itemstate.NewNodeState(virtualRoot)
	virtualChild.NodeTypeName = itemid.QName{Local: "nt:unstructured"}
	p := &fakeManagerProvider{rootID: virtualRoot, nodes: map[uuid.UUID]*itemstate.NodeState{virtualRoot: virtualChild}}

	mgr.AddVirtualProvider(p)

	if !mgr.HasItemState(itemid.NodeId(virtualRoot)) {
		t.Fatal("HasItemState should route through the virtual provider for its own root")
	}
	got, err := mgr.GetItemState(itemid.NodeId(virtualRoot))
	if err != nil {
		t.Fatalf("GetItemState(virtual root): %v", err)
	}
	if got != virtualChild {
		t.Fatal("GetItemState should return the provider's own state for its virtual root")
	}
}

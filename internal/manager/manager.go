// Package manager implements the shared item-state manager: the single
// authoritative in-memory view over the item tree, backed by a pluggable
// persistence engine, serving concurrent sessions through a multi-phase
// commit protocol.
package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"jcrcore/internal/blobstore"
	"jcrcore/internal/cache"
	"jcrcore/internal/changelog"
	"jcrcore/internal/events"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/metrics"
	"jcrcore/internal/nodetype"
	"jcrcore/internal/persistence"
	"jcrcore/internal/provider"
	"jcrcore/internal/refs"
	"jcrcore/internal/value"
)

// Well-known names used for the repository root. This module does not
// implement a namespace registry; the conventional prefix is carried
// directly in QName.Local.
var (
	NameRepRoot        = itemid.QName{Local: "rep:root"}
	NameNTBase         = itemid.QName{Local: "nt:base"}
	NameJCRPrimaryType = itemid.QName{Local: "jcr:primaryType"}
)

// Manager is the shared item-state manager. GetItemState, HasItemState,
// GetNodeReferences, and Store all execute under mu — commit is globally
// serialized.
type Manager struct {
	mu sync.Mutex

	engine        persistence.Engine
	cache         *cache.Cache
	ntReg         nodetype.Registry
	metrics       *metrics.Registry
	logger        *slog.Logger
	rootUUID      uuid.UUID
	cacheCapacity int

	blobStore       blobstore.Store
	binaryThreshold int64

	providers atomic.Pointer[[]provider.Provider]

	poisoned bool
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithMetrics overrides the default unregistered metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = reg }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithCacheCapacity overrides the default item-state cache capacity.
func WithCacheCapacity(n int) Option {
	return func(m *Manager) { m.cacheCapacity = n }
}

// WithBlobStore configures the backend NewBinaryValue spills BINARY
// payloads to once they exceed the inline threshold. Without this option,
// NewBinaryValue always inlines regardless of size.
func WithBlobStore(store blobstore.Store) Option {
	return func(m *Manager) { m.blobStore = store }
}

// WithBinaryInlineThreshold overrides the default
// blobstore.InlineThresholdBytes boundary NewBinaryValue decides against.
func WithBinaryInlineThreshold(n int64) Option {
	return func(m *Manager) { m.binaryThreshold = n }
}

// New constructs a Manager. If the root node does not yet exist in
// engine, it is bootstrapped as a node of type rep:root whose definition
// comes from ntReg's root node definition, with a jcr:primaryType
// property defined by nt:base.
func New(ctx context.Context, engine persistence.Engine, rootUUID uuid.UUID, ntReg nodetype.Registry, opts ...Option) (*Manager, error) {
	m := &Manager{
		engine:          engine,
		ntReg:           ntReg,
		rootUUID:        rootUUID,
		logger:          slog.Default(),
		metrics:         metrics.NewUnregistered(),
		binaryThreshold: blobstore.InlineThresholdBytes,
	}
	empty := []provider.Provider{}
	m.providers.Store(&empty)

	for _, opt := range opts {
		opt(m)
	}
	m.cache = cache.New(m.cacheCapacity, m.onEvicted, m.metrics.Cache)

	if err := m.bootstrapRoot(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) bootstrapRoot(ctx context.Context) error {
	_, err := m.getNodeStateLocked(ctx, m.rootUUID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, itemstate.ErrNoSuchItem) {
		return err
	}

	rootDef, err := m.ntReg.RootNodeDef()
	if err != nil {
		return fmt.Errorf("%w: root node definition: %v", itemstate.ErrSchemaFailure, err)
	}
	baseDef, err := m.ntReg.NodeTypeDef(NameNTBase)
	if err != nil || len(baseDef.Properties) == 0 {
		return fmt.Errorf("%w: nt:base property definitions", itemstate.ErrSchemaFailure)
	}
	primaryTypeDef := baseDef.Properties[0]

	root := m.engine.CreateNewNode(m.rootUUID)
	root.NodeTypeName = NameRepRoot
	root.HasParent = false
	root.SetDefinitionID(rootDef.ID)
	root.PropertyNames = append(root.PropertyNames, NameJCRPrimaryType)
	root.AddListener(m)

	prop := m.engine.CreateNewProperty(itemid.PropertyId(m.rootUUID, NameJCRPrimaryType))
	prop.ValueType = value.TypeName
	prop.MultiValued = false
	prop.Values = []value.InternalValue{value.NewName(NameRepRoot)}
	prop.SetDefinitionID(primaryTypeDef.ID)
	prop.AddListener(m)

	bootstrapLog := changelog.New()
	bootstrapLog.Added(root)
	bootstrapLog.Added(prop)

	if err := m.engine.Store(ctx, bootstrapLog); err != nil {
		return fmt.Errorf("%w: %v", itemstate.ErrSchemaFailure, err)
	}
	bootstrapLog.Persisted()
	return nil
}

func (m *Manager) onEvicted(id itemid.ItemId, s itemstate.ItemState) {
	_ = id
	if s != nil {
		s.RemoveListener(m)
	}
}

// AddVirtualProvider appends p to the provider list via copy-on-write,
// keeping registration order stable; that order defines overlay
// precedence throughout GetItemState/HasItemState/GetNodeReferences.
func (m *Manager) AddVirtualProvider(p provider.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.providers.Load()
	next := make([]provider.Provider, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = p
	m.providers.Store(&next)
}

func (m *Manager) providerSnapshot() []provider.Provider {
	return *m.providers.Load()
}

// GetItemState resolves id to a shared item state, following a fixed
// resolution order: virtual root match, then local (cache/persistence),
// then per-provider HasItemState in registration order.
func (m *Manager) GetItemState(id itemid.ItemId) (itemstate.ItemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getItemStateLocked(context.Background(), id)
}

func (m *Manager) getItemStateLocked(ctx context.Context, id itemid.ItemId) (itemstate.ItemState, error) {
	if m.poisoned {
		return nil, fmt.Errorf("%w: manager poisoned, call Reopen", itemstate.ErrPersistenceFailure)
	}
	for _, p := range m.providerSnapshot() {
		if p.IsVirtualRoot(id) {
			s, err := p.GetItemState(id)
			if err != nil {
				return nil, fmt.Errorf("%w: %w: %v", itemstate.ErrNoSuchItem, itemstate.ErrProviderFailure, err)
			}
			return s, nil
		}
	}
	if m.hasNonVirtualItemStateLocked(ctx, id) {
		return m.getNonVirtualItemStateLocked(ctx, id)
	}
	for _, p := range m.providerSnapshot() {
		if p.HasItemState(id) {
			s, err := p.GetItemState(id)
			if err != nil {
				return nil, fmt.Errorf("%w: %w: %v", itemstate.ErrNoSuchItem, itemstate.ErrProviderFailure, err)
			}
			return s, nil
		}
	}
	return nil, itemstate.ErrNoSuchItem
}

func (m *Manager) getNonVirtualItemStateLocked(ctx context.Context, id itemid.ItemId) (itemstate.ItemState, error) {
	if id.DenotesNode() {
		return m.getNodeStateLocked(ctx, id.UUID())
	}
	return m.getPropertyStateLocked(ctx, id)
}

func (m *Manager) getNodeStateLocked(ctx context.Context, id uuid.UUID) (itemstate.ItemState, error) {
	nid := itemid.NodeId(id)
	if s, ok := m.cache.Retrieve(nid); ok {
		return s, nil
	}
	n, err := m.engine.LoadNode(ctx, id)
	if err != nil {
		return nil, err
	}
	n.SetStatus(itemstate.StatusExisting)
	n.AddListener(m)
	m.cache.Cache(n)
	return n, nil
}

func (m *Manager) getPropertyStateLocked(ctx context.Context, id itemid.ItemId) (itemstate.ItemState, error) {
	if s, ok := m.cache.Retrieve(id); ok {
		return s, nil
	}
	p, err := m.engine.LoadProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	p.SetStatus(itemstate.StatusExisting)
	p.AddListener(m)
	m.cache.Cache(p)
	return p, nil
}

// HasItemState reports whether id resolves via GetItemState's resolution
// order, without ever returning an error: persistence probing errors are
// swallowed as "not present" — the commit path re-checks.
func (m *Manager) HasItemState(id itemid.ItemId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasItemStateLocked(context.Background(), id)
}

func (m *Manager) hasItemStateLocked(ctx context.Context, id itemid.ItemId) bool {
	for _, p := range m.providerSnapshot() {
		if p.IsVirtualRoot(id) {
			return true
		}
	}
	if m.hasNonVirtualItemStateLocked(ctx, id) {
		return true
	}
	for _, p := range m.providerSnapshot() {
		if p.HasItemState(id) {
			return true
		}
	}
	return false
}

func (m *Manager) hasNonVirtualItemStateLocked(ctx context.Context, id itemid.ItemId) bool {
	if m.cache.IsCached(id) {
		return true
	}
	if id.DenotesNode() {
		return m.engine.ExistsNode(ctx, id.UUID())
	}
	return m.engine.ExistsProperty(ctx, id)
}

// GetNodeReferences loads the reference bundle for target, consulting
// persistence then every virtual provider in order, falling back to an
// empty bundle. Bundles are never cached.
func (m *Manager) GetNodeReferences(target itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getNodeReferencesLocked(context.Background(), target)
}

// NewBinaryValue builds a BINARY InternalValue for payload, inlining it
// when it fits within the configured threshold (see WithBinaryInlineThreshold)
// and otherwise spilling it to the blob store configured via WithBlobStore,
// keyed by key. Without a configured blob store, payload is always
// inlined regardless of size.
func (m *Manager) NewBinaryValue(ctx context.Context, key string, payload []byte) (value.InternalValue, error) {
	if m.blobStore == nil || int64(len(payload)) <= m.binaryThreshold {
		return value.NewBinaryInline(payload), nil
	}
	info, err := m.blobStore.Put(ctx, key, bytes.NewReader(payload), blobstore.PutOptions{})
	if err != nil {
		return value.InternalValue{}, fmt.Errorf("spill binary payload to blob store: %w", err)
	}
	return value.NewBinaryRef(value.BlobRef{Key: info.Key, Size: info.Size}), nil
}

func (m *Manager) getNodeReferencesLocked(ctx context.Context, target itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	if r, err := m.engine.LoadReferences(ctx, target); err == nil {
		return r, nil
	}
	for _, p := range m.providerSnapshot() {
		if r, err := p.GetNodeReferences(target); err == nil {
			return r, nil
		}
	}
	return refs.New(target), nil
}

// ownerProvider returns the virtual provider owning uuid's node, if any.
func (m *Manager) ownerProvider(id uuid.UUID) provider.Provider {
	for _, p := range m.providerSnapshot() {
		if p.HasNodeState(id) {
			return p
		}
	}
	return nil
}

// Dispose evicts every cached shared state and detaches all listeners.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.EvictAll()
}

// Reopen recovers from a poisoned state (set after a Phase E failure) per
// the fail-stop + rebuild decision recorded in SPEC_FULL.md §9: the
// cache is discarded and the manager resumes serving reads/writes via
// fresh persistence loads.
func (m *Manager) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.EvictAll()
	m.poisoned = false
}

// Poisoned reports whether the last Store failed at Phase E, leaving the
// shared view untrustworthy until Reopen is called.
func (m *Manager) Poisoned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poisoned
}

// itemstate.Listener implementation -----------------------------------

// StateCreated caches a newly created shared state, idempotent if already
// present.
func (m *Manager) StateCreated(s itemstate.ItemState) {
	if m.cache.IsCached(s.ID()) {
		return
	}
	m.cache.Cache(s)
}

// StateModified is a no-op: modification does not change cache identity.
func (m *Manager) StateModified(itemstate.ItemState) {}

// StateDestroyed detaches self as listener and evicts the state.
func (m *Manager) StateDestroyed(s itemstate.ItemState) {
	s.RemoveListener(m)
	m.cache.Evict(s.ID())
}

// StateDiscarded is handled identically to StateDestroyed: an externally
// caused invalidation gets the same response as a committed deletion.
func (m *Manager) StateDiscarded(s itemstate.ItemState) {
	s.RemoveListener(m)
	m.cache.Evict(s.ID())
}

var (
	_ itemstate.Listener     = (*Manager)(nil)
	_ events.ItemStateSource = (*Manager)(nil)
)

// commit outcome labels for the CommitsTotal counter.
const (
	outcomeSuccess              = "success"
	outcomeReferentialIntegrity = "referential_integrity"
	outcomePersistenceFailure   = "persistence_failure"
)

func (m *Manager) recordCommit(start time.Time, outcome string) {
	m.metrics.Manager.CommitsTotal.WithLabelValues(outcome).Inc()
	m.metrics.Manager.CommitDuration.Observe(time.Since(start).Seconds())
}

// lockedSource resolves ids for event derivation inside Store, which
// already holds m.mu.
type lockedSource struct {
	m   *Manager
	ctx context.Context
}

func (s lockedSource) GetItemState(id itemid.ItemId) (itemstate.ItemState, error) {
	return s.m.getItemStateLocked(s.ctx, id)
}

// Store runs the full multi-phase commit protocol against local, a
// session's transient change log, dispatching derived events through obs
// (if non-nil) strictly after durable persistence.
func (m *Manager) Store(ctx context.Context, local *changelog.ChangeLog, obs events.ObservationManager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := time.Now()

	if m.poisoned {
		return fmt.Errorf("%w: manager poisoned, call Reopen", itemstate.ErrPersistenceFailure)
	}
	if local.Empty() {
		return nil
	}

	// Phase A: reference validation and bundle splitting.
	sharedRefTargets, virtualRefTargets, err := m.validateReferencesLocked(ctx, local)
	if err != nil {
		m.metrics.Manager.ReferentialFailures.Inc()
		m.recordCommit(start, outcomeReferentialIntegrity)
		return err
	}

	// Phase B: reconnection. Build the shared-side change log mirroring
	// local's three buckets, creating or fetching each added/modified/
	// deleted state's shared peer and connecting local to it.
	sharedLog := changelog.New()
	if err := m.reconnectLocked(ctx, local, sharedLog); err != nil {
		m.recordCommit(start, outcomePersistenceFailure)
		return err
	}
	for _, r := range sharedRefTargets {
		sharedLog.ModifiedRefs(r)
	}

	// Phase C: event derivation, against the pre-push shared view.
	var collection *events.EventStateCollection
	if obs != nil {
		collection = obs.CreateEventStateCollection()
		if err := collection.CreateEventStates(m.rootUUID, local, lockedSource{m: m, ctx: ctx}); err != nil {
			m.recordCommit(start, outcomePersistenceFailure)
			return err
		}
		if err := collection.Prepare(); err != nil {
			m.recordCommit(start, outcomePersistenceFailure)
			return err
		}
	}

	// Phase D: push transient data into the connected shared peers.
	local.Push()

	// Phase E: durable store. A failure here poisons the manager: shared
	// state may already be connected/pushed but not durably written, so
	// the cache can no longer be trusted and is rebuilt on Reopen.
	if err := m.engine.Store(ctx, sharedLog); err != nil {
		m.poisoned = true
		m.recordCommit(start, outcomePersistenceFailure)
		return fmt.Errorf("%w: %v", itemstate.ErrPersistenceFailure, err)
	}

	// Phase F: status transition + listener fan-out (cache attach/detach).
	sharedLog.Persisted()

	// Phase G: virtual reference handoff for bundles owned by a provider
	// rather than the base persistence engine.
	for _, r := range virtualRefTargets {
		for _, p := range m.providerSnapshot() {
			if p.SetNodeReferences(r) {
				break
			}
		}
	}

	// Phase H: dispatch, strictly after durable persistence.
	if collection != nil {
		if err := collection.Dispatch(); err != nil {
			m.logger.Error("event dispatch failed after successful commit", "error", err)
		}
	}

	m.recordCommit(start, outcomeSuccess)
	return nil
}

// validateReferencesLocked is Phase A. Its primary input is local's
// pre-supplied modified_refs bundles (ModifiedRefsList) — a caller that
// tracks reference changes itself hands the manager the final bundle per
// target, exactly as the shared log's own modified-reference set is built.
// On top of that, it also walks every REFERENCE value in local's added and
// modified properties as a convenience for callers that don't pre-compute
// bundles themselves, checks each target exists, and accumulates the
// reference-bundle updates split by whether the target belongs to the base
// persistence engine or to a virtual provider. It also removes stale
// back-pointers for modified/deleted REFERENCE properties.
func (m *Manager) validateReferencesLocked(ctx context.Context, local *changelog.ChangeLog) (shared, virtual []*refs.NodeReferences, err error) {
	bundles := make(map[uuid.UUID]*refs.NodeReferences)
	owners := make(map[uuid.UUID]provider.Provider)

	// A reference target is accepted when it is present in local (and not
	// deleted there) or already has item state in cache/persistence. Phase A
	// runs before Phase B creates local's added nodes' shared peers, so a
	// node added in this same commit exists only in local at this point.
	targetExists := func(target uuid.UUID) bool {
		id := itemid.NodeId(target)
		if _, ok := local.Get(id); ok && !local.IsDeleted(id) {
			return true
		}
		return m.hasNonVirtualItemStateLocked(ctx, id)
	}

	bundleFor := func(target uuid.UUID) (*refs.NodeReferences, error) {
		if b, ok := bundles[target]; ok {
			return b, nil
		}
		if !targetExists(target) {
			if p := m.ownerProvider(target); p != nil {
				owners[target] = p
			} else {
				return nil, fmt.Errorf("%w: reference target %s does not exist", itemstate.ErrReferentialIntegrity, target)
			}
		}
		b, loadErr := m.getNodeReferencesLocked(ctx, itemid.NodeReferencesId{TargetUUID: target})
		if loadErr != nil {
			b = refs.New(itemid.NodeReferencesId{TargetUUID: target})
		}
		bundles[target] = b
		return b, nil
	}

	// Seed the map from local's pre-supplied bundles before the
	// REFERENCE-property scan below runs, so that scan augments (rather
	// than replaces) a bundle the caller already computed. A target owned
	// by a virtual provider is handed off unconditionally; otherwise the
	// target must still exist unless the bundle has been emptied (its last
	// reference was removed).
	for _, r := range local.ModifiedRefsList() {
		target := r.ID.TargetUUID
		if p := m.ownerProvider(target); p != nil {
			owners[target] = p
		} else if r.HasReferences() && !targetExists(target) {
			return nil, nil, fmt.Errorf("%w: reference target %s does not exist", itemstate.ErrReferentialIntegrity, target)
		}
		bundles[target] = r
	}

	removeStale := func(p *itemstate.PropertyState) {
		existing, loadErr := m.getPropertyStateLocked(ctx, p.ID())
		if loadErr != nil {
			return
		}
		old, ok := existing.(*itemstate.PropertyState)
		if !ok || old.ValueType != value.TypeReference {
			return
		}
		for _, v := range old.Values {
			b, berr := bundleFor(v.Ref)
			if berr != nil {
				continue
			}
			b.RemoveReference(p.ID())
		}
	}

	for _, s := range local.ModifiedStates() {
		if p, ok := s.(*itemstate.PropertyState); ok {
			removeStale(p)
		}
	}
	for _, s := range local.DeletedStates() {
		if p, ok := s.(*itemstate.PropertyState); ok {
			removeStale(p)
		}
	}

	addFresh := func(states []itemstate.ItemState) error {
		for _, s := range states {
			p, ok := s.(*itemstate.PropertyState)
			if !ok || p.ValueType != value.TypeReference {
				continue
			}
			for _, v := range p.Values {
				b, err := bundleFor(v.Ref)
				if err != nil {
					return err
				}
				b.AddReference(p.ID())
			}
		}
		return nil
	}
	if err := addFresh(local.AddedStates()); err != nil {
		return nil, nil, err
	}
	if err := addFresh(local.ModifiedStates()); err != nil {
		return nil, nil, err
	}

	for target, b := range bundles {
		if _, isVirtual := owners[target]; isVirtual {
			virtual = append(virtual, b)
		} else {
			shared = append(shared, b)
		}
	}
	return shared, virtual, nil
}

// reconnectLocked implements Phase B: for every state in local's three
// buckets, obtain (creating if necessary) the shared peer and connect
// the transient state to it, recording the shared peer in sharedLog
// under the matching bucket with the status the commit requires.
func (m *Manager) reconnectLocked(ctx context.Context, local *changelog.ChangeLog, sharedLog *changelog.ChangeLog) error {
	for _, s := range local.AddedStates() {
		shared, err := m.createSharedPeerLocked(s)
		if err != nil {
			return err
		}
		if err := s.Connect(shared); err != nil {
			return err
		}
		sharedLog.Added(shared)
	}
	for _, s := range local.ModifiedStates() {
		shared, err := m.existingSharedPeerLocked(ctx, s)
		if err != nil {
			return err
		}
		if s.Overlay() == nil {
			if err := s.Connect(shared); err != nil {
				return err
			}
		}
		shared.SetStatus(itemstate.StatusExistingModified)
		sharedLog.Modified(shared)
	}
	for _, s := range local.DeletedStates() {
		shared, err := m.existingSharedPeerLocked(ctx, s)
		if err != nil {
			return err
		}
		if s.Overlay() == nil {
			if err := s.Connect(shared); err != nil {
				return err
			}
		}
		shared.SetStatus(itemstate.StatusExistingRemoved)
		sharedLog.Deleted(shared)
	}
	return nil
}

func (m *Manager) createSharedPeerLocked(t itemstate.ItemState) (itemstate.ItemState, error) {
	switch v := t.(type) {
	case *itemstate.NodeState:
		shared := m.engine.CreateNewNode(v.UUID)
		shared.SetDefinitionID(v.DefinitionID())
		shared.AddListener(m)
		return shared, nil
	case *itemstate.PropertyState:
		shared := m.engine.CreateNewProperty(v.ID())
		shared.SetDefinitionID(v.DefinitionID())
		shared.AddListener(m)
		return shared, nil
	default:
		return nil, fmt.Errorf("itemstate: unknown state type %T", t)
	}
}

func (m *Manager) existingSharedPeerLocked(ctx context.Context, t itemstate.ItemState) (itemstate.ItemState, error) {
	if overlay := t.Overlay(); overlay != nil {
		return overlay, nil
	}
	return m.getNonVirtualItemStateLocked(ctx, t.ID())
}

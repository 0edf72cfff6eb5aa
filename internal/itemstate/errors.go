package itemstate

import "errors"

// Sentinel error kinds surfaced by the manager, checked with errors.Is.
var (
	// ErrNoSuchItem is returned when an id resolves to nothing, locally,
	// in persistence, or in any registered virtual provider.
	ErrNoSuchItem = errors.New("itemstate: no such item")

	// ErrReferentialIntegrity is returned when a REFERENCE property's
	// target cannot be validated at commit time.
	ErrReferentialIntegrity = errors.New("itemstate: referential integrity violation")

	// ErrPersistenceFailure is returned when the durable store step of a
	// commit fails after shared state has already been pushed.
	ErrPersistenceFailure = errors.New("itemstate: persistence failure")

	// ErrSchemaFailure is returned when bootstrap cannot find the
	// mandatory type definitions for the root node.
	ErrSchemaFailure = errors.New("itemstate: schema failure")

	// ErrProviderFailure is the manager-layer view of a virtual provider
	// erroring during resolution; it is folded into ErrNoSuchItem by the
	// manager rather than propagated raw, per design.
	ErrProviderFailure = errors.New("itemstate: virtual provider failure")

	// ErrAlreadyCached is a programming error: cache(state) was called for
	// an id already present in the cache.
	ErrAlreadyCached = errors.New("itemstate: state already cached")

	// ErrAlreadyConnected is a programming error: connect was called on a
	// state that already has an overlay binding.
	ErrAlreadyConnected = errors.New("itemstate: state already connected")
)

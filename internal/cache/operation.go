package cache

import "github.com/google/uuid"

// Operation is the cache subsystem's view of a node in the compositing
// graph: just enough identity to look up, store, and invalidate its
// result. Host node types implement this directly rather than the cache
// package knowing anything about node evaluation.
type Operation interface {
	// Fingerprint is this operation's content-addressed cache key.
	Fingerprint() OpKey

	// Cacheable reports whether this operation's result is worth caching
	// at all (some operations are too cheap to bother, e.g. a pass-through).
	Cacheable() bool

	// Persistent reports whether this operation additionally wants its
	// result tracked under a PersistentKey, surviving graph recompilation
	// even when its fingerprint changes.
	Persistent() bool
	PersistentKey() PersistentKey

	// PreviewKey returns the preview slot this operation writes to, if it
	// is a preview-producing node.
	PreviewKey() (uint32, bool)

	// ImageSessionID returns the viewer session this operation updates, if
	// it is a viewer node.
	ImageSessionID() (uuid.UUID, bool)
}

package cache

import "github.com/google/uuid"

// previewEntry is the cached result behind one preview slot.
type previewEntry struct {
	fingerprint OpKey
	buffer      []byte
}

// ViewRegistry is the cache subsystem's second, independent cache: one
// entry per preview thumbnail slot and one per open viewer session. Unlike
// the tiered OpKey caches, entries here are keyed by a small integer or a
// session id that the host assigns, not by content fingerprint, and there
// is no budget or eviction: deinitialize is what prunes it, by discarding
// whatever nothing asked for during the run that just ended.
type ViewRegistry struct {
	previews  map[uint32]*previewEntry
	exercised map[uint32]struct{}
	viewers   map[uuid.UUID]OpKey
}

// NewViewRegistry creates an empty view registry.
func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{
		previews:  make(map[uint32]*previewEntry),
		exercised: make(map[uint32]struct{}),
		viewers:   make(map[uuid.UUID]OpKey),
	}
}

// Initialize clears the exercised set at the start of a run; it does not
// touch the previews or viewers themselves.
func (v *ViewRegistry) Initialize() {
	v.exercised = make(map[uint32]struct{})
}

// Deinitialize prunes previews nothing exercised during the run that just
// ended, unless that run was interrupted before finishing: a breaked
// evaluation tells us nothing about which previews are still wanted, so
// none of them are dropped.
func (v *ViewRegistry) Deinitialize(interrupted bool) {
	if !interrupted {
		for key := range v.previews {
			if _, ok := v.exercised[key]; !ok {
				delete(v.previews, key)
			}
		}
	}
	v.exercised = make(map[uint32]struct{})
}

// GetPreview looks up op's preview slot. A lookup always marks the slot
// exercised, whether it hits or misses, so Deinitialize knows this run
// asked about it. A stale entry (present but for a different fingerprint)
// is dropped on the spot rather than left for later pruning.
func (v *ViewRegistry) GetPreview(op Operation) ([]byte, bool) {
	key, ok := op.PreviewKey()
	if !ok {
		return nil, false
	}
	v.exercised[key] = struct{}{}

	entry, ok := v.previews[key]
	if !ok {
		return nil, false
	}
	if entry.fingerprint == op.Fingerprint() {
		return entry.buffer, true
	}
	delete(v.previews, key)
	return nil, false
}

// ReportPreviewWrite records a freshly rendered preview. It is a contract
// violation to report a write for a slot that already holds an entry:
// callers must check GetPreview first and only write on a miss.
func (v *ViewRegistry) ReportPreviewWrite(op Operation, buf []byte) error {
	key, ok := op.PreviewKey()
	if !ok {
		violate("ReportPreviewWrite called on an operation with no preview key")
	}
	if _, exists := v.previews[key]; exists {
		violate("ReportPreviewWrite called for a slot that already has an entry")
	}
	v.previews[key] = &previewEntry{fingerprint: op.Fingerprint(), buffer: buf}
	return nil
}

// ViewerNeedsUpdate reports whether the viewer session op targets is
// showing something other than op's current fingerprint (or has never
// been written to at all).
func (v *ViewRegistry) ViewerNeedsUpdate(op Operation) bool {
	id, ok := op.ImageSessionID()
	if !ok {
		return true
	}
	fp, ok := v.viewers[id]
	return !ok || fp != op.Fingerprint()
}

// ReportViewerWrite records that op's fingerprint is now what the viewer
// session it targets is displaying.
func (v *ViewRegistry) ReportViewerWrite(op Operation) {
	id, ok := op.ImageSessionID()
	if !ok {
		return
	}
	v.viewers[id] = op.Fingerprint()
}

// Has reports whether op already has a live view-registry entry, whether
// it is a preview or a viewer operation. For preview operations this
// necessarily exercises the GetPreview side effect, matching how the
// original dispatch inspected previews as part of answering "is there
// anything here at all" before falling back to the tiered caches.
func (v *ViewRegistry) Has(op Operation) bool {
	if _, ok := op.PreviewKey(); ok {
		_, hit := v.GetPreview(op)
		return hit
	}
	if _, ok := op.ImageSessionID(); ok {
		return !v.ViewerNeedsUpdate(op)
	}
	return false
}

package cache

import "github.com/google/uuid"

// fakeOp is a minimal Operation used across the package's tests.
type fakeOp struct {
	fp            OpKey
	cacheable     bool
	persistent    bool
	persistentKey PersistentKey
	previewKey    uint32
	hasPreview    bool
	sessionID     uuid.UUID
	hasSession    bool
}

func (o *fakeOp) Fingerprint() OpKey          { return o.fp }
func (o *fakeOp) Cacheable() bool             { return o.cacheable }
func (o *fakeOp) Persistent() bool            { return o.persistent }
func (o *fakeOp) PersistentKey() PersistentKey { return o.persistentKey }

func (o *fakeOp) PreviewKey() (uint32, bool) {
	return o.previewKey, o.hasPreview
}

func (o *fakeOp) ImageSessionID() (uuid.UUID, bool) {
	return o.sessionID, o.hasSession
}

func opKey(opType, hash uint64, w, h int) OpKey {
	return OpKey{OpTypeID: opType, ContentHash: hash, Width: w, Height: h, PixelType: PixelColor}
}

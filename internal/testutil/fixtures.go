package testutil

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/compositor/cachecore/internal/cache"
)

// SampleOpKey returns a deterministic OpKey for a 64x64 color buffer,
// suitable for exercising tiers and the manager in tests without caring
// about the exact fingerprint value.
func SampleOpKey(opType, contentHash uint64) cache.OpKey {
	return cache.OpKey{
		OpTypeID:    opType,
		ContentHash: contentHash,
		Width:       64,
		Height:      64,
		PixelType:   cache.PixelColor,
	}
}

// SampleBuffer returns a float32 buffer of the right length for fp, filled
// with a repeating pattern seeded from fill so two calls with different
// fill values are easy to tell apart in assertions.
func SampleBuffer(fp cache.OpKey, fill float32) []float32 {
	n := fp.Width * fp.Height * fp.PixelType.Channels()
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = fill + float32(i)*0.001
	}
	return buf
}

// RandomOpKey returns an OpKey with a random content hash, useful for
// generating distinct cache entries in bulk without collisions.
func RandomOpKey(opType uint64, width, height int, pixelType cache.PixelType) cache.OpKey {
	return cache.OpKey{
		OpTypeID:    opType,
		ContentHash: rand.Uint64(),
		Width:       width,
		Height:      height,
		PixelType:   pixelType,
	}
}

// SamplePersistentKey returns a PersistentKey for the given frame and node,
// at the same shape SampleOpKey uses.
func SamplePersistentKey(frame int, nodeIdentity uint64) cache.PersistentKey {
	return cache.PersistentKey{
		FrameNumber:  frame,
		NodeIdentity: nodeIdentity,
		Width:        64,
		Height:       64,
		PixelType:    cache.PixelColor,
	}
}

// fakeOperation is a minimal cache.Operation for integration-style tests
// that need to drive a CacheManager rather than a bare tier.
type fakeOperation struct {
	fp            cache.OpKey
	cacheable     bool
	persistent    bool
	persistentKey cache.PersistentKey
	previewKey    uint32
	hasPreview    bool
	sessionID     uuid.UUID
	hasSession    bool
}

func (o *fakeOperation) Fingerprint() cache.OpKey           { return o.fp }
func (o *fakeOperation) Cacheable() bool                    { return o.cacheable }
func (o *fakeOperation) Persistent() bool                   { return o.persistent }
func (o *fakeOperation) PersistentKey() cache.PersistentKey { return o.persistentKey }
func (o *fakeOperation) PreviewKey() (uint32, bool)         { return o.previewKey, o.hasPreview }
func (o *fakeOperation) ImageSessionID() (uuid.UUID, bool)  { return o.sessionID, o.hasSession }

// NewCacheableOperation returns an Operation that is cacheable but not
// persistent and writes neither a preview nor a viewer slot.
func NewCacheableOperation(fp cache.OpKey) cache.Operation {
	return &fakeOperation{fp: fp, cacheable: true}
}

// NewPersistentOperation returns a cacheable Operation that also tracks a
// PersistentKey, the way a node bound to a fixed graph position would.
func NewPersistentOperation(fp cache.OpKey, pk cache.PersistentKey) cache.Operation {
	return &fakeOperation{fp: fp, cacheable: true, persistent: true, persistentKey: pk}
}

var _ cache.Operation = (*fakeOperation)(nil)

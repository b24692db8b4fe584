package cache

import (
	"github.com/cespare/xxhash/v2"
)

// PixelType identifies the channel layout of a cached buffer.
type PixelType int

const (
	PixelValue PixelType = iota
	PixelVector
	PixelColor
)

// Channels returns the number of float32 channels per pixel for t.
func (t PixelType) Channels() int {
	switch t {
	case PixelVector:
		return 3
	case PixelColor:
		return 4
	default:
		return 1
	}
}

func (t PixelType) String() string {
	switch t {
	case PixelVector:
		return "vector"
	case PixelColor:
		return "color"
	default:
		return "value"
	}
}

// OpKey identifies a single cached buffer: the operation that produced it,
// the content that fed it, and the shape of the result. Equality is
// componentwise; ContentHash alone stands in as the default hash, matching
// how the rest of the package buckets entries by fingerprint.
type OpKey struct {
	OpTypeID    uint64
	ContentHash uint64
	Width       int
	Height      int
	PixelType   PixelType
}

// Equal reports whether k and o identify the same cached buffer.
func (k OpKey) Equal(o OpKey) bool {
	return k.OpTypeID == o.OpTypeID &&
		k.ContentHash == o.ContentHash &&
		k.Width == o.Width &&
		k.Height == o.Height &&
		k.PixelType == o.PixelType
}

// Bytes returns the size in bytes of the float32 buffer this key describes.
func (k OpKey) Bytes() int64 {
	return int64(k.Width) * int64(k.Height) * int64(k.PixelType.Channels()) * 4
}

// PersistentKey identifies a node's output across graph recompilations,
// independent of the exact content that produced it. The compositor uses
// it to recognize "this is still logically the same node's result" even
// after the fingerprint of its inputs has changed.
type PersistentKey struct {
	FrameNumber  int
	NodeIdentity uint64
	Width        int
	Height       int
	PixelType    PixelType
}

// Equal reports whether k and o name the same persistent slot.
func (k PersistentKey) Equal(o PersistentKey) bool {
	return k.FrameNumber == o.FrameNumber &&
		k.NodeIdentity == o.NodeIdentity &&
		k.Width == o.Width &&
		k.Height == o.Height &&
		k.PixelType == o.PixelType
}

// FingerprintBuilder accumulates the inputs of an operation (its type, its
// parameters, and the fingerprints of whatever it reads) into a single
// 64-bit content hash, the same way a node would fold its upstream
// fingerprints together while building its own OpKey.
type FingerprintBuilder struct {
	opTypeID uint64
	digest   *xxhash.Digest
}

// NewFingerprintBuilder starts a fresh fingerprint for an operation of the
// given type.
func NewFingerprintBuilder(opTypeID uint64) *FingerprintBuilder {
	b := &FingerprintBuilder{opTypeID: opTypeID, digest: xxhash.New()}
	var buf [8]byte
	putUint64(buf[:], opTypeID)
	_, _ = b.digest.Write(buf[:])
	return b
}

// WriteBytes folds raw parameter bytes into the fingerprint.
func (b *FingerprintBuilder) WriteBytes(p []byte) *FingerprintBuilder {
	_, _ = b.digest.Write(p)
	return b
}

// WriteString folds a string parameter into the fingerprint.
func (b *FingerprintBuilder) WriteString(s string) *FingerprintBuilder {
	_, _ = b.digest.Write([]byte(s))
	return b
}

// WriteUint64 folds an integer parameter into the fingerprint.
func (b *FingerprintBuilder) WriteUint64(v uint64) *FingerprintBuilder {
	var buf [8]byte
	putUint64(buf[:], v)
	_, _ = b.digest.Write(buf[:])
	return b
}

// WriteUpstream folds an upstream operation's fingerprint into this one, so
// that any change to an input is reflected in the downstream hash.
func (b *FingerprintBuilder) WriteUpstream(k OpKey) *FingerprintBuilder {
	return b.WriteUint64(k.ContentHash).WriteUint64(uint64(k.Width)).WriteUint64(uint64(k.Height))
}

// Build finalizes the fingerprint into an OpKey for a buffer of the given
// shape.
func (b *FingerprintBuilder) Build(width, height int, pixelType PixelType) OpKey {
	return OpKey{
		OpTypeID:    b.opTypeID,
		ContentHash: b.digest.Sum64(),
		Width:       width,
		Height:      height,
		PixelType:   pixelType,
	}
}

func putUint64(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

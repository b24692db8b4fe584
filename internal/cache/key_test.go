package cache

import "testing"

func TestOpKeyEqual(t *testing.T) {
	a := opKey(1, 2, 4, 4)
	b := opKey(1, 2, 4, 4)
	c := opKey(1, 3, 4, 4)
	if !a.Equal(b) {
		t.Fatalf("expected equal keys to compare equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected keys with different hash to compare unequal")
	}
}

func TestOpKeyBytes(t *testing.T) {
	k := OpKey{Width: 10, Height: 5, PixelType: PixelColor}
	if got, want := k.Bytes(), int64(10*5*4*4); got != want {
		t.Fatalf("Bytes() = %d, want %d", got, want)
	}
}

func TestFingerprintBuilderDeterministic(t *testing.T) {
	build := func() OpKey {
		b := NewFingerprintBuilder(7)
		b.WriteString("blur").WriteUint64(3)
		return b.Build(64, 64, PixelValue)
	}
	a, b := build(), build()
	if a.ContentHash != b.ContentHash {
		t.Fatalf("expected identical inputs to produce identical fingerprints")
	}
}

func TestFingerprintBuilderSensitiveToInputs(t *testing.T) {
	base := NewFingerprintBuilder(7).WriteString("blur").WriteUint64(3).Build(64, 64, PixelValue)
	changed := NewFingerprintBuilder(7).WriteString("blur").WriteUint64(4).Build(64, 64, PixelValue)
	if base.ContentHash == changed.ContentHash {
		t.Fatalf("expected different parameters to produce different fingerprints")
	}
}

func TestFingerprintBuilderWriteUpstream(t *testing.T) {
	upstream := opKey(1, 99, 8, 8)
	withUpstream := NewFingerprintBuilder(2).WriteUpstream(upstream).Build(8, 8, PixelValue)
	without := NewFingerprintBuilder(2).Build(8, 8, PixelValue)
	if withUpstream.ContentHash == without.ContentHash {
		t.Fatalf("expected folding an upstream fingerprint in to change the result")
	}
}

func TestPersistentKeyEqual(t *testing.T) {
	a := PersistentKey{FrameNumber: 1, NodeIdentity: 5, Width: 4, Height: 4, PixelType: PixelColor}
	b := a
	if !a.Equal(b) {
		t.Fatalf("expected identical persistent keys to compare equal")
	}
	b.FrameNumber = 2
	if a.Equal(b) {
		t.Fatalf("expected different frame numbers to compare unequal")
	}
}

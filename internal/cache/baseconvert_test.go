package cache

import "testing"

func TestEncodeDecodeBaseRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 9, 10, 61, 62, 123456789, 1 << 40}
	for _, v := range values {
		enc := encodeBase(v, maxRadix)
		dec, ok := decodeBase(enc, maxRadix)
		if !ok {
			t.Fatalf("decodeBase(%q) failed for v=%d", enc, v)
		}
		if dec != v {
			t.Fatalf("round trip mismatch: v=%d encoded=%q decoded=%d", v, enc, dec)
		}
	}
}

func TestEncodeBaseZeroIsEmpty(t *testing.T) {
	if got := encodeBase(0, maxRadix); got != "" {
		t.Fatalf("encodeBase(0) = %q, want empty string", got)
	}
}

func TestDecodeBaseEmptyIsZero(t *testing.T) {
	v, ok := decodeBase("", maxRadix)
	if !ok || v != 0 {
		t.Fatalf("decodeBase(\"\") = (%d, %v), want (0, true)", v, ok)
	}
}

func TestDecodeBaseRejectsInvalidChars(t *testing.T) {
	if _, ok := decodeBase("12_34", maxRadix); ok {
		t.Fatalf("expected decodeBase to reject an invalid character")
	}
	if _, ok := decodeBase("zz", 36); ok {
		t.Fatalf("expected decodeBase to reject digits at or above the radix")
	}
}

func TestCacheFilenameRoundTrip(t *testing.T) {
	k := OpKey{OpTypeID: 42, ContentHash: 123456789, Width: 1920, Height: 1080, PixelType: PixelColor}
	name := cacheFilename(k, 1700000000)
	got, saveTime, ok := parseCacheFilename(name)
	if !ok {
		t.Fatalf("parseCacheFilename(%q) failed", name)
	}
	if got != k {
		t.Fatalf("parseCacheFilename round trip = %+v, want %+v", got, k)
	}
	if saveTime != 1700000000 {
		t.Fatalf("parseCacheFilename save time = %d, want 1700000000", saveTime)
	}
}

func TestCacheFilenameZeroFieldsRoundTrip(t *testing.T) {
	k := OpKey{}
	name := cacheFilename(k, 0)
	got, saveTime, ok := parseCacheFilename(name)
	if !ok {
		t.Fatalf("parseCacheFilename(%q) failed for all-zero key", name)
	}
	if got != k || saveTime != 0 {
		t.Fatalf("round trip of zero key = (%+v, %d)", got, saveTime)
	}
}

func TestParseCacheFilenameRejectsWrongPartCount(t *testing.T) {
	if _, _, ok := parseCacheFilename("1_2_3"); ok {
		t.Fatalf("expected filename with too few parts to be rejected")
	}
}

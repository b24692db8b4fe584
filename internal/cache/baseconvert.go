package cache

import "strings"

// baseAlphabet is the digit set used to render integers as short,
// filename-safe tokens: 0-9 then A-Z then a-z, 62 symbols wide.
const baseAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	minRadix = 10
	maxRadix = 62
)

var digitValue [256]int8

func init() {
	for i := range digitValue {
		digitValue[i] = -1
	}
	for i := 0; i < len(baseAlphabet); i++ {
		digitValue[baseAlphabet[i]] = int8(i)
	}
}

// encodeBase renders v in the given radix (10-62) using baseAlphabet,
// most-significant digit first. It returns the empty string for v == 0,
// matching the convention the disk tier's filenames rely on: a zero-valued
// field contributes no characters between its surrounding separators.
func encodeBase(v uint64, radix int) string {
	if v == 0 {
		return ""
	}
	var digits []byte
	r := uint64(radix)
	for v > 0 {
		digits = append(digits, baseAlphabet[v%r])
		v /= r
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}

// decodeBase parses s as a base-radix integer. An empty string decodes to
// (0, true): a field that encoded to nothing (because its value was 0)
// must also decode back to 0 without error. Any character outside the
// alphabet, or outside [0, radix), makes the whole string invalid.
func decodeBase(s string, radix int) (uint64, bool) {
	var result uint64
	mult := uint64(1)
	r := int8(radix)
	for i := len(s) - 1; i >= 0; i-- {
		d := digitValue[s[i]]
		if d < 0 || d >= r {
			return 0, false
		}
		result += uint64(d) * mult
		mult *= uint64(radix)
	}
	return result, true
}

// cacheFilename builds the on-disk filename for k saved at lastSaveTime, encoding width,
// height, pixel type, content hash, and save time as base-62 fields
// joined by underscores: W_H_T_H_S. A trailing op-type field is appended
// so that a single shared cache directory can disambiguate buffers from
// different operation types, something the single-op-type-per-instance
// original format didn't need to express.
func cacheFilename(k OpKey, lastSaveTime int64) string {
	parts := []string{
		encodeBase(uint64(k.Width), maxRadix),
		encodeBase(uint64(k.Height), maxRadix),
		encodeBase(uint64(k.PixelType), maxRadix),
		encodeBase(k.ContentHash, maxRadix),
		encodeBase(uint64(lastSaveTime), maxRadix),
		encodeBase(k.OpTypeID, maxRadix),
	}
	return strings.Join(parts, "_")
}

const filenameFieldCount = 6

// parseCacheFilename reverses cacheFilename.
func parseCacheFilename(name string) (OpKey, int64, bool) {
	parts := strings.Split(name, "_")
	if len(parts) != filenameFieldCount {
		return OpKey{}, 0, false
	}
	width, ok := decodeBase(parts[0], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	height, ok := decodeBase(parts[1], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	pixelType, ok := decodeBase(parts[2], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	hash, ok := decodeBase(parts[3], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	saveTime, ok := decodeBase(parts[4], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	opTypeID, ok := decodeBase(parts[5], maxRadix)
	if !ok {
		return OpKey{}, 0, false
	}
	return OpKey{
		OpTypeID:    opTypeID,
		ContentHash: hash,
		Width:       int(width),
		Height:      int(height),
		PixelType:   PixelType(pixelType),
	}, int64(saveTime), true
}

package cache

import "time"

// CacheInfo is the bookkeeping record a tier keeps for one cached buffer:
// enough to compute its size, order it for eviction, and rebuild its
// on-disk filename, without holding the buffer itself.
type CacheInfo struct {
	Fingerprint  OpKey
	LastUseTime  int64 // nanoseconds, monotonic-ish wall clock
	LastSaveTime int64
}

// TotalBytes returns the size of the buffer this entry describes.
func (c *CacheInfo) TotalBytes() int64 {
	return c.Fingerprint.Bytes()
}

// RemovedCache is a buffer a tier has detached from its own bookkeeping
// without destroying it, so that a caller (typically the manager rehoming
// memory entries onto disk) can hand it to another tier.
type RemovedCache struct {
	Buffer       []float32
	Fingerprint  OpKey
	LastUseTime  int64
	LastSaveTime int64
}

// nowNS returns the current time as nanoseconds since the Unix epoch. It
// is the single place that reads the wall clock so tests can be written
// against fixed CacheInfo values without racing a live clock.
func nowNS() int64 {
	return time.Now().UnixNano()
}

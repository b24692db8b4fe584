package store

import (
	"fmt"
	"time"

	"github.com/compositor/cachecore/internal/cache"
)

// Fingerprint is a row of the fingerprints analytics table: how often a
// given OpKey has been seen and over what span, for the dashboard.
type Fingerprint struct {
	Key       cache.OpKey
	FirstSeen time.Time
	LastSeen  time.Time
	HitCount  int64
}

// RecordFingerprintHit upserts a fingerprint row, bumping its hit count
// and last-seen time (or creating it with hit_count 1 on first sight).
func (s *Store) RecordFingerprintHit(key cache.OpKey) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.writer.Exec(`
INSERT INTO fingerprints (op_type_id, content_hash, width, height, pixel_type, first_seen, last_seen, hit_count)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (op_type_id, content_hash, width, height, pixel_type) DO UPDATE SET
    last_seen = excluded.last_seen,
    hit_count = hit_count + 1
`,
		key.OpTypeID, int64(key.ContentHash), key.Width, key.Height, int(key.PixelType),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("store: record fingerprint hit: %w", err)
	}
	return nil
}

// TopFingerprints returns the limit most-frequently-hit fingerprints,
// most hits first.
func (s *Store) TopFingerprints(limit int) ([]Fingerprint, error) {
	rows, err := s.reader.Query(`
SELECT op_type_id, content_hash, width, height, pixel_type, first_seen, last_seen, hit_count
FROM fingerprints
ORDER BY hit_count DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: top fingerprints: %w", err)
	}
	defer rows.Close()

	var out []Fingerprint
	for rows.Next() {
		var f Fingerprint
		var contentHash int64
		var pixelType int
		var firstSeen, lastSeen string
		if err := rows.Scan(&f.Key.OpTypeID, &contentHash, &f.Key.Width, &f.Key.Height, &pixelType,
			&firstSeen, &lastSeen, &f.HitCount); err != nil {
			return nil, fmt.Errorf("store: scan fingerprint: %w", err)
		}
		f.Key.ContentHash = uint64(contentHash)
		f.Key.PixelType = cache.PixelType(pixelType)
		f.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
		f.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		out = append(out, f)
	}
	return out, rows.Err()
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TierStat is a single snapshot of one tier's byte usage.
type TierStat struct {
	Tier        string
	RecordedAt  time.Time
	BytesUsed   int64
	BytesBudget int64
	EntryCount  int
}

// RecordTierUsage inserts a new usage snapshot for tier. Unlike
// PersistentKeyStore's mappings, usage history is append-only: each call
// is a new point in time, not a row to overwrite.
func (s *Store) RecordTierUsage(tier string, bytesUsed, bytesBudget int64, entryCount int) error {
	_, err := s.writer.Exec(`
INSERT INTO tier_stats (tier, recorded_at, bytes_used, bytes_budget, entry_count)
VALUES (?, ?, ?, ?, ?)
`, tier, time.Now().UTC().Format(time.RFC3339), bytesUsed, bytesBudget, entryCount)
	if err != nil {
		return fmt.Errorf("store: record tier usage: %w", err)
	}
	return nil
}

// LatestTierUsage returns the most recent usage snapshot for tier, if any.
func (s *Store) LatestTierUsage(tier string) (TierStat, bool, error) {
	var stat TierStat
	var recordedAt string
	row := s.reader.QueryRow(`
SELECT tier, recorded_at, bytes_used, bytes_budget, entry_count
FROM tier_stats
WHERE tier = ?
ORDER BY recorded_at DESC
LIMIT 1
`, tier)

	err := row.Scan(&stat.Tier, &recordedAt, &stat.BytesUsed, &stat.BytesBudget, &stat.EntryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return TierStat{}, false, nil
	}
	if err != nil {
		return TierStat{}, false, fmt.Errorf("store: latest tier usage: %w", err)
	}
	stat.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
	return stat, true, nil
}

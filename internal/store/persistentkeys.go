package store

import (
	"fmt"
	"time"

	"github.com/compositor/cachecore/internal/cache"
)

// PersistentKeyStore is a durable, sqlite-backed PersistentKey -> OpKey
// mapping. It implements cache.PersistentStore so a CacheManager can carry
// the "still logically the same node" handoff described in the component
// design across process restarts, not just within one run.
type PersistentKeyStore struct {
	s *Store
}

// NewPersistentKeyStore wraps s for persistent-key durability.
func NewPersistentKeyStore(s *Store) *PersistentKeyStore {
	return &PersistentKeyStore{s: s}
}

var _ cache.PersistentStore = (*PersistentKeyStore)(nil)

// Set records (or replaces) the OpKey a PersistentKey currently maps to.
func (p *PersistentKeyStore) Set(pk cache.PersistentKey, op cache.OpKey) error {
	_, err := p.s.writer.Exec(`
INSERT INTO persistent_keys
    (frame_number, node_identity, width, height, pixel_type,
     op_type_id, content_hash, op_width, op_height, op_pixel_type, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (frame_number, node_identity, width, height, pixel_type) DO UPDATE SET
    op_type_id = excluded.op_type_id,
    content_hash = excluded.content_hash,
    op_width = excluded.op_width,
    op_height = excluded.op_height,
    op_pixel_type = excluded.op_pixel_type,
    updated_at = excluded.updated_at
`,
		pk.FrameNumber, pk.NodeIdentity, pk.Width, pk.Height, int(pk.PixelType),
		op.OpTypeID, int64(op.ContentHash), op.Width, op.Height, int(op.PixelType),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: set persistent key: %w", err)
	}
	return nil
}

// Get returns the OpKey mapped to pk, if any. It satisfies
// cache.PersistentStore, which treats a lookup failure the same as a miss
// since the in-memory map it backs has no error return either; a query
// error is reported as a miss and is not logged.
func (p *PersistentKeyStore) Get(pk cache.PersistentKey) (cache.OpKey, bool) {
	var op cache.OpKey
	var contentHash int64
	var pixelType int
	row := p.s.reader.QueryRow(`
SELECT op_type_id, content_hash, op_width, op_height, op_pixel_type
FROM persistent_keys
WHERE frame_number = ? AND node_identity = ? AND width = ? AND height = ? AND pixel_type = ?
`, pk.FrameNumber, pk.NodeIdentity, pk.Width, pk.Height, int(pk.PixelType))

	err := row.Scan(&op.OpTypeID, &contentHash, &op.Width, &op.Height, &pixelType)
	if err != nil {
		return cache.OpKey{}, false
	}
	op.ContentHash = uint64(contentHash)
	op.PixelType = cache.PixelType(pixelType)
	return op, true
}

// Delete removes pk's mapping, if any.
func (p *PersistentKeyStore) Delete(pk cache.PersistentKey) error {
	_, err := p.s.writer.Exec(`
DELETE FROM persistent_keys
WHERE frame_number = ? AND node_identity = ? AND width = ? AND height = ? AND pixel_type = ?
`, pk.FrameNumber, pk.NodeIdentity, pk.Width, pk.Height, int(pk.PixelType))
	if err != nil {
		return fmt.Errorf("store: delete persistent key: %w", err)
	}
	return nil
}

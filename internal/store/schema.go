package store

// SQL schema constants for the cache subsystem's durability tables. None of
// these hold buffer bytes — the disk tier's flat binary files are the
// buffers' actual storage; these tables only persist key mappings and
// usage analytics.

const schemaPersistentKeys = `
CREATE TABLE IF NOT EXISTS persistent_keys (
    frame_number  INTEGER NOT NULL,
    node_identity INTEGER NOT NULL,
    width         INTEGER NOT NULL,
    height        INTEGER NOT NULL,
    pixel_type    INTEGER NOT NULL,
    op_type_id    INTEGER NOT NULL,
    content_hash  INTEGER NOT NULL,
    op_width      INTEGER NOT NULL,
    op_height     INTEGER NOT NULL,
    op_pixel_type INTEGER NOT NULL,
    updated_at    TEXT NOT NULL,
    PRIMARY KEY (frame_number, node_identity, width, height, pixel_type)
);
`

const schemaFingerprints = `
CREATE TABLE IF NOT EXISTS fingerprints (
    op_type_id   INTEGER NOT NULL,
    content_hash INTEGER NOT NULL,
    width        INTEGER NOT NULL,
    height       INTEGER NOT NULL,
    pixel_type   INTEGER NOT NULL,
    first_seen   TEXT NOT NULL,
    last_seen    TEXT NOT NULL,
    hit_count    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (op_type_id, content_hash, width, height, pixel_type)
);
CREATE INDEX IF NOT EXISTS idx_fingerprints_last_seen ON fingerprints(last_seen);
`

const schemaTierStats = `
CREATE TABLE IF NOT EXISTS tier_stats (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    tier         TEXT NOT NULL,
    recorded_at  TEXT NOT NULL,
    bytes_used   INTEGER NOT NULL DEFAULT 0,
    bytes_budget INTEGER NOT NULL DEFAULT 0,
    entry_count  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tier_stats_tier ON tier_stats(tier, recorded_at);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the ordered list of schema DDL statements that form
// the initial (version-1) database layout.
var allSchemas = []string{
	schemaPersistentKeys,
	schemaFingerprints,
	schemaTierStats,
	schemaMigrations,
}

package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/compositor/cachecore/internal/cache"
)

func openCoreTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if st.Writer() == nil {
		t.Error("Writer is nil")
	}
	if st.Reader() == nil {
		t.Error("Reader is nil")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestPing(t *testing.T) {
	st := openCoreTestStore(t)
	if err := st.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestRecordFingerprintHit_TopFingerprints(t *testing.T) {
	st := openCoreTestStore(t)

	key := cache.OpKey{OpTypeID: 1, ContentHash: 0xABCD, Width: 1920, Height: 1080, PixelType: cache.PixelColor}
	if err := st.RecordFingerprintHit(key); err != nil {
		t.Fatalf("RecordFingerprintHit: %v", err)
	}
	if err := st.RecordFingerprintHit(key); err != nil {
		t.Fatalf("RecordFingerprintHit (second hit): %v", err)
	}

	top, err := st.TopFingerprints(10)
	if err != nil {
		t.Fatalf("TopFingerprints: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("TopFingerprints: got %d rows, want 1", len(top))
	}
	if top[0].Key != key {
		t.Errorf("Key: got %+v, want %+v", top[0].Key, key)
	}
	if top[0].HitCount != 2 {
		t.Errorf("HitCount: got %d, want 2", top[0].HitCount)
	}
}

func TestTopFingerprints_OrderAndLimit(t *testing.T) {
	st := openCoreTestStore(t)

	for i := uint64(0); i < 5; i++ {
		key := cache.OpKey{OpTypeID: 1, ContentHash: i, Width: 4, Height: 4, PixelType: cache.PixelColor}
		if err := st.RecordFingerprintHit(key); err != nil {
			t.Fatalf("RecordFingerprintHit %d: %v", i, err)
		}
		// Hash 4 is hit twice so it should sort first.
		if i == 4 {
			if err := st.RecordFingerprintHit(key); err != nil {
				t.Fatalf("RecordFingerprintHit %d (extra): %v", i, err)
			}
		}
	}

	top, err := st.TopFingerprints(3)
	if err != nil {
		t.Fatalf("TopFingerprints: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("TopFingerprints(3): got %d results, want 3", len(top))
	}
	if top[0].Key.ContentHash != 4 || top[0].HitCount != 2 {
		t.Errorf("most-hit fingerprint: got %+v, want content_hash=4 hit_count=2", top[0])
	}
}

func TestLatestTierUsage(t *testing.T) {
	st := openCoreTestStore(t)

	if _, ok, err := st.LatestTierUsage("memory"); err != nil || ok {
		t.Fatalf("LatestTierUsage before any snapshot: ok=%v err=%v", ok, err)
	}

	if err := st.RecordTierUsage("memory", 1024, 4096, 3); err != nil {
		t.Fatalf("RecordTierUsage: %v", err)
	}
	if err := st.RecordTierUsage("memory", 2048, 4096, 5); err != nil {
		t.Fatalf("RecordTierUsage (second): %v", err)
	}

	stat, ok, err := st.LatestTierUsage("memory")
	if err != nil || !ok {
		t.Fatalf("LatestTierUsage: ok=%v err=%v", ok, err)
	}
	if stat.BytesUsed != 2048 || stat.EntryCount != 5 {
		t.Errorf("LatestTierUsage: got %+v, want the most recently recorded snapshot", stat)
	}
}

func TestPrune(t *testing.T) {
	st := openCoreTestStore(t)

	oldTime := time.Now().UTC().AddDate(0, 0, -60).Format(time.RFC3339)
	newTime := time.Now().UTC().Format(time.RFC3339)

	// Insert rows directly so their timestamps can be backdated; the public
	// API only ever stamps "now".
	for i, ts := range []string{oldTime, oldTime, newTime} {
		_, err := st.Writer().Exec(`
INSERT INTO fingerprints (op_type_id, content_hash, width, height, pixel_type, first_seen, last_seen, hit_count)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
`, 1, uint64(i), 4, 4, int(cache.PixelValue), ts, ts)
		if err != nil {
			t.Fatalf("insert fingerprint %d: %v", i, err)
		}
	}

	pruned, err := st.Prune(30) // retain 30 days
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned < 2 {
		t.Errorf("Prune: got %d rows deleted, want at least 2", pruned)
	}

	remaining, err := st.TopFingerprints(100)
	if err != nil {
		t.Fatalf("TopFingerprints after prune: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("after prune: got %d fingerprints, want 1", len(remaining))
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	st := openCoreTestStore(t)

	var wg sync.WaitGroup

	// Concurrent writers.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := cache.OpKey{OpTypeID: 1, ContentHash: uint64(n), Width: 4, Height: 4, PixelType: cache.PixelValue}
			if err := st.RecordFingerprintHit(key); err != nil {
				t.Errorf("concurrent RecordFingerprintHit %d: %v", n, err)
			}
		}(i)
	}

	// Concurrent readers.
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.TopFingerprints(10)
		}()
	}

	wg.Wait()
}

func TestWALMode(t *testing.T) {
	st := openCoreTestStore(t)

	var mode string
	err := st.Writer().QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want %q", mode, "wal")
	}
}

func TestMigrations(t *testing.T) {
	st := openCoreTestStore(t)

	var version int
	err := st.Writer().QueryRow("SELECT MAX(version) FROM migrations").Scan(&version)
	if err != nil {
		t.Fatalf("query migration version: %v", err)
	}

	expected := len(migrations)
	if version != expected {
		t.Errorf("migration version: got %d, want %d", version, expected)
	}
}

func TestPersistentKeyStore_SetGetDelete(t *testing.T) {
	st := openCoreTestStore(t)
	pks := NewPersistentKeyStore(st)

	pk := cache.PersistentKey{FrameNumber: 1, NodeIdentity: 42, Width: 1920, Height: 1080, PixelType: cache.PixelColor}
	if _, ok := pks.Get(pk); ok {
		t.Fatal("expected no mapping before the first Set")
	}

	op := cache.OpKey{OpTypeID: 7, ContentHash: 0x1234, Width: 1920, Height: 1080, PixelType: cache.PixelColor}
	if err := pks.Set(pk, op); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := pks.Get(pk)
	if !ok || got != op {
		t.Fatalf("Get after Set: got (%+v, %v), want (%+v, true)", got, ok, op)
	}

	// Set again with a different OpKey should replace, not duplicate.
	op2 := cache.OpKey{OpTypeID: 7, ContentHash: 0x5678, Width: 1920, Height: 1080, PixelType: cache.PixelColor}
	if err := pks.Set(pk, op2); err != nil {
		t.Fatalf("Set (replace): %v", err)
	}
	if got, ok := pks.Get(pk); !ok || got != op2 {
		t.Fatalf("Get after replace: got (%+v, %v), want (%+v, true)", got, ok, op2)
	}

	if err := pks.Delete(pk); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := pks.Get(pk); ok {
		t.Fatal("expected no mapping after Delete")
	}
}

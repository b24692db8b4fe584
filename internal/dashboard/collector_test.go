package dashboard

import "testing"

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector()

	stats := c.Stats()
	if stats.TotalGets != 0 {
		t.Errorf("TotalGets: got %d, want 0", stats.TotalGets)
	}
	if stats.HitRate != 0 {
		t.Errorf("HitRate: got %f, want 0", stats.HitRate)
	}
}

func TestCollector_RecordGet_Tiers(t *testing.T) {
	c := NewCollector()

	c.RecordGet("memory")
	c.RecordGet("disk")
	c.RecordGet("")

	stats := c.Stats()
	if stats.MemoryHits != 1 {
		t.Errorf("MemoryHits: got %d, want 1", stats.MemoryHits)
	}
	if stats.DiskHits != 1 {
		t.Errorf("DiskHits: got %d, want 1", stats.DiskHits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses: got %d, want 1", stats.Misses)
	}
	if stats.TotalGets != 3 {
		t.Errorf("TotalGets: got %d, want 3", stats.TotalGets)
	}
	want := float64(2) / float64(3) * 100
	if stats.HitRate != want {
		t.Errorf("HitRate: got %f, want %f", stats.HitRate, want)
	}
}

func TestCollector_RecordEviction_RehomedToDisk(t *testing.T) {
	c := NewCollector()

	c.RecordEviction("memory", true)
	c.RecordEviction("memory", false)
	c.RecordEviction("disk", false)

	stats := c.Stats()
	if stats.MemoryEvictions != 2 {
		t.Errorf("MemoryEvictions: got %d, want 2", stats.MemoryEvictions)
	}
	if stats.RehomedToDisk != 1 {
		t.Errorf("RehomedToDisk: got %d, want 1", stats.RehomedToDisk)
	}
	if stats.DiskEvictions != 1 {
		t.Errorf("DiskEvictions: got %d, want 1", stats.DiskEvictions)
	}
}

func TestCollector_PersistentKeyHitRate(t *testing.T) {
	c := NewCollector()

	c.RecordPersistentKeyLookup(true)
	c.RecordPersistentKeyLookup(true)
	c.RecordPersistentKeyLookup(false)

	stats := c.Stats()
	if stats.PersistentHits != 2 || stats.PersistentMisses != 1 {
		t.Fatalf("unexpected persistent key stats: %+v", stats)
	}
	want := float64(2) / float64(3) * 100
	if stats.PersistentHitRate != want {
		t.Errorf("PersistentHitRate: got %f, want %f", stats.PersistentHitRate, want)
	}
}

func TestCollector_PreviewAndViewerCounters(t *testing.T) {
	c := NewCollector()

	c.RecordPreviewLookup(true)
	c.RecordPreviewLookup(false)
	c.RecordViewerUpdate()

	stats := c.Stats()
	if stats.PreviewHits != 1 || stats.PreviewMisses != 1 {
		t.Fatalf("unexpected preview stats: %+v", stats)
	}
	if stats.ViewerUpdates != 1 {
		t.Errorf("ViewerUpdates: got %d, want 1", stats.ViewerUpdates)
	}
}

func TestCollector_SetTierUsage(t *testing.T) {
	c := NewCollector()

	c.SetTierUsage("memory", 1024, 4096, 10)

	snap := c.TierBytes().snapshot()
	if len(snap) != 1 || snap[0].value != 1024 {
		t.Fatalf("unexpected tier bytes snapshot: %+v", snap)
	}
	budget := c.TierBudget().snapshot()
	if len(budget) != 1 || budget[0].value != 4096 {
		t.Fatalf("unexpected tier budget snapshot: %+v", budget)
	}
}

func TestCollector_RecordError(t *testing.T) {
	c := NewCollector()

	c.RecordError("disk", "save")
	c.RecordError("disk", "save")
	c.RecordError("memory", "prefetch")

	entries := c.Errors().snapshot()
	var diskSave, memPrefetch int64
	for _, e := range entries {
		if e.labels["tier"] == "disk" && e.labels["kind"] == "save" {
			diskSave = e.value
		}
		if e.labels["tier"] == "memory" && e.labels["kind"] == "prefetch" {
			memPrefetch = e.value
		}
	}
	if diskSave != 2 {
		t.Errorf("disk/save errors: got %d, want 2", diskSave)
	}
	if memPrefetch != 1 {
		t.Errorf("memory/prefetch errors: got %d, want 1", memPrefetch)
	}
}

func TestCollector_ObserveLatency(t *testing.T) {
	c := NewCollector()

	c.ObserveLatency("memory", "get", 0.0002)
	c.ObserveLatency("memory", "get", 0.02)

	histograms := c.OpLatency().snapshot()
	if len(histograms) != 1 {
		t.Fatalf("expected 1 histogram series, got %d", len(histograms))
	}
	if histograms[0].count != 2 {
		t.Errorf("count: got %d, want 2", histograms[0].count)
	}
}

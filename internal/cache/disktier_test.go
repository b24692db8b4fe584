package cache

import "testing"

func newDiskTierForTest(t *testing.T, budget int64) *DiskTier {
	t.Helper()
	d := NewDiskTier()
	if err := d.Initialize(&Context{DiskBudgetBytes: budget, DiskCacheRoot: t.TempDir()}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	d.SetMode(ModeExec)
	return d
}

func TestDiskTierGetWithoutPrefetchMisses(t *testing.T) {
	d := newDiskTierForTest(t, 1<<30)
	fp := opKey(1, 1, 2, 2)
	buf := []float32{1, 2, 3, 4}
	if err := d.Save(fp, buf, SaveOptions{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d.joinRelated(fp) // wait for the async write before reading it back

	got, err := d.Get(fp)
	if err != ErrMiss {
		t.Fatalf("Get without a prefetch in flight = %v, want ErrMiss (disk never reads synchronously)", err)
	}
	_ = got
}

func TestDiskTierPrefetchThenGetHits(t *testing.T) {
	d := newDiskTierForTest(t, 1<<30)
	fp := opKey(1, 1, 1, 1) // 1x1 color: 4 floats, the size of buf
	buf := []float32{1, 2, 3, 4}
	if err := d.Save(fp, buf, SaveOptions{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d.joinRelated(fp)

	d.NotePlannedRead(fp)
	d.prefetchNext()

	got, err := d.Get(fp)
	if err != nil {
		t.Fatalf("Get after prefetch: %v", err)
	}
	if len(got) != 4 || got[2] != 3 {
		t.Fatalf("Get returned %v, want %v", got, buf)
	}
}

func TestDiskTierGetAndPrefetchNextEnforcesOrder(t *testing.T) {
	d := newDiskTierForTest(t, 1<<30)
	fp := opKey(1, 1, 2, 2)
	_ = d.Save(fp, []float32{1, 2, 3, 4}, SaveOptions{})
	d.joinRelated(fp)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected GetAndPrefetchNext to panic when fp is not the planned front")
		}
	}()
	_, _ = d.GetAndPrefetchNext(fp)
}

func TestDiskTierTrimToBudgetRejectsDetach(t *testing.T) {
	d := newDiskTierForTest(t, 1<<30)
	if _, err := d.TrimToBudget(false); err != ErrUnsupported {
		t.Fatalf("TrimToBudget(false) = %v, want ErrUnsupported", err)
	}
}

func TestDiskTierInitializeRescansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskTier()
	_ = d.Initialize(&Context{DiskBudgetBytes: 1 << 30, DiskCacheRoot: dir})
	d.SetMode(ModeExec)
	fp := opKey(1, 1, 2, 2)
	_ = d.Save(fp, []float32{1, 2, 3, 4}, SaveOptions{})
	d.joinRelated(fp)

	d2 := NewDiskTier()
	if err := d2.Initialize(&Context{DiskBudgetBytes: 1 << 30, DiskCacheRoot: dir}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !d2.Has(fp) {
		t.Fatalf("expected reinitializing over the same root to recover existing entries")
	}
}

func TestDiskTierDisabledWhenRootEmpty(t *testing.T) {
	d := NewDiskTier()
	_ = d.Initialize(&Context{DiskBudgetBytes: 1 << 30})
	d.SetMode(ModeExec)
	if err := d.Save(opKey(1, 1, 2, 2), []float32{1}, SaveOptions{}); err != nil {
		t.Fatalf("Save on a disabled tier should be a silent no-op, got %v", err)
	}
}

func TestDiskTierChangingRootWipesOldEntries(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	d := NewDiskTier()
	_ = d.Initialize(&Context{DiskBudgetBytes: 1 << 30, DiskCacheRoot: dirA})
	d.SetMode(ModeExec)
	fp := opKey(1, 1, 2, 2)
	_ = d.Save(fp, []float32{1, 2, 3, 4}, SaveOptions{})
	d.joinRelated(fp)

	if err := d.Initialize(&Context{DiskBudgetBytes: 1 << 30, DiskCacheRoot: dirB}); err != nil {
		t.Fatalf("Initialize on new root: %v", err)
	}
	if d.Has(fp) {
		t.Fatalf("expected switching disk cache roots to drop prior entries")
	}
}

package cache

import (
	"testing"

	"github.com/google/uuid"
)

func TestViewRegistryPreviewMissThenWriteThenHit(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	op := &fakeOp{fp: opKey(1, 1, 4, 4), hasPreview: true, previewKey: 7}

	if _, hit := v.GetPreview(op); hit {
		t.Fatalf("expected a miss before any write")
	}
	if err := v.ReportPreviewWrite(op, []byte{1, 2, 3}); err != nil {
		t.Fatalf("ReportPreviewWrite: %v", err)
	}
	buf, hit := v.GetPreview(op)
	if !hit || len(buf) != 3 {
		t.Fatalf("expected a hit with the written buffer, got hit=%v buf=%v", hit, buf)
	}
}

func TestViewRegistryPreviewWriteTwiceViolatesContract(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	op := &fakeOp{fp: opKey(1, 1, 4, 4), hasPreview: true, previewKey: 7}
	_ = v.ReportPreviewWrite(op, []byte{1})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a second write to the same slot to panic")
		}
	}()
	_ = v.ReportPreviewWrite(op, []byte{2})
}

func TestViewRegistryStaleFingerprintInvalidates(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	op := &fakeOp{fp: opKey(1, 1, 4, 4), hasPreview: true, previewKey: 7}
	_ = v.ReportPreviewWrite(op, []byte{1, 2, 3})

	stale := &fakeOp{fp: opKey(1, 2, 4, 4), hasPreview: true, previewKey: 7}
	if _, hit := v.GetPreview(stale); hit {
		t.Fatalf("expected a fingerprint mismatch to be treated as a miss")
	}
	if _, hit := v.GetPreview(op); hit {
		t.Fatalf("expected the stale entry to have been dropped, not just skipped once")
	}
}

func TestViewRegistryDeinitializePrunesUnexercised(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	exercised := &fakeOp{fp: opKey(1, 1, 4, 4), hasPreview: true, previewKey: 1}
	unexercised := &fakeOp{fp: opKey(1, 2, 4, 4), hasPreview: true, previewKey: 2}
	_ = v.ReportPreviewWrite(exercised, []byte{1})
	_ = v.ReportPreviewWrite(unexercised, []byte{2})

	v.GetPreview(exercised) // only this one gets looked up again before teardown

	v.Deinitialize(false)

	if _, hit := v.GetPreview(exercised); !hit {
		t.Fatalf("expected the exercised preview to survive deinitialize")
	}
	if _, hit := v.GetPreview(unexercised); hit {
		t.Fatalf("expected the unexercised preview to be pruned")
	}
}

func TestViewRegistryDeinitializeKeepsEverythingWhenInterrupted(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	unexercised := &fakeOp{fp: opKey(1, 2, 4, 4), hasPreview: true, previewKey: 2}
	_ = v.ReportPreviewWrite(unexercised, []byte{2})

	v.Deinitialize(true)

	if _, hit := v.GetPreview(unexercised); !hit {
		t.Fatalf("expected an interrupted run to leave unexercised previews in place")
	}
}

func TestViewRegistryViewerNeedsUpdate(t *testing.T) {
	v := NewViewRegistry()
	v.Initialize()
	session := uuid.New()
	op := &fakeOp{fp: opKey(1, 1, 4, 4), hasSession: true, sessionID: session}

	if !v.ViewerNeedsUpdate(op) {
		t.Fatalf("expected a never-written viewer to need an update")
	}
	v.ReportViewerWrite(op)
	if v.ViewerNeedsUpdate(op) {
		t.Fatalf("expected the viewer to be up to date right after a write")
	}

	changed := &fakeOp{fp: opKey(1, 2, 4, 4), hasSession: true, sessionID: session}
	if !v.ViewerNeedsUpdate(changed) {
		t.Fatalf("expected a changed fingerprint to need an update")
	}
}

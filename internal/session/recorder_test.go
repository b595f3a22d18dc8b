package session

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/identify"
)

func testSheet() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := NewRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	return rec
}

func fullSession() *ScanSession {
	sess := New(SourceFile, "sheet.png", testSheet())
	sess.AddRejected([]detection.Detection{rejectedDetection("cv_001")})
	sess.AddIdentifications(&identify.Batch{Identifications: []identify.Identification{
		identification("cv_002", identify.ConfidenceAutoAccept,
			[]identify.Match{{CatalogID: "BE-1866-10c", Score: 0.95}}),
		identification("cv_003", identify.ConfidenceNoMatch, nil),
		identification("cv_004", identify.ConfidenceAmbiguous,
			[]identify.Match{{CatalogID: "BE-1866-20c", Score: 0.80}, {CatalogID: "BE-1869-20c", Score: 0.72}}),
	}})
	return sess
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	rec := newTestRecorder(t)
	sess := fullSession()

	if _, err := rec.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := rec.LoadSession(sess.SessionID)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if loaded.SessionID != sess.SessionID {
		t.Errorf("session ID changed: %s vs %s", loaded.SessionID, sess.SessionID)
	}
	if len(loaded.Records) != len(sess.Records) {
		t.Fatalf("record count changed: %d vs %d", len(loaded.Records), len(sess.Records))
	}

	// Derived state must survive the round trip.
	want := sess.Summary()
	got := loaded.Summary()
	if got != want {
		t.Errorf("summary changed across round trip: %+v vs %+v", got, want)
	}
	for i := range sess.Records {
		if loaded.Records[i].Status() != sess.Records[i].Status() {
			t.Errorf("record %d status changed: %s vs %s",
				i, loaded.Records[i].Status(), sess.Records[i].Status())
		}
	}
}

func TestSaveWritesSessionFiles(t *testing.T) {
	rec := newTestRecorder(t)
	sess := fullSession()

	dir, err := rec.Save(sess)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if want := filepath.Join(rec.Root(), "sessions", sess.SessionID); dir != want {
		t.Errorf("Save returned %q, want %q", dir, want)
	}

	for _, name := range []string{"session.json", "original.png", "annotated.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "crops"))
	if err != nil {
		t.Fatalf("reading crops dir: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 crops, got %d", len(entries))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	if !strings.Contains(joined, "000_rejected_color_variance") {
		t.Errorf("rejected crop misnamed: %v", names)
	}
	if !strings.Contains(joined, "001_identified_BE-1866-10c") {
		t.Errorf("identified crop misnamed: %v", names)
	}
	if !strings.Contains(joined, "002_no_match_unmatched") {
		t.Errorf("no-match crop misnamed: %v", names)
	}
	if !strings.Contains(joined, "003_ambiguous_quadrilateral") {
		t.Errorf("ambiguous crop misnamed: %v", names)
	}
}

func TestSaveQueuesOnlyNoMatchCrops(t *testing.T) {
	rec := newTestRecorder(t)
	sess := fullSession()

	if _, err := rec.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := rec.PendingCrops()
	if err != nil {
		t.Fatalf("PendingCrops failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued crop, got %d: %v", len(pending), pending)
	}
	if !strings.HasPrefix(pending[0], sess.SessionID+"_") {
		t.Errorf("queued crop %q missing session prefix", pending[0])
	}
	if !strings.Contains(pending[0], "cv_003") {
		t.Errorf("queued crop %q missing detection ID", pending[0])
	}
	// The ambiguous record already carries its candidate matches; queueing
	// it would send an awaiting-pick stamp through re-ingestion.
	for _, name := range pending {
		if strings.Contains(name, "cv_004") {
			t.Errorf("ambiguous crop %q must not be queued for re-ingestion", name)
		}
	}
}

func TestResolvePending(t *testing.T) {
	rec := newTestRecorder(t)
	sess := fullSession()
	if _, err := rec.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, _ := rec.PendingCrops()
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued crop, got %d", len(pending))
	}

	if err := rec.ResolvePending(pending[0]); err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}

	remaining, _ := rec.PendingCrops()
	if len(remaining) != 0 {
		t.Errorf("crop still queued after resolve: %v", remaining)
	}
	if _, err := os.Stat(filepath.Join(rec.Root(), "resolved", pending[0])); err != nil {
		t.Errorf("resolved crop not moved: %v", err)
	}

	if err := rec.ResolvePending("nope.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown crop, got %v", err)
	}
}

func TestListSessionsOrder(t *testing.T) {
	rec := newTestRecorder(t)

	first := New(SourceFile, "a.png", testSheet())
	first.SessionID = "20260101_080000_aaaaaa"
	second := New(SourceFile, "b.png", testSheet())
	second.SessionID = "20260301_090000_bbbbbb"

	for _, sess := range []*ScanSession{first, second} {
		if _, err := rec.Save(sess); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	ids, err := rec.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(ids))
	}
	if ids[0] != second.SessionID || ids[1] != first.SessionID {
		t.Errorf("sessions not most-recent-first: %v", ids)
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	rec := newTestRecorder(t)
	if _, err := rec.LoadSession("20260101_000000_ffffff"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveLeavesNoPartialDirOnSuccess(t *testing.T) {
	rec := newTestRecorder(t)
	sess := fullSession()
	if _, err := rec.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(rec.Root(), "sessions"))
	if err != nil {
		t.Fatalf("reading sessions dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary directory left behind: %s", e.Name())
		}
	}
}

package scan

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/identify"
	"github.com/alainbuyze/stampscan/internal/session"
)

type stubDescriber struct{}

func (stubDescriber) Describe(ctx context.Context, crop image.Image) (string, error) {
	return fmt.Sprintf("stamp crop %dx%d", crop.Bounds().Dx(), crop.Bounds().Dy()), nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

type stubIndex struct {
	matches []identify.Match
}

func (s stubIndex) Search(ctx context.Context, vector []float32, topK int, minScore float64) ([]identify.Match, error) {
	return s.matches, nil
}

func stampSheet() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.White)
		}
	}
	palette := []color.RGBA{
		{R: 200, G: 30, B: 30, A: 255},
		{R: 30, G: 160, B: 60, A: 255},
		{R: 40, G: 60, B: 200, A: 255},
	}
	for y := 60; y < 150; y++ {
		for x := 60; x < 130; x++ {
			img.Set(x, y, palette[((x/8)+(y/8))%len(palette)])
		}
	}
	return img
}

func newTestRunner(t *testing.T, engine *identify.Engine) *Runner {
	t.Helper()
	recorder, err := session.NewRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	pipeline := detection.NewPipeline(
		detection.NewShapeDetector(detection.DefaultShapeConfig()),
		detection.NewClassifier(detection.DefaultClassifierConfig()),
		nil,
		detection.DefaultPipelineConfig(),
	)
	return NewRunner(pipeline, engine, recorder)
}

func TestScanEndToEnd(t *testing.T) {
	engine := identify.NewEngine(stubDescriber{}, stubEmbedder{}, stubIndex{
		matches: []identify.Match{{CatalogID: "BE-1866-10c", Score: 0.95}},
	}, identify.DefaultConfig())
	runner := newTestRunner(t, engine)

	result, err := runner.Scan(context.Background(), stampSheet(), session.SourceFile, "sheet.png")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.Summary.Total == 0 {
		t.Fatal("scan recorded no detections on the stamp sheet")
	}
	if result.Session.SessionID == "" {
		t.Fatal("scan did not produce a session ID")
	}
	if result.Summary.Pending != 0 {
		t.Errorf("%d records left pending with an engine configured", result.Summary.Pending)
	}
}

func TestScanWithoutEngineLeavesPending(t *testing.T) {
	runner := newTestRunner(t, nil)

	result, err := runner.Scan(context.Background(), stampSheet(), session.SourceFile, "sheet.png")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	for i := range result.Session.Records {
		rec := &result.Session.Records[i]
		if rec.Status() == session.StatusIdentified || rec.Status() == session.StatusNoMatch {
			t.Errorf("record %d reached search state %s without an engine", i, rec.Status())
		}
	}
}

func TestScanCancelledContextNotRecorded(t *testing.T) {
	engine := identify.NewEngine(stubDescriber{}, stubEmbedder{}, stubIndex{}, identify.DefaultConfig())

	recorder, err := session.NewRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	pipeline := detection.NewPipeline(
		detection.NewShapeDetector(detection.DefaultShapeConfig()),
		detection.NewClassifier(detection.DefaultClassifierConfig()),
		nil,
		detection.DefaultPipelineConfig(),
	)
	runner := NewRunner(pipeline, engine, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, scanErr := runner.Scan(ctx, stampSheet(), session.SourceFile, "sheet.png")

	ids, err := recorder.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	// Either the classical stage accepted candidates (then cancellation
	// aborts identification and nothing is saved) or everything was
	// rejected before identification ran (then the session saves cleanly).
	if scanErr != nil && len(ids) != 0 {
		t.Errorf("cancelled scan left %d recorded sessions", len(ids))
	}
	if scanErr == nil && len(ids) != 1 {
		t.Errorf("completed scan recorded %d sessions, want 1", len(ids))
	}
}

func TestScanFileMissing(t *testing.T) {
	runner := newTestRunner(t, nil)

	if _, err := runner.ScanFile(context.Background(), "does-not-exist.png"); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

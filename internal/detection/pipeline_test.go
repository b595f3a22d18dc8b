package detection

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

// fakeFallback is a scriptable fallback detector for pipeline tests.
type fakeFallback struct {
	candidates []Candidate
	calls      int
}

func (f *fakeFallback) Detect(img image.Image) []Candidate {
	f.calls++
	return f.candidates
}

func (f *fakeFallback) IsAvailable() bool { return true }

func fallbackCandidate(box image.Rectangle, confidence float64) Candidate {
	return Candidate{
		ShapeType:   ShapeQuadrilateral,
		Polygon:     rectPolygon(box),
		BoundingBox: box,
		Crop:        image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy())),
		SourceStage: StageFallback,
		Confidence:  confidence,
	}
}

func newTestPipeline(fallback Fallback, enable bool) *Pipeline {
	return NewPipeline(
		NewShapeDetector(DefaultShapeConfig()),
		NewClassifier(DefaultClassifierConfig()),
		fallback,
		PipelineConfig{EnableFallback: enable},
	)
}

func TestPipelineClassicalSkipsFallback(t *testing.T) {
	fallback := &fakeFallback{candidates: []Candidate{
		fallbackCandidate(image.Rect(0, 0, 60, 70), 0.9),
	}}
	pipeline := newTestPipeline(fallback, true)

	accepted, rejected, err := pipeline.DetectStamps(createStampSheet(300, 300))
	if err != nil {
		t.Fatalf("DetectStamps failed: %v", err)
	}
	if len(accepted)+len(rejected) == 0 {
		t.Fatal("classical stage found nothing on the stamp sheet")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback ran despite classical candidates (%d calls)", fallback.calls)
	}
	for _, det := range append(append([]Detection{}, accepted...), rejected...) {
		if det.Candidate.SourceStage != StageClassical {
			t.Errorf("expected classical source stage, got %s", det.Candidate.SourceStage)
		}
	}
}

func TestPipelineFallbackBypassesClassifier(t *testing.T) {
	fallback := &fakeFallback{candidates: []Candidate{
		fallbackCandidate(image.Rect(10, 10, 70, 80), 0.73),
		fallbackCandidate(image.Rect(90, 10, 150, 80), 0.61),
	}}
	pipeline := newTestPipeline(fallback, true)

	// Blank sheet: the classical stage finds nothing.
	accepted, rejected, err := pipeline.DetectStamps(createTestImage(300, 300, color.White))
	if err != nil {
		t.Fatalf("DetectStamps failed: %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected exactly one fallback call, got %d", fallback.calls)
	}
	if len(rejected) != 0 {
		t.Errorf("fallback detections must not be rejected, got %d", len(rejected))
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted fallback detections, got %d", len(accepted))
	}
	for i, det := range accepted {
		if !det.Verdict.IsStamp {
			t.Errorf("fallback detection %d not marked accepted", i)
		}
		if det.Verdict.Confidence != fallback.candidates[i].Confidence {
			t.Errorf("fallback detection %d confidence %f, want model confidence %f",
				i, det.Verdict.Confidence, fallback.candidates[i].Confidence)
		}
		if len(det.Verdict.ComponentScores) != 0 {
			t.Errorf("fallback detection %d carries classifier scores", i)
		}
	}
}

func TestPipelineFallbackDisabled(t *testing.T) {
	fallback := &fakeFallback{candidates: []Candidate{
		fallbackCandidate(image.Rect(10, 10, 70, 80), 0.9),
	}}
	pipeline := newTestPipeline(fallback, false)

	accepted, rejected, err := pipeline.DetectStamps(createTestImage(200, 200, color.White))
	if err != nil {
		t.Fatalf("DetectStamps failed: %v", err)
	}
	if len(accepted) != 0 || len(rejected) != 0 {
		t.Errorf("expected empty result with fallback disabled, got %d/%d",
			len(accepted), len(rejected))
	}
	if fallback.calls != 0 {
		t.Errorf("disabled fallback was called %d times", fallback.calls)
	}
}

func TestPipelineNilFallback(t *testing.T) {
	pipeline := newTestPipeline(nil, true)

	accepted, rejected, err := pipeline.DetectStamps(createTestImage(200, 200, color.White))
	if err != nil {
		t.Fatalf("DetectStamps failed: %v", err)
	}
	if len(accepted) != 0 || len(rejected) != 0 {
		t.Errorf("expected empty result with nil fallback, got %d/%d",
			len(accepted), len(rejected))
	}
}

func TestPipelineDetectionIDs(t *testing.T) {
	fallback := &fakeFallback{candidates: []Candidate{
		fallbackCandidate(image.Rect(10, 10, 70, 80), 0.9),
		fallbackCandidate(image.Rect(90, 10, 150, 80), 0.8),
	}}
	pipeline := newTestPipeline(fallback, true)

	accepted, _, err := pipeline.DetectStamps(createTestImage(300, 300, color.White))
	if err != nil {
		t.Fatalf("DetectStamps failed: %v", err)
	}

	seen := make(map[string]bool)
	for i, det := range accepted {
		id := det.Candidate.DetectionID
		if !strings.HasPrefix(id, "model_") {
			t.Errorf("fallback detection %d has id %q, want model_ prefix", i, id)
		}
		if seen[id] {
			t.Errorf("duplicate detection id %q", id)
		}
		seen[id] = true
	}
}

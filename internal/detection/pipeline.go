package detection

import (
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// PipelineConfig controls the staged detection flow.
type PipelineConfig struct {
	// EnableFallback allows escalation to the trained detector when the
	// classical path finds nothing.
	EnableFallback bool `yaml:"enable_fallback"`
}

// DefaultPipelineConfig enables the fallback stage.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{EnableFallback: true}
}

// stageOutcome is the tagged result of one detector stage. Keeping the
// escalation decision on this single value (rather than booleans threaded
// through the orchestrator) means there is exactly one place that decides
// whether the fallback runs.
type stageOutcome struct {
	Stage      SourceStage
	Candidates []Candidate
}

// Empty reports whether the stage produced no candidates.
func (o stageOutcome) Empty() bool { return len(o.Candidates) == 0 }

// Pipeline orchestrates shape detection, heuristic classification, and the
// trained-model fallback into one call.
type Pipeline struct {
	shapes     *ShapeDetector
	classifier *Classifier
	fallback   Fallback
	cfg        PipelineConfig
}

// NewPipeline assembles the pipeline. fallback may be nil, which behaves
// as a disabled fallback stage regardless of configuration.
func NewPipeline(shapes *ShapeDetector, classifier *Classifier, fallback Fallback, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		shapes:     shapes,
		classifier: classifier,
		fallback:   fallback,
		cfg:        cfg,
	}
}

// DetectStamps runs the full staged detection on one image and partitions
// the results.
//
// The classical detector runs first; each of its candidates is classified
// and lands in accepted (is_stamp) or rejected. Only when the classical
// stage yields zero candidates and the fallback is enabled does the
// trained detector run; its detections are treated as accepted with a
// synthetic verdict, because the model's own confidence threshold already
// gated them (the heuristic classifier is tuned for rectified classical
// crops, not for model output).
//
// Empty results are a valid, expected outcome: a blank page returns two
// empty slices and a nil error. The only error is a malformed input image.
//
// DetectionIDs are unique within the call: a stage prefix, a 1-based
// ordinal, and a random suffix.
func (p *Pipeline) DetectStamps(img image.Image) (accepted, rejected []Detection, err error) {
	classical, err := p.shapes.Detect(img)
	if err != nil {
		return nil, nil, fmt.Errorf("shape detection failed: %w", err)
	}

	outcome := stageOutcome{Stage: StageClassical, Candidates: classical}

	if !outcome.Empty() {
		for i, cand := range outcome.Candidates {
			cand.DetectionID = newDetectionID(StageClassical, i)
			verdict := p.classifier.Classify(cand.Crop)

			det := Detection{Candidate: cand, Verdict: verdict}
			if verdict.IsStamp {
				accepted = append(accepted, det)
			} else {
				rejected = append(rejected, det)
			}
		}
		slog.Info("classical detection finished",
			"candidates", len(outcome.Candidates),
			"accepted", len(accepted),
			"rejected", len(rejected))
		return accepted, rejected, nil
	}

	if !p.cfg.EnableFallback || p.fallback == nil {
		slog.Info("no candidates found, fallback disabled")
		return nil, nil, nil
	}

	slog.Info("no classical candidates, escalating to fallback detector")
	outcome = stageOutcome{Stage: StageFallback, Candidates: p.fallback.Detect(img)}

	for i, cand := range outcome.Candidates {
		cand.DetectionID = newDetectionID(StageFallback, i)
		accepted = append(accepted, Detection{
			Candidate: cand,
			Verdict: Verdict{
				IsStamp:    true,
				Confidence: cand.Confidence,
			},
		})
	}

	slog.Info("fallback detection finished", "accepted", len(accepted))
	return accepted, rejected, nil
}

// newDetectionID builds a session-unique detection identifier such as
// "cv_001_9f3a2b1c" or "model_002_c01dbeef".
func newDetectionID(stage SourceStage, ordinal int) string {
	prefix := "cv"
	if stage == StageFallback {
		prefix = "model"
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%03d_%s", prefix, ordinal+1, suffix)
}

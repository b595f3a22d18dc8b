// Package detection implements the two-stage stamp detection pipeline:
// classical contour-based shape detection, a weighted heuristic classifier
// that rejects false positives, and an optional trained-model fallback for
// pages the classical detector cannot read.
package detection

import (
	"image"

	"github.com/alainbuyze/stampscan/internal/geometry"
)

// ShapeType classifies the approximated polygon of a detection.
type ShapeType string

const (
	ShapeTriangle      ShapeType = "triangle"
	ShapeQuadrilateral ShapeType = "quadrilateral"
	ShapeOther         ShapeType = "other"
)

// SourceStage records which detector produced a candidate.
type SourceStage string

const (
	// StageClassical marks candidates from the contour-based shape detector.
	StageClassical SourceStage = "classical"
	// StageFallback marks candidates from the trained fallback detector.
	StageFallback SourceStage = "fallback"
)

// Candidate is one geometrically isolated region of the source image
// believed to contain a single stamp.
//
// A Candidate is created once per detection attempt and is immutable after
// creation; downstream stages treat Crop as read-only.
type Candidate struct {
	// DetectionID is unique within a scan session.
	DetectionID string `json:"detection_id"`

	// ShapeType is triangle, quadrilateral, or other.
	ShapeType ShapeType `json:"shape_type"`

	// Polygon holds the ordered vertices in source-image coordinates.
	// Empty for fallback detections, which only carry a bounding box.
	Polygon geometry.Polygon `json:"polygon,omitempty"`

	// BoundingBox is the axis-aligned box enclosing the polygon.
	BoundingBox image.Rectangle `json:"-"`

	// AreaRatio is the candidate area divided by the source image area.
	AreaRatio float64 `json:"area_ratio"`

	// Crop is the perspective-corrected crop of the region.
	Crop image.Image `json:"-"`

	// SourceStage names the detector that produced this candidate.
	SourceStage SourceStage `json:"source_stage"`

	// Confidence is the detector's own confidence: 1.0 for the classical
	// detector, the model score for fallback detections.
	Confidence float64 `json:"confidence"`
}

// Verdict is the output of the heuristic stamp classifier for one crop.
type Verdict struct {
	// IsStamp is true when Confidence reached the configured threshold.
	IsStamp bool `json:"is_stamp"`

	// Confidence is the weighted sum of the component scores, in [0, 1].
	Confidence float64 `json:"confidence"`

	// ComponentScores maps each heuristic name to its score in [0, 1].
	// All four heuristics are always present, accepted or not, so a later
	// re-tuning pass can re-weigh them without re-running detection.
	ComponentScores map[string]float64 `json:"component_scores"`

	// Reason names the lowest-scoring heuristic. Populated only on
	// rejection; diagnostic, never part of the decision itself.
	Reason string `json:"reason,omitempty"`
}

// Detection pairs a candidate with its classifier verdict. Fallback
// candidates carry a synthetic accepting verdict since the trained model's
// own confidence gates them instead of the heuristic classifier.
type Detection struct {
	Candidate Candidate `json:"candidate"`
	Verdict   Verdict   `json:"verdict"`
}

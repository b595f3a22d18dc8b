// Package session persists one full scan run (original image, every
// candidate with its stage outcomes, an annotated visualization, and
// per-candidate crops) for audit, manual review, and re-ingestion of
// unmatched stamps.
package session

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/geometry"
	"github.com/alainbuyze/stampscan/internal/identify"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

// Status is the derived per-record state used for coloring, filenames,
// and summaries. It is never stored: it is always recomputed from the
// stage fields so the two can never disagree.
type Status string

const (
	StatusRejected   Status = "rejected"
	StatusPending    Status = "pending"
	StatusIdentified Status = "identified"
	StatusAmbiguous  Status = "ambiguous"
	StatusNoMatch    Status = "no_match"
)

// Color returns the overlay color for the status, per the fixed contract:
// identified green, no-match orange, rejected red, pending and ambiguous
// yellow.
func (s Status) Color() color.NRGBA {
	switch s {
	case StatusIdentified:
		return detection.ColorIdentified
	case StatusNoMatch:
		return detection.ColorNoMatch
	case StatusRejected:
		return detection.ColorRejected
	default:
		return detection.ColorPending
	}
}

// BoundingBox is the JSON shape of a record's box, (x, y, w, h).
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// DetectionRecord is the durable union of one candidate and its outcomes
// at every stage it passed through. Records are created from the pipeline
// output, filled monotonically as the candidate advances, and never
// mutated after the session is persisted.
type DetectionRecord struct {
	DetectionID string                `json:"detection_id"`
	ShapeType   detection.ShapeType   `json:"shape_type"`
	SourceStage detection.SourceStage `json:"source_stage"`
	BoundingBox BoundingBox           `json:"bounding_box"`
	Polygon     geometry.Polygon      `json:"polygon,omitempty"`

	// Shape/classifier stage.
	ShapePassed     bool               `json:"stage_shape_passed"`
	ShapeConfidence float64            `json:"stage_shape_confidence"`
	ComponentScores map[string]float64 `json:"component_scores,omitempty"`
	RejectReason    string             `json:"reject_reason,omitempty"`

	// Search stage.
	SearchAttempted bool             `json:"stage_search_attempted"`
	MatchFound      bool             `json:"match_found"`
	MatchDetails    []identify.Match `json:"match_details,omitempty"`
	Description     string           `json:"description,omitempty"`
	ErrorNote       string           `json:"error_note,omitempty"`

	// Palette holds the crop's dominant colors, recorded so review
	// tooling can show at a glance what was cut out.
	Palette []imaging.ColorFrequency `json:"palette,omitempty"`

	// Crop is the candidate's corrected crop, written as a file alongside
	// the session record, never serialized into it.
	Crop image.Image `json:"-"`
}

// Status derives the record state from the stage fields.
//
//   - rejected: failed the heuristic classifier, search never ran
//   - pending: passed but search was not attempted (e.g. cancelled run)
//   - identified: search auto-accepted a single match
//   - ambiguous: search found plausible matches, none auto-applied
//   - no_match: search ran and nothing qualified
func (r *DetectionRecord) Status() Status {
	if !r.ShapePassed {
		return StatusRejected
	}
	if !r.SearchAttempted {
		return StatusPending
	}
	if r.MatchFound {
		return StatusIdentified
	}
	if len(r.MatchDetails) > 0 {
		return StatusAmbiguous
	}
	return StatusNoMatch
}

// TopMatch returns the best match if any was recorded.
func (r *DetectionRecord) TopMatch() (identify.Match, bool) {
	if len(r.MatchDetails) == 0 {
		return identify.Match{}, false
	}
	return r.MatchDetails[0], true
}

// Summary holds the derived per-session counts.
type Summary struct {
	Identified int `json:"identified"`
	Ambiguous  int `json:"ambiguous"`
	NoMatch    int `json:"no_match"`
	Rejected   int `json:"rejected"`
	Pending    int `json:"pending"`
	Total      int `json:"total"`
}

// Source tags where the scanned image came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceFile   Source = "file"
)

// ScanSession is the complete record of one detect-then-identify run.
//
// Records keep insertion order, which is detector-output order (not
// left-to-right reading order). A session is created at the start of one
// scan call and persisted exactly once, atomically, at the end; cancelled
// or failed runs are never recorded.
type ScanSession struct {
	SessionID  string    `json:"session_id"`
	Source     Source    `json:"source"`
	SourcePath string    `json:"source_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Records []DetectionRecord `json:"detections"`

	// OriginalImage is written alongside the record, never serialized
	// into it.
	OriginalImage image.Image `json:"-"`
}

// New creates an empty session with a fresh ID.
//
// IDs sort lexicographically by creation time and carry enough random
// suffix that two concurrent saves can never target the same directory.
func New(source Source, sourcePath string, original image.Image) *ScanSession {
	now := time.Now()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return &ScanSession{
		SessionID:     now.Format("20060102_150405") + "_" + suffix,
		Source:        source,
		SourcePath:    sourcePath,
		CreatedAt:     now,
		OriginalImage: original,
	}
}

// AddRejected appends records for candidates that failed classification.
// Rejected candidates never reach the search stage.
func (s *ScanSession) AddRejected(rejected []detection.Detection) {
	for _, det := range rejected {
		s.Records = append(s.Records, newRecord(det))
	}
}

// AddPending appends records for accepted candidates that were not
// searched, leaving them in the pending state.
func (s *ScanSession) AddPending(accepted []detection.Detection) {
	for _, det := range accepted {
		s.Records = append(s.Records, newRecord(det))
	}
}

// AddIdentifications appends one record per identification, preserving the
// batch's candidate order.
func (s *ScanSession) AddIdentifications(batch *identify.Batch) {
	for _, id := range batch.Identifications {
		rec := newRecord(id.Detection)
		rec.SearchAttempted = true
		rec.Description = id.Description
		rec.ErrorNote = id.ErrorNote
		rec.MatchDetails = id.Matches
		rec.MatchFound = id.Confidence == identify.ConfidenceAutoAccept
		s.Records = append(s.Records, rec)
	}
}

// paletteSize is how many dominant colors are kept per crop.
const paletteSize = 3

// newRecord captures the detection-stage outcome of one candidate.
func newRecord(det detection.Detection) DetectionRecord {
	var palette []imaging.ColorFrequency
	if det.Candidate.Crop != nil {
		palette = imaging.DominantColors(det.Candidate.Crop, paletteSize)
	}
	box := det.Candidate.BoundingBox
	return DetectionRecord{
		DetectionID: det.Candidate.DetectionID,
		ShapeType:   det.Candidate.ShapeType,
		SourceStage: det.Candidate.SourceStage,
		BoundingBox: BoundingBox{
			X: box.Min.X,
			Y: box.Min.Y,
			W: box.Dx(),
			H: box.Dy(),
		},
		Polygon:         det.Candidate.Polygon,
		ShapePassed:     det.Verdict.IsStamp,
		ShapeConfidence: det.Verdict.Confidence,
		ComponentScores: det.Verdict.ComponentScores,
		RejectReason:    det.Verdict.Reason,
		Palette:         palette,
		Crop:            det.Candidate.Crop,
	}
}

// Summary derives the session counts from the records.
func (s *ScanSession) Summary() Summary {
	sum := Summary{Total: len(s.Records)}
	for i := range s.Records {
		switch s.Records[i].Status() {
		case StatusIdentified:
			sum.Identified++
		case StatusAmbiguous:
			sum.Ambiguous++
		case StatusNoMatch:
			sum.NoMatch++
		case StatusRejected:
			sum.Rejected++
		case StatusPending:
			sum.Pending++
		}
	}
	return sum
}

// Overlays builds the annotation overlays for the session's records,
// colored by derived status and labeled with the identification outcome.
func (s *ScanSession) Overlays() []detection.Overlay {
	overlays := make([]detection.Overlay, 0, len(s.Records))
	for i := range s.Records {
		rec := &s.Records[i]
		status := rec.Status()

		label := string(status)
		switch status {
		case StatusIdentified:
			if m, ok := rec.TopMatch(); ok {
				label = fmt.Sprintf("%s %.0f%%", m.CatalogID, m.Score*100)
			}
		case StatusRejected:
			label = "X " + rec.RejectReason
		case StatusAmbiguous:
			label = fmt.Sprintf("? %d matches", len(rec.MatchDetails))
		}

		box := rec.BoundingBox
		overlays = append(overlays, detection.Overlay{
			Polygon: rec.Polygon,
			Box:     image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H),
			Color:   status.Color(),
			Label:   label,
		})
	}
	return overlays
}

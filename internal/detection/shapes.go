package detection

import (
	"image"
	"log/slog"

	"github.com/alainbuyze/stampscan/internal/geometry"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

// ShapeConfig holds the tunable parameters of the classical shape detector.
type ShapeConfig struct {
	// MinVertices and MaxVertices bound the approximated polygon's vertex
	// count. The defaults accept triangles and quadrilaterals, which cover
	// the vast majority of physical stamps.
	MinVertices int `yaml:"min_vertices"`
	MaxVertices int `yaml:"max_vertices"`

	// MinAreaRatio and MaxAreaRatio bound a candidate's area as a fraction
	// of the image area. The lower bound excludes noise specks, the upper
	// bound excludes the page border itself.
	MinAreaRatio float64 `yaml:"min_area_ratio"`
	MaxAreaRatio float64 `yaml:"max_area_ratio"`

	// AspectRatioMin and AspectRatioMax bound the bounding-box width/height
	// ratio. Stamps are never extremely elongated.
	AspectRatioMin float64 `yaml:"aspect_ratio_min"`
	AspectRatioMax float64 `yaml:"aspect_ratio_max"`

	// ApproxEpsilon is the polygon approximation tolerance as a fraction of
	// the contour perimeter.
	ApproxEpsilon float64 `yaml:"approx_epsilon"`

	// RequireConvex rejects concave approximations when true.
	RequireConvex bool `yaml:"require_convex"`

	// Preprocessing knobs.
	BlurRadius         float64 `yaml:"blur_radius"`
	ThresholdBlockSize int     `yaml:"threshold_block_size"`
	ThresholdOffset    int     `yaml:"threshold_offset"`

	// TrianglePadding is the white margin added around triangle crops.
	TrianglePadding int `yaml:"triangle_padding"`
}

// DefaultShapeConfig returns the detector defaults tuned for album pages.
func DefaultShapeConfig() ShapeConfig {
	return ShapeConfig{
		MinVertices:        3,
		MaxVertices:        4,
		MinAreaRatio:       0.001,
		MaxAreaRatio:       0.15,
		AspectRatioMin:     0.3,
		AspectRatioMax:     3.0,
		ApproxEpsilon:      0.02,
		RequireConvex:      true,
		BlurRadius:         1.0,
		ThresholdBlockSize: 15,
		ThresholdOffset:    5,
		TrianglePadding:    5,
	}
}

// ShapeDetector finds closed polygonal contours in a raster image and
// returns geometrically corrected crops. Pure image processing, no
// external calls, fully deterministic.
type ShapeDetector struct {
	cfg ShapeConfig
}

// NewShapeDetector creates a detector with the given configuration.
func NewShapeDetector(cfg ShapeConfig) *ShapeDetector {
	return &ShapeDetector{cfg: cfg}
}

// Detect finds all stamp-like polygons in the image.
//
// An image with no qualifying contours returns an empty slice; that is the
// normal trigger for the fallback detector, not an error. The only error
// condition is a degenerate input image (zero area).
//
// # Algorithm
//
//  1. Blur, grayscale, and adaptive threshold into a binary foreground
//     mask (locally adjusted cutoff, album backgrounds vary).
//  2. Trace the outer boundary of every foreground component.
//  3. Approximate each boundary as a polygon with tolerance
//     ApproxEpsilon x perimeter.
//  4. Keep polygons with 3-4 convex vertices, area ratio and bounding-box
//     aspect ratio inside the configured bands.
//  5. Suppress polygons fully contained in an already-kept polygon
//     (nested inner frames of the same stamp).
//  6. Produce a perspective-corrected crop per surviving polygon.
//
// Candidates are returned in contour scan order; DetectionIDs are assigned
// later by the pipeline.
func (d *ShapeDetector) Detect(img image.Image) ([]Candidate, error) {
	bounds := img.Bounds()
	imageArea := float64(bounds.Dx() * bounds.Dy())
	if imageArea == 0 {
		return nil, ErrEmptyImage
	}

	bin := imaging.Preprocess(img, d.cfg.BlurRadius, d.cfg.ThresholdBlockSize, d.cfg.ThresholdOffset)
	contours := outerContours(bin)
	slog.Debug("shape detector traced contours", "count", len(contours))

	var polygons []geometry.Polygon
	for _, contour := range contours {
		poly, ok := d.filterContour(contour, imageArea)
		if !ok {
			continue
		}
		polygons = append(polygons, poly)
	}

	polygons = suppressNested(polygons)

	candidates := make([]Candidate, 0, len(polygons))
	for _, poly := range polygons {
		cand, err := d.buildCandidate(img, poly, imageArea)
		if err != nil {
			// A single degenerate polygon never fails the whole image.
			slog.Warn("skipping degenerate polygon", "err", err)
			continue
		}
		candidates = append(candidates, cand)
	}

	slog.Debug("shape detector finished", "candidates", len(candidates))
	return candidates, nil
}

// filterContour approximates one contour and applies the geometric
// acceptance filters. Returns the approximated polygon and whether it
// qualifies as a candidate.
func (d *ShapeDetector) filterContour(contour geometry.Polygon, imageArea float64) (geometry.Polygon, bool) {
	area := contour.Area()
	if area < imageArea*d.cfg.MinAreaRatio || area > imageArea*d.cfg.MaxAreaRatio {
		return nil, false
	}

	poly := approxPolygon(contour, d.cfg.ApproxEpsilon)
	if len(poly) < d.cfg.MinVertices || len(poly) > d.cfg.MaxVertices {
		return nil, false
	}

	if d.cfg.RequireConvex && !poly.IsConvex() {
		return nil, false
	}

	box := poly.BoundingBox()
	if box.Dy() == 0 {
		return nil, false
	}
	aspect := float64(box.Dx()) / float64(box.Dy())
	if aspect < d.cfg.AspectRatioMin || aspect > d.cfg.AspectRatioMax {
		return nil, false
	}

	return poly, true
}

// buildCandidate computes the corrected crop and assembles the Candidate.
func (d *ShapeDetector) buildCandidate(img image.Image, poly geometry.Polygon, imageArea float64) (Candidate, error) {
	shape := shapeTypeFor(len(poly))

	var crop image.Image
	var err error
	switch shape {
	case ShapeTriangle:
		crop, err = imaging.CropTriangle(img, poly, d.cfg.TrianglePadding)
	default:
		crop, err = imaging.WarpQuad(img, poly)
	}
	if err != nil {
		return Candidate{}, err
	}

	return Candidate{
		ShapeType:   shape,
		Polygon:     poly,
		BoundingBox: poly.BoundingBox(),
		AreaRatio:   poly.Area() / imageArea,
		Crop:        crop,
		SourceStage: StageClassical,
		Confidence:  1.0,
	}, nil
}

// suppressNested drops any polygon fully contained in another, keeping the
// outermost. A stamp's printed inner frame often survives the geometric
// filters as a second, nested quadrilateral; without this check it would
// be classified and identified twice.
func suppressNested(polygons []geometry.Polygon) []geometry.Polygon {
	kept := make([]geometry.Polygon, 0, len(polygons))
	for i, p := range polygons {
		nested := false
		for j, outer := range polygons {
			if i == j {
				continue
			}
			if outer.Area() > p.Area() && outer.ContainsPolygon(p) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, p)
		}
	}
	return kept
}

func shapeTypeFor(vertices int) ShapeType {
	switch vertices {
	case 3:
		return ShapeTriangle
	case 4:
		return ShapeQuadrilateral
	default:
		return ShapeOther
	}
}

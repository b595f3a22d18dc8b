package detection

import (
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/alainbuyze/stampscan/internal/geometry"
)

// Fallback is the detector the pipeline escalates to when the classical
// shape detector finds nothing.
//
// Detect never returns an error: a fallback that cannot run reports
// IsAvailable false and yields empty detections, because a missing model
// must degrade a scan, not abort it.
type Fallback interface {
	Detect(img image.Image) []Candidate
	IsAvailable() bool
}

// FallbackConfig holds the trained-model detector parameters.
type FallbackConfig struct {
	// ModelPath points at the ONNX export of the trained detector.
	ModelPath string `yaml:"model_path"`

	// ConfidenceThreshold gates detections by the model's own score; the
	// heuristic classifier is not applied to fallback output.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// InputSize is the square network input edge in pixels.
	InputSize int `yaml:"input_size"`

	// NMSOverlap is the IoU above which overlapping detections collapse
	// into the higher-scoring one.
	NMSOverlap float64 `yaml:"nms_overlap"`

	// Size and shape sanity bands, mirroring the classical detector's.
	MinSizeRatio   float64 `yaml:"min_size_ratio"`
	MaxSizeRatio   float64 `yaml:"max_size_ratio"`
	AspectRatioMin float64 `yaml:"aspect_ratio_min"`
	AspectRatioMax float64 `yaml:"aspect_ratio_max"`
}

// DefaultFallbackConfig returns the fallback detector defaults.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		ModelPath:           "models/stamps.onnx",
		ConfidenceThreshold: 0.5,
		InputSize:           640,
		NMSOverlap:          0.45,
		MinSizeRatio:        0.01,
		MaxSizeRatio:        0.5,
		AspectRatioMin:      0.3,
		AspectRatioMax:      3.0,
	}
}

// ModelDetector wraps a pre-trained object detection model loaded through
// OpenCV's DNN module.
//
// The model is loaded lazily on first use, never at construction, so
// sessions that never escalate do not pay the load cost. The load is
// guarded by sync.Once, making concurrent first-use from multiple scans
// load the network exactly once.
type ModelDetector struct {
	cfg FallbackConfig

	loadOnce  sync.Once
	net       gocv.Net
	available bool
}

// NewModelDetector creates the detector without touching the model file.
func NewModelDetector(cfg FallbackConfig) *ModelDetector {
	return &ModelDetector{cfg: cfg}
}

// IsAvailable reports whether the model file is present and the network
// loads. Never panics or errors; a broken model reads as unavailable.
func (m *ModelDetector) IsAvailable() bool {
	m.ensureLoaded()
	return m.available
}

func (m *ModelDetector) ensureLoaded() {
	m.loadOnce.Do(func() {
		info, err := os.Stat(m.cfg.ModelPath)
		if err != nil || !info.Mode().IsRegular() {
			slog.Warn("fallback model not found", "path", m.cfg.ModelPath)
			return
		}

		net := gocv.ReadNetFromONNX(m.cfg.ModelPath)
		if net.Empty() {
			slog.Error("fallback model failed to load", "path", m.cfg.ModelPath)
			return
		}

		m.net = net
		m.available = true
		slog.Debug("fallback model loaded", "path", m.cfg.ModelPath)
	})
}

// Close releases the loaded network, if any.
func (m *ModelDetector) Close() error {
	if m.available {
		m.available = false
		return m.net.Close()
	}
	return nil
}

// Detect runs the trained model over the full image and returns candidates
// tagged StageFallback. Fails soft: any inference problem logs and returns
// an empty slice.
func (m *ModelDetector) Detect(img image.Image) []Candidate {
	m.ensureLoaded()
	if !m.available {
		return nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		slog.Error("fallback detector could not convert image", "err", err)
		return nil
	}
	defer mat.Close()

	size := m.cfg.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	boxes, scores := m.decodeOutput(&out, img.Bounds())
	keep := suppressOverlaps(boxes, scores, m.cfg.NMSOverlap)

	imageArea := float64(img.Bounds().Dx() * img.Bounds().Dy())
	candidates := make([]Candidate, 0, len(keep))
	for _, i := range keep {
		box := boxes[i]
		if !m.plausibleBox(box, imageArea) {
			continue
		}

		crop := imaging.Crop(img, box)
		candidates = append(candidates, Candidate{
			ShapeType:   ShapeQuadrilateral,
			Polygon:     rectPolygon(box),
			BoundingBox: box,
			AreaRatio:   float64(box.Dx()*box.Dy()) / imageArea,
			Crop:        crop,
			SourceStage: StageFallback,
			Confidence:  float64(scores[i]),
		})
	}

	slog.Info("fallback detector finished", "detections", len(candidates))
	return candidates
}

// decodeOutput converts the network's raw tensor into boxes and scores in
// source-image coordinates. Both common single-tensor layouts are
// supported: [1, rows, 4+1+classes] (objectness plus class scores) and the
// transposed [1, 4+classes, rows] variant without objectness.
func (m *ModelDetector) decodeOutput(out *gocv.Mat, bounds image.Rectangle) ([]image.Rectangle, []float32) {
	data, err := out.DataPtrFloat32()
	if err != nil {
		slog.Error("fallback detector could not read model output", "err", err)
		return nil, nil
	}

	dims := out.Size()
	if len(dims) != 3 {
		slog.Error("fallback detector got unexpected output shape", "dims", dims)
		return nil, nil
	}

	rows, cols := dims[1], dims[2]
	transposed := cols > rows // [1, channels, anchors]
	if transposed {
		rows, cols = cols, rows
	}

	at := func(row, col int) float32 {
		if transposed {
			return data[col*rows+row]
		}
		return data[row*cols+col]
	}

	scaleX := float64(bounds.Dx()) / float64(m.cfg.InputSize)
	scaleY := float64(bounds.Dy()) / float64(m.cfg.InputSize)

	var boxes []image.Rectangle
	var scores []float32

	for r := 0; r < rows; r++ {
		var conf float32
		if transposed {
			for c := 4; c < cols; c++ {
				if s := at(r, c); s > conf {
					conf = s
				}
			}
		} else {
			obj := at(r, 4)
			var best float32
			for c := 5; c < cols; c++ {
				if s := at(r, c); s > best {
					best = s
				}
			}
			conf = obj * best
		}

		if float64(conf) < m.cfg.ConfidenceThreshold {
			continue
		}

		cx := float64(at(r, 0)) * scaleX
		cy := float64(at(r, 1)) * scaleY
		w := float64(at(r, 2)) * scaleX
		h := float64(at(r, 3)) * scaleY

		box := image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		boxes = append(boxes, box)
		scores = append(scores, conf)
	}

	return boxes, scores
}

// plausibleBox applies the size and aspect sanity bands to one detection.
func (m *ModelDetector) plausibleBox(box image.Rectangle, imageArea float64) bool {
	ratio := float64(box.Dx()*box.Dy()) / imageArea
	if ratio < m.cfg.MinSizeRatio || ratio > m.cfg.MaxSizeRatio {
		return false
	}
	if box.Dy() == 0 {
		return false
	}
	aspect := float64(box.Dx()) / float64(box.Dy())
	return aspect >= m.cfg.AspectRatioMin && aspect <= m.cfg.AspectRatioMax
}

// suppressOverlaps performs greedy non-maximum suppression: detections are
// visited in descending score order and any box overlapping an already
// kept box beyond the IoU threshold is dropped.
func suppressOverlaps(boxes []image.Rectangle, scores []float32, maxOverlap float64) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order)-1; i++ {
		for j := i + 1; j < len(order); j++ {
			if scores[order[j]] > scores[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	var keep []int
	for _, i := range order {
		overlaps := false
		for _, k := range keep {
			if iou(boxes[i], boxes[k]) > maxOverlap {
				overlaps = true
				break
			}
		}
		if !overlaps {
			keep = append(keep, i)
		}
	}
	return keep
}

// iou computes intersection-over-union of two rectangles.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// rectPolygon converts a bounding box into its four corner vertices.
func rectPolygon(r image.Rectangle) geometry.Polygon {
	return geometry.Polygon{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X - 1, Y: r.Min.Y},
		{X: r.Max.X - 1, Y: r.Max.Y - 1},
		{X: r.Min.X, Y: r.Max.Y - 1},
	}
}

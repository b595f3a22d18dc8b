package detection

import (
	"image"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"

	"github.com/alainbuyze/stampscan/internal/imaging"
)

// Component score names. Stable identifiers: they appear in session
// records and rejection reasons.
const (
	ScoreColorVariance    = "color_variance"
	ScoreEdgeComplexity   = "edge_complexity"
	ScoreSizePlausibility = "size_plausibility"
	ScorePerforationHint  = "perforation_hint"
)

// ClassifierConfig holds the weights and thresholds of the heuristic
// stamp classifier. Weights should sum to 1.0.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	ColorVarianceWeight  float64 `yaml:"color_variance_weight"`
	EdgeComplexityWeight float64 `yaml:"edge_complexity_weight"`
	SizeWeight           float64 `yaml:"size_weight"`
	PerforationWeight    float64 `yaml:"perforation_weight"`

	// MinColorVariance rejects near-uniform crops outright (blank decoys).
	MinColorVariance float64 `yaml:"min_color_variance"`

	// MinEdgeDensity is the edge-pixel ratio under which a crop is
	// considered detail-free.
	MinEdgeDensity float64 `yaml:"min_edge_density"`

	// Plausible stamp dimensions in pixels, assuming roughly 300 DPI.
	MinStampSize int `yaml:"min_stamp_size"`
	MaxStampSize int `yaml:"max_stamp_size"`
	IdealWidth   int `yaml:"ideal_width"`
	IdealHeight  int `yaml:"ideal_height"`

	// PerforationBand is how many pixels from each border to inspect for
	// the scalloped-edge signal.
	PerforationBand         int     `yaml:"perforation_band"`
	PerforationVarianceHigh float64 `yaml:"perforation_variance_high"`
	PerforationVarianceLow  float64 `yaml:"perforation_variance_low"`
}

// DefaultClassifierConfig returns the tuned heuristic defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ConfidenceThreshold:     0.6,
		ColorVarianceWeight:     0.35,
		EdgeComplexityWeight:    0.30,
		SizeWeight:              0.20,
		PerforationWeight:       0.15,
		MinColorVariance:        500.0,
		MinEdgeDensity:          0.05,
		MinStampSize:            50,
		MaxStampSize:            500,
		IdealWidth:              150,
		IdealHeight:             180,
		PerforationBand:         5,
		PerforationVarianceHigh: 1000.0,
		PerforationVarianceLow:  200.0,
	}
}

// Classifier scores a single crop with four independent heuristics and
// emits an accept/reject verdict with confidence.
//
// Classify is a deterministic, pure function of the crop's pixels: no
// external calls, no state, never an error. Unusual crops degrade to
// neutral scores instead of failing.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier with the given configuration.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify scores the crop and returns the verdict.
//
// confidence = 0.35*color_variance + 0.30*edge_complexity +
// 0.20*size_plausibility + 0.15*perforation_hint (with configured
// weights), and is_stamp holds exactly when confidence >= threshold.
func (c *Classifier) Classify(crop image.Image) Verdict {
	scores := map[string]float64{
		ScoreColorVariance:    c.colorVarianceScore(crop),
		ScoreEdgeComplexity:   c.edgeComplexityScore(crop),
		ScoreSizePlausibility: c.sizeScore(crop),
		ScorePerforationHint:  c.perforationScore(crop),
	}

	confidence := scores[ScoreColorVariance]*c.cfg.ColorVarianceWeight +
		scores[ScoreEdgeComplexity]*c.cfg.EdgeComplexityWeight +
		scores[ScoreSizePlausibility]*c.cfg.SizeWeight +
		scores[ScorePerforationHint]*c.cfg.PerforationWeight

	verdict := Verdict{
		IsStamp:         confidence >= c.cfg.ConfidenceThreshold,
		Confidence:      confidence,
		ComponentScores: scores,
	}
	if !verdict.IsStamp {
		verdict.Reason = lowestScore(scores)
	}
	return verdict
}

// colorVarianceScore measures how colorful the crop is. Stamps carry rich
// printed color; blank paper and album mounts do not.
//
// Pixels are converted to the Lab color space (perceptually uniform, so
// variance tracks visible color differences) and the per-channel variances
// are summed. Channels are scaled to a 0-255 range so the configured
// thresholds stay comparable across color spaces.
func (c *Classifier) colorVarianceScore(crop image.Image) float64 {
	bounds := crop.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return 0.5
	}

	// Subsample large crops; variance stabilizes long before every pixel
	// has been visited.
	step := 1
	if bounds.Dx()*bounds.Dy() > 65536 {
		step = 2
	}

	var ls, as, bs []float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			col, ok := colorful.MakeColor(crop.At(x, y))
			if !ok {
				continue
			}
			l, a, b := col.Lab()
			ls = append(ls, l*255)
			as = append(as, a*255)
			bs = append(bs, b*255)
		}
	}
	if len(ls) < 2 {
		return 0.5
	}

	total := stat.Variance(ls, nil) + stat.Variance(as, nil) + stat.Variance(bs, nil)

	if total < c.cfg.MinColorVariance {
		return 0.1
	}

	const maxExpectedVariance = 10000.0
	return math.Min(total/maxExpectedVariance, 1.0)
}

// edgeComplexityScore measures fine printed detail via Canny edge-pixel
// density. Typical stamps land between 5% and 25% density.
func (c *Classifier) edgeComplexityScore(crop image.Image) float64 {
	bounds := crop.Bounds()
	if bounds.Dx()*bounds.Dy() == 0 {
		return 0.2
	}

	density := imaging.CannyEdges(crop, 0, 0).Density()

	if density < c.cfg.MinEdgeDensity {
		return 0.2
	}

	return math.Min(density/0.25, 1.0)
}

// sizeScore peaks for crops near the typical stamp size and falls off for
// implausibly tiny or huge crops. Out-of-band dimensions score a flat 0.3
// rather than 0 so a single odd dimension cannot sink the verdict alone.
func (c *Classifier) sizeScore(crop image.Image) float64 {
	bounds := crop.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	widthScore := 0.3
	if w >= c.cfg.MinStampSize && w <= c.cfg.MaxStampSize {
		ideal := float64(c.cfg.IdealWidth)
		widthScore = 1.0 - math.Min(math.Abs(float64(w)-ideal)/ideal, 0.7)
	}

	heightScore := 0.3
	if h >= c.cfg.MinStampSize && h <= c.cfg.MaxStampSize {
		ideal := float64(c.cfg.IdealHeight)
		heightScore = 1.0 - math.Min(math.Abs(float64(h)-ideal)/ideal, 0.7)
	}

	return (widthScore + heightScore) / 2
}

// perforationScore looks for the periodic boundary undulation a perforated
// edge leaves in the crop's border bands. A soft signal: many modern
// stamps are die-cut, so a perfectly straight border only drops the score
// to 0.3, never to 0.
func (c *Classifier) perforationScore(crop image.Image) float64 {
	bounds := crop.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	band := c.cfg.PerforationBand
	if w <= band || h <= band {
		return 0.5
	}

	edges := imaging.CannyEdges(crop, 0, 0)

	var variances []float64
	appendBand := func(r image.Rectangle) {
		if v, ok := edges.RegionVariance(r); ok {
			variances = append(variances, v)
		}
	}

	appendBand(image.Rect(0, 0, w, band))
	appendBand(image.Rect(0, h-band, w, h))
	appendBand(image.Rect(0, 0, band, h))
	appendBand(image.Rect(w-band, 0, w, h))

	if len(variances) == 0 {
		return 0.5
	}

	avg := stat.Mean(variances, nil)
	switch {
	case avg > c.cfg.PerforationVarianceHigh:
		return 1.0
	case avg < c.cfg.PerforationVarianceLow:
		return 0.3
	default:
		return 0.5
	}
}

// lowestScore returns the name of the weakest heuristic, used as the
// rejection reason.
func lowestScore(scores map[string]float64) string {
	lowest := ""
	min := math.Inf(1)
	// Fixed iteration order keeps the reason deterministic on ties.
	for _, name := range []string{ScoreColorVariance, ScoreEdgeComplexity, ScoreSizePlausibility, ScorePerforationHint} {
		if s, ok := scores[name]; ok && s < min {
			min = s
			lowest = name
		}
	}
	return lowest
}

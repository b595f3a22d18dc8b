package detection

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/alainbuyze/stampscan/internal/geometry"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

// Fixed overlay color contract. Every consumer of annotated images relies
// on these meanings, so they are defined once here.
var (
	ColorIdentified = color.NRGBA{R: 0, G: 200, B: 0, A: 255}    // green
	ColorNoMatch    = color.NRGBA{R: 255, G: 140, B: 0, A: 255}  // orange
	ColorRejected   = color.NRGBA{R: 220, G: 30, B: 30, A: 255}  // red
	ColorPending    = color.NRGBA{R: 230, G: 200, B: 0, A: 255}  // yellow, also ambiguous
)

// DefaultLineThickness is the overlay stroke width in pixels.
const DefaultLineThickness = 2

// Overlay describes one annotation to draw: a polygon (preferred) or a
// bounding box, a stroke color, and an optional label rendered above the
// region.
type Overlay struct {
	Polygon geometry.Polygon
	Box     image.Rectangle
	Color   color.NRGBA
	Label   string
}

// Visualize draws the pipeline's detections over the image: accepted
// candidates in pending yellow (identification has not run yet), rejected
// ones in red with their rejection reason as the label.
//
// This is a pure rendering function: the input image and the detections
// are never modified.
func Visualize(img image.Image, accepted, rejected []Detection, thickness int) *image.NRGBA {
	overlays := make([]Overlay, 0, len(accepted)+len(rejected))
	for _, det := range rejected {
		overlays = append(overlays, Overlay{
			Polygon: det.Candidate.Polygon,
			Box:     det.Candidate.BoundingBox,
			Color:   ColorRejected,
			Label:   "X " + det.Verdict.Reason,
		})
	}
	for _, det := range accepted {
		overlays = append(overlays, Overlay{
			Polygon: det.Candidate.Polygon,
			Box:     det.Candidate.BoundingBox,
			Color:   ColorPending,
			Label:   det.Candidate.DetectionID,
		})
	}
	return RenderOverlays(img, overlays, thickness)
}

// RenderOverlays draws each overlay onto a copy of the image.
//
// Overlays with a polygon draw the closed polygon outline; overlays
// without one fall back to the bounding box. thickness <= 0 uses
// DefaultLineThickness.
func RenderOverlays(img image.Image, overlays []Overlay, thickness int) *image.NRGBA {
	if thickness <= 0 {
		thickness = DefaultLineThickness
	}

	out := imaging.Clone(img)

	for _, ov := range overlays {
		if len(ov.Polygon) >= 3 {
			drawPolygon(out, ov.Polygon, ov.Color, thickness)
		} else if !ov.Box.Empty() {
			drawPolygon(out, rectPolygon(ov.Box), ov.Color, thickness)
		}

		if ov.Label != "" {
			anchor := ov.Box.Min
			if len(ov.Polygon) > 0 {
				anchor = ov.Polygon.BoundingBox().Min
			}
			drawLabel(out, ov.Label, anchor, ov.Color)
		}
	}

	return out
}

// drawPolygon strokes the closed polygon outline.
func drawPolygon(dst *image.NRGBA, poly geometry.Polygon, c color.NRGBA, thickness int) {
	for i := range poly {
		a := poly[i]
		b := poly[(i+1)%len(poly)]
		drawLine(dst, a, b, c, thickness)
	}
}

// drawLine draws a thick line segment using Bresenham's algorithm with a
// square brush.
func drawLine(dst *image.NRGBA, a, b geometry.Point, c color.NRGBA, thickness int) {
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx := 1
	if a.X > b.X {
		sx = -1
	}
	sy := 1
	if a.Y > b.Y {
		sy = -1
	}
	errAcc := dx + dy

	x, y := a.X, a.Y
	for {
		drawBrush(dst, x, y, c, thickness)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x += sx
		}
		if e2 <= dx {
			errAcc += dx
			y += sy
		}
	}
}

func drawBrush(dst *image.NRGBA, x, y int, c color.NRGBA, thickness int) {
	r := thickness / 2
	for by := y - r; by <= y+r; by++ {
		for bx := x - r; bx <= x+r; bx++ {
			if image.Pt(bx, by).In(dst.Bounds()) {
				dst.SetNRGBA(bx, by, c)
			}
		}
	}
}

// drawLabel renders the text just above the anchor point, clamped inside
// the image, on a filled background bar for readability.
func drawLabel(dst *image.NRGBA, text string, anchor image.Point, c color.NRGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	x := anchor.X
	y := anchor.Y - 4
	if y-height < dst.Bounds().Min.Y {
		y = anchor.Y + height + 4
	}
	if x+width > dst.Bounds().Max.X {
		x = dst.Bounds().Max.X - width
	}
	if x < dst.Bounds().Min.X {
		x = dst.Bounds().Min.X
	}

	// Background bar.
	for by := y - height; by <= y+2; by++ {
		for bx := x - 2; bx <= x+width+2; bx++ {
			if image.Pt(bx, by).In(dst.Bounds()) {
				dst.SetNRGBA(bx, by, c)
			}
		}
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/alainbuyze/stampscan/internal/geometry"
)

// minCropSize is the smallest rectified crop edge in pixels. Very small
// quads still produce a usable crop for the classifier.
const minCropSize = 50

// WarpQuad produces a perspective-corrected crop of a quadrilateral region.
//
// The four corners may arrive in any order; they are sorted into
// top-left, top-right, bottom-right, bottom-left before the transform is
// computed. The output dimensions are taken from the longer of each
// opposing edge pair, so a skewed stamp is stretched back to its true
// proportions rather than to its foreshortened ones.
//
// Rectifying here instead of taking a naive axis-aligned crop is what keeps
// the downstream classifier and describer reliable on pages photographed
// at an angle.
func WarpQuad(img image.Image, quad geometry.Polygon) (*image.NRGBA, error) {
	if len(quad) != 4 {
		return nil, fmt.Errorf("quad crop requires 4 vertices, got %d", len(quad))
	}

	src := geometry.OrderQuad(quad)

	widthTop := pointDist(src[0], src[1])
	widthBottom := pointDist(src[3], src[2])
	width := int(math.Max(widthTop, widthBottom))

	heightLeft := pointDist(src[0], src[3])
	heightRight := pointDist(src[1], src[2])
	height := int(math.Max(heightLeft, heightRight))

	if width < minCropSize {
		width = minCropSize
	}
	if height < minCropSize {
		height = minCropSize
	}

	dst := geometry.Polygon{
		{X: 0, Y: 0},
		{X: width - 1, Y: 0},
		{X: width - 1, Y: height - 1},
		{X: 0, Y: height - 1},
	}

	forward, err := geometry.PerspectiveTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to compute perspective transform: %w", err)
	}
	inverse, err := forward.Invert()
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx, sy := inverse.Apply(float64(x), float64(y))
			out.SetNRGBA(x, y, sampleBilinear(img, sx, sy))
		}
	}
	return out, nil
}

// CropTriangle extracts a triangle region as its padded bounding rectangle
// with the area outside the triangle filled white.
//
// Triangular stamps have no meaningful perspective rectification target, so
// the bounding rectangle with a clean background is the stable input for
// classification and description.
func CropTriangle(img image.Image, tri geometry.Polygon, padding int) (*image.NRGBA, error) {
	if len(tri) != 3 {
		return nil, fmt.Errorf("triangle crop requires 3 vertices, got %d", len(tri))
	}

	bounds := img.Bounds()
	box := tri.BoundingBox().Inset(-padding).Intersect(bounds)
	if box.Empty() {
		return nil, fmt.Errorf("triangle bounding box outside image bounds")
	}

	out := image.NewNRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			p := geometry.Point{X: box.Min.X + x, Y: box.Min.Y + y}
			if tri.Contains(p) {
				r, g, b, a := img.At(p.X, p.Y).RGBA()
				out.SetNRGBA(x, y, color.NRGBA{
					R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8),
				})
			} else {
				out.SetNRGBA(x, y, white)
			}
		}
	}
	return out, nil
}

// sampleBilinear reads the image at a fractional coordinate with bilinear
// interpolation. Coordinates outside the image clamp to the border.
func sampleBilinear(img image.Image, x, y float64) color.NRGBA {
	bounds := img.Bounds()

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	clampX := func(v int) int {
		if v < bounds.Min.X {
			return bounds.Min.X
		}
		if v > bounds.Max.X-1 {
			return bounds.Max.X - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < bounds.Min.Y {
			return bounds.Min.Y
		}
		if v > bounds.Max.Y-1 {
			return bounds.Max.Y - 1
		}
		return v
	}

	var rr, gg, bb, aa float64
	for _, s := range []struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		r, g, b, a := img.At(clampX(x0+s.dx), clampY(y0+s.dy)).RGBA()
		rr += float64(r>>8) * s.w
		gg += float64(g>>8) * s.w
		bb += float64(b>>8) * s.w
		aa += float64(a>>8) * s.w
	}

	return color.NRGBA{
		R: uint8(rr + 0.5),
		G: uint8(gg + 0.5),
		B: uint8(bb + 0.5),
		A: uint8(aa + 0.5),
	}
}

func pointDist(a, b geometry.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

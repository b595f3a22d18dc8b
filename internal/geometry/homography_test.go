package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestPerspectiveTransformIdentity(t *testing.T) {
	square := Polygon{{0, 0}, {100, 0}, {100, 100}, {0, 100}}

	h, err := PerspectiveTransform(square, square)
	if err != nil {
		t.Fatalf("PerspectiveTransform failed: %v", err)
	}

	for _, pt := range []Point{{0, 0}, {100, 0}, {50, 50}, {30, 70}} {
		x, y := h.Apply(float64(pt.X), float64(pt.Y))
		if !almostEqual(x, float64(pt.X), 1e-6) || !almostEqual(y, float64(pt.Y), 1e-6) {
			t.Errorf("identity transform moved (%d,%d) to (%f,%f)", pt.X, pt.Y, x, y)
		}
	}
}

func TestPerspectiveTransformMapsCorners(t *testing.T) {
	src := Polygon{{10, 20}, {110, 25}, {105, 140}, {5, 130}}
	dst := Polygon{{0, 0}, {100, 0}, {100, 120}, {0, 120}}

	h, err := PerspectiveTransform(src, dst)
	if err != nil {
		t.Fatalf("PerspectiveTransform failed: %v", err)
	}

	for i := range src {
		x, y := h.Apply(float64(src[i].X), float64(src[i].Y))
		if !almostEqual(x, float64(dst[i].X), 1e-6) || !almostEqual(y, float64(dst[i].Y), 1e-6) {
			t.Errorf("corner %d mapped to (%f,%f), want (%d,%d)", i, x, y, dst[i].X, dst[i].Y)
		}
	}
}

func TestHomographyInvertRoundTrip(t *testing.T) {
	src := Polygon{{10, 20}, {110, 25}, {105, 140}, {5, 130}}
	dst := Polygon{{0, 0}, {100, 0}, {100, 120}, {0, 120}}

	h, err := PerspectiveTransform(src, dst)
	if err != nil {
		t.Fatalf("PerspectiveTransform failed: %v", err)
	}
	inv, err := h.Invert()
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}

	for _, pt := range []Point{{30, 40}, {60, 90}, {12, 25}} {
		fx, fy := h.Apply(float64(pt.X), float64(pt.Y))
		bx, by := inv.Apply(fx, fy)
		if !almostEqual(bx, float64(pt.X), 1e-6) || !almostEqual(by, float64(pt.Y), 1e-6) {
			t.Errorf("round trip moved (%d,%d) to (%f,%f)", pt.X, pt.Y, bx, by)
		}
	}
}

func TestPerspectiveTransformDegenerate(t *testing.T) {
	// Collinear source points have no defined homography.
	src := Polygon{{0, 0}, {10, 0}, {20, 0}, {30, 0}}
	dst := Polygon{{0, 0}, {100, 0}, {100, 100}, {0, 100}}

	if _, err := PerspectiveTransform(src, dst); err == nil {
		t.Fatal("expected error for collinear source quadrilateral")
	}
}

package detection

import (
	"testing"

	"github.com/alainbuyze/stampscan/internal/geometry"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

func binaryWithRect(width, height int, x1, y1, x2, y2 int) *imaging.Binary {
	bin := &imaging.Binary{Width: width, Height: height, Mask: make([][]bool, height)}
	for y := range bin.Mask {
		bin.Mask[y] = make([]bool, width)
	}
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			bin.Mask[y][x] = true
		}
	}
	return bin
}

func TestOuterContoursSingleComponent(t *testing.T) {
	bin := binaryWithRect(100, 100, 20, 30, 70, 80)

	contours := outerContours(bin)
	if len(contours) != 1 {
		t.Fatalf("expected 1 contour, got %d", len(contours))
	}

	box := contours[0].BoundingBox()
	if box.Min.X != 20 || box.Min.Y != 30 || box.Max.X != 71 || box.Max.Y != 81 {
		t.Errorf("contour bounding box %v does not match the component", box)
	}
}

func TestOuterContoursMultipleComponents(t *testing.T) {
	bin := binaryWithRect(120, 120, 10, 10, 40, 40)
	for y := 60; y <= 100; y++ {
		for x := 60; x <= 100; x++ {
			bin.Mask[y][x] = true
		}
	}

	contours := outerContours(bin)
	if len(contours) != 2 {
		t.Fatalf("expected 2 contours, got %d", len(contours))
	}
}

func TestOuterContoursSkipsSpecks(t *testing.T) {
	bin := binaryWithRect(50, 50, 10, 10, 11, 11) // 4 pixels, below the floor

	contours := outerContours(bin)
	if len(contours) != 0 {
		t.Errorf("speck component produced %d contours", len(contours))
	}
}

func TestApproxPolygonSquare(t *testing.T) {
	bin := binaryWithRect(100, 100, 20, 20, 80, 80)
	contours := outerContours(bin)
	if len(contours) != 1 {
		t.Fatalf("expected 1 contour, got %d", len(contours))
	}

	poly := approxPolygon(contours[0], 0.02)
	if len(poly) != 4 {
		t.Fatalf("square approximated to %d vertices, want 4", len(poly))
	}
	if !poly.IsConvex() {
		t.Error("approximated square reported as concave")
	}
}

func TestApproxPolygonPreservesCorners(t *testing.T) {
	bin := binaryWithRect(100, 100, 20, 20, 80, 80)
	poly := approxPolygon(outerContours(bin)[0], 0.02)

	corners := []geometry.Point{{20, 20}, {80, 20}, {80, 80}, {20, 80}}
	for _, corner := range corners {
		found := false
		for _, v := range poly {
			dx := v.X - corner.X
			dy := v.Y - corner.Y
			if dx*dx+dy*dy <= 9 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no approximated vertex near corner %v (got %v)", corner, poly)
		}
	}
}

package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/alainbuyze/stampscan/internal/geometry"
)

func TestWarpQuadAxisAligned(t *testing.T) {
	img := createSheetImage(200, 200)
	for y := 50; y < 150; y++ {
		for x := 40; x < 160; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 40, B: 40, A: 255})
		}
	}

	quad := geometry.Polygon{{X: 40, Y: 50}, {X: 159, Y: 50}, {X: 159, Y: 149}, {X: 40, Y: 149}}
	crop, err := WarpQuad(img, quad)
	if err != nil {
		t.Fatalf("WarpQuad failed: %v", err)
	}

	bounds := crop.Bounds()
	if bounds.Dx() < 100 || bounds.Dy() < 90 {
		t.Errorf("crop %v smaller than the source quad", bounds)
	}

	// The crop center must hold the quad's fill color.
	c := crop.NRGBAAt(bounds.Dx()/2, bounds.Dy()/2)
	if c.R < 150 || c.G > 80 {
		t.Errorf("crop center color %+v, want the red fill", c)
	}
}

func TestWarpQuadMinimumSize(t *testing.T) {
	img := createSheetImage(100, 100)
	quad := geometry.Polygon{{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 30}, {X: 10, Y: 30}}

	crop, err := WarpQuad(img, quad)
	if err != nil {
		t.Fatalf("WarpQuad failed: %v", err)
	}
	bounds := crop.Bounds()
	if bounds.Dx() < minCropSize || bounds.Dy() < minCropSize {
		t.Errorf("crop %v below the minimum crop size", bounds)
	}
}

func TestWarpQuadVertexCount(t *testing.T) {
	img := createSheetImage(100, 100)
	tri := geometry.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 30, Y: 50}}

	if _, err := WarpQuad(img, tri); err == nil {
		t.Fatal("expected error for non-quadrilateral input")
	}
}

func TestCropTriangle(t *testing.T) {
	img := createSheetImage(200, 200)
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 40, A: 255})
		}
	}

	tri := geometry.Polygon{{X: 60, Y: 60}, {X: 140, Y: 60}, {X: 100, Y: 140}}
	crop, err := CropTriangle(img, tri, 5)
	if err != nil {
		t.Fatalf("CropTriangle failed: %v", err)
	}

	bounds := crop.Bounds()
	wantW := (140 - 60) + 1 + 2*5
	wantH := (140 - 60) + 1 + 2*5
	if bounds.Dx() != wantW || bounds.Dy() != wantH {
		t.Errorf("crop size %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), wantW, wantH)
	}

	// Inside the triangle keeps the source color, the padded corner is white.
	inside := crop.NRGBAAt(bounds.Dx()/2, bounds.Dy()/3)
	if inside.G < 100 {
		t.Errorf("triangle interior color %+v, want the green fill", inside)
	}
	corner := crop.NRGBAAt(0, bounds.Dy()-1)
	if corner.R != 255 || corner.G != 255 || corner.B != 255 {
		t.Errorf("padded corner color %+v, want white", corner)
	}
}

func TestCropTriangleVertexCount(t *testing.T) {
	img := createSheetImage(100, 100)
	quad := geometry.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50}}

	if _, err := CropTriangle(img, quad, 5); err == nil {
		t.Fatal("expected error for non-triangle input")
	}
}

func TestCloneDetachesPixels(t *testing.T) {
	img := createSheetImage(50, 50)
	clone := Clone(img)

	img.Set(10, 10, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	c := clone.NRGBAAt(10, 10)
	if c.R == 1 && c.G == 2 && c.B == 3 {
		t.Error("clone shares pixel storage with the source")
	}
	if clone.Bounds() != image.Rect(0, 0, 50, 50) {
		t.Errorf("clone bounds %v", clone.Bounds())
	}
}

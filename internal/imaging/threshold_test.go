package imaging

import (
	"image"
	"image/color"
	"testing"
)

func createSheetImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func countForeground(bin *Binary) int {
	count := 0
	for y := 0; y < bin.Height; y++ {
		for x := 0; x < bin.Width; x++ {
			if bin.Mask[y][x] {
				count++
			}
		}
	}
	return count
}

func TestPreprocessBlankImage(t *testing.T) {
	bin := Preprocess(createSheetImage(100, 100), 1.0, 15, 5)

	if bin.Width != 100 || bin.Height != 100 {
		t.Fatalf("mask dimensions %dx%d, want 100x100", bin.Width, bin.Height)
	}
	if got := countForeground(bin); got != 0 {
		t.Errorf("blank image produced %d foreground pixels", got)
	}
}

func TestPreprocessDarkRegionIsForeground(t *testing.T) {
	img := createSheetImage(120, 120)
	for y := 40; y < 80; y++ {
		for x := 40; x < 80; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}

	bin := Preprocess(img, 1.0, 15, 5)

	fg := countForeground(bin)
	if fg == 0 {
		t.Fatal("dark region produced no foreground pixels")
	}

	// Foreground should concentrate around the dark block, not the page.
	outside := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			if bin.Mask[y][x] {
				outside++
			}
		}
	}
	if outside > 0 {
		t.Errorf("%d foreground pixels in the empty page corner", outside)
	}
}

func TestPreprocessMaskBounds(t *testing.T) {
	// Non-zero-origin images must still index from (0,0) in the mask.
	img := image.NewRGBA(image.Rect(10, 20, 110, 140))
	for y := 20; y < 140; y++ {
		for x := 10; x < 110; x++ {
			img.Set(x, y, color.White)
		}
	}

	bin := Preprocess(img, 1.0, 15, 5)
	if bin.Width != 100 || bin.Height != 120 {
		t.Errorf("mask dimensions %dx%d, want 100x120", bin.Width, bin.Height)
	}
}

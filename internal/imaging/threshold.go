package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// Binary is a foreground mask produced by thresholding. Mask[y][x] is true
// for foreground pixels. Width and Height describe the mask extent.
type Binary struct {
	Mask   [][]bool
	Width  int
	Height int
}

// Preprocess converts an image into the binary foreground mask used for
// contour extraction.
//
// Steps:
//  1. Gaussian blur to suppress sensor noise (bild, radius blurRadius).
//  2. Grayscale conversion (bild, luminance weights).
//  3. Inverted adaptive threshold: a pixel is foreground when it is darker
//     than the mean of its (blockSize x blockSize) neighborhood minus offset.
//
// The locally adjusted threshold is what makes the detector robust to
// uneven album-page lighting; a single global cutoff either swallows pale
// stamps or promotes the page texture to foreground.
func Preprocess(img image.Image, blurRadius float64, blockSize, offset int) *Binary {
	blurred := blur.Gaussian(img, blurRadius)
	gray := effect.Grayscale(blurred)

	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if blockSize < 3 {
		blockSize = 3
	}
	if blockSize%2 == 0 {
		blockSize++
	}

	// Integral image for O(1) window means. integral[y][x] holds the sum of
	// all gray values above and left of (x, y), exclusive.
	integral := make([][]uint64, height+1)
	integral[0] = make([]uint64, width+1)
	for y := 0; y < height; y++ {
		integral[y+1] = make([]uint64, width+1)
		var rowSum uint64
		for x := 0; x < width; x++ {
			// Grayscale output has R == G == B.
			v := gray.Pix[gray.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)]
			rowSum += uint64(v)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := blockSize / 2
	mask := make([][]bool, height)
	for y := 0; y < height; y++ {
		mask[y] = make([]bool, width)
		y1 := maxInt(0, y-half)
		y2 := minInt(height-1, y+half)
		for x := 0; x < width; x++ {
			x1 := maxInt(0, x-half)
			x2 := minInt(width-1, x+half)

			count := uint64((y2 - y1 + 1) * (x2 - x1 + 1))
			sum := integral[y2+1][x2+1] - integral[y1][x2+1] - integral[y2+1][x1] + integral[y1][x1]
			mean := sum / count

			v := gray.Pix[gray.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)]
			if int(v) < int(mean)-offset {
				mask[y][x] = true
			}
		}
	}

	b := &Binary{Mask: mask, Width: width, Height: height}
	b.close()
	b.open()
	return b
}

// close fills single-pixel gaps in the foreground (dilate then erode).
func (b *Binary) close() {
	b.Mask = dilate(b.Mask, b.Width, b.Height)
	b.Mask = erode(b.Mask, b.Width, b.Height)
}

// open removes single-pixel speckles (erode then dilate).
func (b *Binary) open() {
	b.Mask = erode(b.Mask, b.Width, b.Height)
	b.Mask = dilate(b.Mask, b.Width, b.Height)
}

func dilate(mask [][]bool, width, height int) [][]bool {
	out := make([][]bool, height)
	for y := 0; y < height; y++ {
		out[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			if mask[y][x] {
				out[y][x] = true
				continue
			}
			for dy := -1; dy <= 1 && !out[y][x]; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny >= 0 && ny < height && nx >= 0 && nx < width && mask[ny][nx] {
						out[y][x] = true
						break
					}
				}
			}
		}
	}
	return out
}

func erode(mask [][]bool, width, height int) [][]bool {
	out := make([][]bool, height)
	for y := 0; y < height; y++ {
		out[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			if !mask[y][x] {
				continue
			}
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ny, nx := y+dy, x+dx
					if ny < 0 || ny >= height || nx < 0 || nx >= width || !mask[ny][nx] {
						keep = false
						break
					}
				}
			}
			out[y][x] = keep
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

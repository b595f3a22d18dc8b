package imaging

import (
	"image"
	"math"
)

// Default Canny hysteresis thresholds (0-255 scale). Tuned for printed
// stamp detail on scanned album pages.
const (
	DefaultCannyLow  = 50
	DefaultCannyHigh = 150
)

// CannyEdges computes a binary edge mask for the image.
//
// Edge density over this mask is the classifier's measure of printed
// detail, so the mask must be thin and noise-free: a blurred-then-thinned
// Canny mask keeps the density ranges stable across scan resolutions,
// where a raw gradient threshold would not.
//
// # Algorithm
//
//  1. Grayscale conversion with ITU-R BT.601 luminance weights.
//  2. 5x5 Gaussian blur to suppress scanner noise.
//  3. Sobel gradients, magnitude and direction per pixel.
//  4. Non-maximum suppression along the gradient direction, thinning
//     edges to single-pixel width.
//  5. Hysteresis: magnitudes above high are edges, magnitudes between
//     low and high are kept only next to a strong edge.
//
// Thresholds are on a 0-255 scale. Both zero selects the defaults.
func CannyEdges(img image.Image, low, high int) *Binary {
	if low <= 0 && high <= 0 {
		low, high = DefaultCannyLow, DefaultCannyHigh
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	out := &Binary{Width: width, Height: height, Mask: make([][]bool, height)}
	for y := range out.Mask {
		out.Mask[y] = make([]bool, width)
	}
	if width < 3 || height < 3 {
		return out
	}

	gray := make([][]float64, height)
	for y := 0; y < height; y++ {
		gray[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			rf := float64(r>>8) / 255.0
			gf := float64(g>>8) / 255.0
			bf := float64(b>>8) / 255.0
			gray[y][x] = 0.299*rf + 0.587*gf + 0.114*bf
		}
	}

	blurred := gaussianBlur5(gray, width, height)

	sobelX := [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY := [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

	magnitude := make([][]float64, height)
	direction := make([][]float64, height)
	for y := 0; y < height; y++ {
		magnitude[y] = make([]float64, width)
		direction[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clampInt(y+ky, 0, height-1)
					px := clampInt(x+kx, 0, width-1)
					gx += blurred[py][px] * sobelX[ky+1][kx+1]
					gy += blurred[py][px] * sobelY[ky+1][kx+1]
				}
			}
			magnitude[y][x] = math.Sqrt(gx*gx + gy*gy)
			direction[y][x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression thins the response to local maxima along
	// the gradient direction.
	suppressed := make([][]float64, height)
	for y := 0; y < height; y++ {
		suppressed[y] = make([]float64, width)
		for x := 1; x < width-1; x++ {
			if y == 0 || y == height-1 {
				continue
			}

			angle := direction[y][x]
			mag := magnitude[y][x]

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1, n2 = magnitude[y][x-1], magnitude[y][x+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1, n2 = magnitude[y-1][x+1], magnitude[y+1][x-1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1, n2 = magnitude[y-1][x], magnitude[y+1][x]
			default:
				n1, n2 = magnitude[y-1][x-1], magnitude[y+1][x+1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[y][x] = mag
			}
		}
	}

	lowThresh := float64(low) / 255.0
	highThresh := float64(high) / 255.0

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			val := suppressed[y][x]
			if val >= highThresh {
				out.Mask[y][x] = true
				continue
			}
			if val < lowThresh {
				continue
			}
			// Weak edge: kept only when touching a strong edge.
			for ky := -1; ky <= 1 && !out.Mask[y][x]; ky++ {
				for kx := -1; kx <= 1; kx++ {
					py := clampInt(y+ky, 0, height-1)
					px := clampInt(x+kx, 0, width-1)
					if suppressed[py][px] >= highThresh {
						out.Mask[y][x] = true
						break
					}
				}
			}
		}
	}

	return out
}

// Density returns the fraction of set pixels in the mask.
func (b *Binary) Density() float64 {
	total := b.Width * b.Height
	if total == 0 {
		return 0
	}
	count := 0
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Mask[y][x] {
				count++
			}
		}
	}
	return float64(count) / float64(total)
}

// RegionVariance computes the variance of the mask values (scaled 0/255)
// inside the region, in mask coordinates. Returns false when the region
// holds fewer than two pixels.
func (b *Binary) RegionVariance(region image.Rectangle) (float64, bool) {
	region = region.Intersect(image.Rect(0, 0, b.Width, b.Height))
	n := region.Dx() * region.Dy()
	if n < 2 {
		return 0, false
	}

	count := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if b.Mask[y][x] {
				count++
			}
		}
	}

	// Variance of a two-valued {0,255} population.
	p := float64(count) / float64(n)
	return p * (1 - p) * 255 * 255 * float64(n) / float64(n-1), true
}

// gaussianBlur5 applies a 5x5 Gaussian kernel (sigma ~ 1.4), replicating
// border pixels.
func gaussianBlur5(img [][]float64, width, height int) [][]float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273.0

	out := make([][]float64, height)
	for y := 0; y < height; y++ {
		out[y] = make([]float64, width)
		for x := 0; x < width; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				for kx := -2; kx <= 2; kx++ {
					py := clampInt(y+ky, 0, height-1)
					px := clampInt(x+kx, 0, width-1)
					sum += img[py][px] * kernel[ky+2][kx+2]
				}
			}
			out[y][x] = sum / kernelSum
		}
	}
	return out
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

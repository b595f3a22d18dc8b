package imaging

import (
	"image"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorFrequency is one entry of a crop's color palette.
type ColorFrequency struct {
	Hex      string  `json:"hex"`      // "#RRGGBB", quantized
	Fraction float64 `json:"fraction"` // share of pixels, 0-1
}

// DominantColors extracts the count most common colors of the image,
// sorted by frequency descending.
//
// Colors are quantized to 16-unit buckets per channel before counting, so
// printing noise and scanner grain collapse into one palette entry. The
// reported hex value is the bucket's lower corner. Fewer than count
// entries come back when the quantized image holds fewer distinct colors.
func DominantColors(img image.Image, count int) []ColorFrequency {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 || count <= 0 {
		return nil
	}

	type rgb struct{ r, g, b uint8 }
	buckets := make(map[rgb]int)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			q := rgb{
				r: uint8(r>>8) / 16 * 16,
				g: uint8(g>>8) / 16 * 16,
				b: uint8(b>>8) / 16 * 16,
			}
			buckets[q]++
		}
	}

	palette := make([]ColorFrequency, 0, len(buckets))
	for q, n := range buckets {
		c := colorful.Color{
			R: float64(q.r) / 255,
			G: float64(q.g) / 255,
			B: float64(q.b) / 255,
		}
		palette = append(palette, ColorFrequency{
			Hex:      c.Hex(),
			Fraction: float64(n) / float64(total),
		})
	}

	sort.Slice(palette, func(i, j int) bool {
		if palette[i].Fraction != palette[j].Fraction {
			return palette[i].Fraction > palette[j].Fraction
		}
		return palette[i].Hex < palette[j].Hex
	})

	if len(palette) > count {
		palette = palette[:count]
	}
	return palette
}

package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform mapping source-image coordinates
// to destination coordinates. Stored row-major with h[8] fixed at 1.
type Homography struct {
	h [9]float64
}

// PerspectiveTransform computes the homography mapping the four source
// corners to the four destination corners.
//
// Both slices must hold exactly four points in corresponding order
// (use OrderQuad first). The transform is found by solving the standard
// 8x8 linear system for the direct linear transformation with h33 = 1.
//
// Returns an error when either input is not a quadrilateral or the system
// is singular (degenerate corner configuration, e.g. three collinear points).
func PerspectiveTransform(src, dst Polygon) (*Homography, error) {
	if len(src) != 4 || len(dst) != 4 {
		return nil, fmt.Errorf("perspective transform requires 4 corners, got %d -> %d", len(src), len(dst))
	}

	// Each correspondence contributes two rows:
	//   [x y 1 0 0 0 -x'x -x'y] h = x'
	//   [0 0 0 x y 1 -y'x -y'y] h = y'
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := float64(src[i].X), float64(src[i].Y)
		u, v := float64(dst[i].X), float64(dst[i].Y)

		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("degenerate quadrilateral: %w", err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h.h[i] = sol.AtVec(i)
	}
	h.h[8] = 1
	return &h, nil
}

// Apply maps the point (x, y) through the homography.
func (h *Homography) Apply(x, y float64) (float64, float64) {
	w := h.h[6]*x + h.h[7]*y + h.h[8]
	if math.Abs(w) < 1e-12 {
		w = 1e-12
	}
	u := (h.h[0]*x + h.h[1]*y + h.h[2]) / w
	v := (h.h[3]*x + h.h[4]*y + h.h[5]) / w
	return u, v
}

// Invert returns the inverse homography, used to sample source pixels when
// rendering the rectified destination image.
func (h *Homography) Invert() (*Homography, error) {
	m := mat.NewDense(3, 3, []float64{
		h.h[0], h.h[1], h.h[2],
		h.h[3], h.h[4], h.h[5],
		h.h[6], h.h[7], h.h[8],
	})

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("homography not invertible: %w", err)
	}

	scale := inv.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		scale = 1e-12
	}

	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.h[3*r+c] = inv.At(r, c) / scale
		}
	}
	return &out, nil
}

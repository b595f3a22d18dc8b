package detection

import (
	"math"

	"github.com/alainbuyze/stampscan/internal/geometry"
	"github.com/alainbuyze/stampscan/internal/imaging"
)

// minContourPixels discards tiny connected components as noise before any
// boundary tracing happens.
const minContourPixels = 10

// outerContours extracts the ordered outer boundary of every foreground
// component in the binary mask.
//
// Components are found with iterative flood fill (8-connected), then each
// component's outer boundary is traced with Moore-neighbor tracing so the
// result is an ordered closed path suitable for polygon approximation.
// Interior holes are ignored; only the outermost boundary of each
// component is returned.
func outerContours(bin *imaging.Binary) []geometry.Polygon {
	width, height := bin.Width, bin.Height

	labels := make([][]int, height)
	for y := range labels {
		labels[y] = make([]int, width)
	}

	var contours []geometry.Polygon
	next := 1

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !bin.Mask[y][x] || labels[y][x] != 0 {
				continue
			}

			size := floodLabel(bin.Mask, labels, x, y, width, height, next)
			if size >= minContourPixels {
				contour := traceBoundary(labels, x, y, width, height, next)
				if len(contour) >= 3 {
					contours = append(contours, contour)
				}
			}
			next++
		}
	}

	return contours
}

// floodLabel marks the connected component containing (startX, startY) with
// label and returns its pixel count. Stack-based, not recursive, so large
// components cannot overflow the call stack.
func floodLabel(mask [][]bool, labels [][]int, startX, startY, width, height, label int) int {
	stack := []geometry.Point{{X: startX, Y: startY}}
	size := 0

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if labels[p.Y][p.X] != 0 || !mask[p.Y][p.X] {
			continue
		}

		labels[p.Y][p.X] = label
		size++

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, geometry.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}

	return size
}

// mooreOffsets walks the 8-neighborhood clockwise starting from the west
// neighbor.
var mooreOffsets = [8]geometry.Point{
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
}

// traceBoundary walks the outer boundary of the labeled component with
// Moore-neighbor tracing, starting from the component's first pixel in
// scan order (which is guaranteed to be on the boundary). Termination uses
// Jacob's stopping criterion: the walk ends when the start pixel is
// re-entered from the same direction it was first entered.
func traceBoundary(labels [][]int, startX, startY, width, height, label int) geometry.Polygon {
	inComponent := func(p geometry.Point) bool {
		return p.X >= 0 && p.X < width && p.Y >= 0 && p.Y < height && labels[p.Y][p.X] == label
	}

	start := geometry.Point{X: startX, Y: startY}

	// Scan order reaches the component from the west, so the initial
	// backtrack direction is west.
	cur := start
	dir := 0
	var contour geometry.Polygon
	contour = append(contour, cur)

	startDir := -1
	// Hard cap prevents spinning on pathological masks.
	maxSteps := 4 * (width*height + 1)

	for steps := 0; steps < maxSteps; steps++ {
		found := false
		// Search clockwise beginning just past the backtrack direction.
		for i := 1; i <= 8; i++ {
			d := (dir + i) % 8
			p := geometry.Point{X: cur.X + mooreOffsets[d].X, Y: cur.Y + mooreOffsets[d].Y}
			if inComponent(p) {
				if p == start {
					if startDir == -1 {
						startDir = d
					} else if d == startDir {
						return contour
					}
				}
				cur = p
				// New backtrack direction points at the previous pixel.
				dir = (d + 4) % 8
				if p != start {
					contour = append(contour, cur)
				}
				found = true
				break
			}
		}
		if !found {
			// Isolated pixel.
			return contour
		}
	}

	return contour
}

// approxPolygon simplifies a closed contour with the Ramer-Douglas-Peucker
// algorithm using a tolerance proportional to the contour perimeter.
//
// Closed curves are handled by splitting at the vertex farthest from the
// first vertex, simplifying both halves independently, and stitching the
// results back together.
func approxPolygon(contour geometry.Polygon, epsilonFraction float64) geometry.Polygon {
	if len(contour) < 3 {
		return contour
	}

	epsilon := epsilonFraction * contour.Perimeter()
	if epsilon <= 0 {
		return contour
	}

	// Find the vertex farthest from the starting vertex to split the loop.
	far := 0
	maxDist := -1.0
	for i := range contour {
		d := pointDistSq(contour[0], contour[i])
		if d > maxDist {
			maxDist = d
			far = i
		}
	}
	if far == 0 {
		return contour
	}

	first := douglasPeucker(contour[:far+1], epsilon)
	second := append(geometry.Polygon{}, contour[far:]...)
	second = append(second, contour[0])
	second = douglasPeucker(second, epsilon)

	// Stitch, dropping duplicated endpoints.
	out := append(geometry.Polygon{}, first...)
	if len(second) > 2 {
		out = append(out, second[1:len(second)-1]...)
	}
	return out
}

// douglasPeucker simplifies an open polyline, keeping both endpoints.
func douglasPeucker(points geometry.Polygon, epsilon float64) geometry.Polygon {
	if len(points) < 3 {
		return points
	}

	maxDist := 0.0
	index := 0
	last := len(points) - 1
	for i := 1; i < last; i++ {
		d := perpendicularDistance(points[i], points[0], points[last])
		if d > maxDist {
			maxDist = d
			index = i
		}
	}

	if maxDist <= epsilon {
		return geometry.Polygon{points[0], points[last]}
	}

	left := douglasPeucker(points[:index+1], epsilon)
	right := douglasPeucker(points[index:], epsilon)

	out := make(geometry.Polygon, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	out = append(out, right...)
	return out
}

// perpendicularDistance is the distance from p to the line through a and b.
func perpendicularDistance(p, a, b geometry.Point) float64 {
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)

	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(float64(p.X-a.X), float64(p.Y-a.Y))
	}

	return math.Abs(dy*float64(p.X)-dx*float64(p.Y)+float64(b.X*a.Y)-float64(b.Y*a.X)) / length
}

func pointDistSq(a, b geometry.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}

package geometry

import (
	"image"
	"math"
	"sort"
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Polygon is an ordered list of vertices in source-image coordinates.
type Polygon []Point

// Area returns the polygon's area in square pixels using the shoelace formula.
//
// The result is always non-negative regardless of winding order.
// Polygons with fewer than 3 vertices have zero area.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	sum := 0.0
	for i := range p {
		j := (i + 1) % len(p)
		sum += float64(p[i].X*p[j].Y - p[j].X*p[i].Y)
	}
	return math.Abs(sum) / 2
}

// Perimeter returns the total edge length of the closed polygon.
func (p Polygon) Perimeter() float64 {
	if len(p) < 2 {
		return 0
	}
	total := 0.0
	for i := range p {
		j := (i + 1) % len(p)
		dx := float64(p[j].X - p[i].X)
		dy := float64(p[j].Y - p[i].Y)
		total += math.Hypot(dx, dy)
	}
	return total
}

// BoundingBox returns the axis-aligned bounding rectangle of the polygon.
// An empty polygon yields the zero rectangle.
func (p Polygon) BoundingBox() image.Rectangle {
	if len(p) == 0 {
		return image.Rectangle{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := p[0].X, p[0].Y
	for _, pt := range p[1:] {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.X > maxX {
			maxX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// IsConvex returns true if the polygon vertices form a convex polygon.
// The polygon is assumed to be simple (non-self-intersecting).
func (p Polygon) IsConvex() bool {
	if len(p) < 3 {
		return false
	}

	n := len(p)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(p[i], p[(i+1)%n], p[(i+2)%n])
		if cross != 0 {
			currentSign := 1
			if cross < 0 {
				currentSign = -1
			}
			if sign == 0 {
				sign = currentSign
			} else if currentSign != sign {
				return false
			}
		}
	}

	return true
}

// Contains reports whether the point lies inside the polygon, using the
// ray casting algorithm. Points exactly on the boundary may resolve to
// either side.
func (p Polygon) Contains(pt Point) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := float64(p[i].X), float64(p[i].Y)
		xj, yj := float64(p[j].X), float64(p[j].Y)
		px, py := float64(pt.X), float64(pt.Y)
		if (yi > py) != (yj > py) &&
			px < (xj-xi)*(py-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// ContainsPolygon reports whether every vertex of other lies inside p's
// bounding box and polygon interior. Used to suppress nested detections.
func (p Polygon) ContainsPolygon(other Polygon) bool {
	if len(p) < 3 || len(other) == 0 {
		return false
	}
	for _, pt := range other {
		if !p.Contains(pt) {
			return false
		}
	}
	return true
}

// OrderQuad orders the four vertices of a quadrilateral as
// top-left, top-right, bottom-right, bottom-left.
//
// The input must contain exactly four points; any other length is returned
// unchanged. Ordering is required before computing a perspective transform
// so source and destination corners correspond.
func OrderQuad(quad Polygon) Polygon {
	if len(quad) != 4 {
		return quad
	}

	pts := make(Polygon, 4)
	copy(pts, quad)

	// Split into top and bottom pairs by y-coordinate.
	sort.Slice(pts, func(i, j int) bool { return pts[i].Y < pts[j].Y })
	top := Polygon{pts[0], pts[1]}
	bottom := Polygon{pts[2], pts[3]}

	if top[0].X > top[1].X {
		top[0], top[1] = top[1], top[0]
	}
	if bottom[0].X < bottom[1].X {
		bottom[0], bottom[1] = bottom[1], bottom[0]
	}

	return Polygon{top[0], top[1], bottom[0], bottom[1]}
}

// crossProduct computes the z-component of the cross product of vectors
// (b-a) and (c-b). Positive for a counter-clockwise turn.
func crossProduct(a, b, c Point) int {
	return (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
}

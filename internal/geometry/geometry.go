package geometry

import "math"

// epsilon keeps the ray-casting divisor away from zero for horizontal edges.
const epsilon = 1e-9

// Point is a 2D coordinate, normalized to [0,1] unless scaled.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a directed line segment from A to B.
type Segment struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

// PointInPolygon reports whether p lies inside polygon using ray casting.
// Polygons with fewer than 3 vertices contain no points.
func PointInPolygon(p Point, polygon []Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := polygon[i], polygon[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y+epsilon) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// SegmentCrossesLine reports whether the movement p1->p2 intersects line.
// Parallel and collinear segments never cross.
func SegmentCrossesLine(p1, p2 Point, line Segment) bool {
	a, b := line.A, line.B
	denom := (p2.X-p1.X)*(b.Y-a.Y) - (p2.Y-p1.Y)*(b.X-a.X)
	if math.Abs(denom) < epsilon {
		return false
	}

	// p1 + t(p2-p1) = a + u(b-a)
	t := ((a.X-p1.X)*(b.Y-a.Y) - (a.Y-p1.Y)*(b.X-a.X)) / denom
	u := ((a.X-p1.X)*(p2.Y-p1.Y) - (a.Y-p1.Y)*(p2.X-p1.X)) / denom
	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}

// PointSideOfLine returns the sign of the cross product (B-A)x(P-A):
// +1 left of the line, -1 right of it, 0 on it.
func PointSideOfLine(p Point, line Segment) int {
	cross := (line.B.X-line.A.X)*(p.Y-line.A.Y) - (line.B.Y-line.A.Y)*(p.X-line.A.X)
	switch {
	case cross > epsilon:
		return 1
	case cross < -epsilon:
		return -1
	default:
		return 0
	}
}

// ScalePolygon maps a normalized polygon into a width x height space.
func ScalePolygon(polygon []Point, width, height float64) []Point {
	scaled := make([]Point, len(polygon))
	for i, p := range polygon {
		scaled[i] = Point{X: p.X * width, Y: p.Y * height}
	}
	return scaled
}

// ScaleSegment maps a normalized segment into a width x height space.
func ScaleSegment(s Segment, width, height float64) Segment {
	return Segment{
		A: Point{X: s.A.X * width, Y: s.A.Y * height},
		B: Point{X: s.B.X * width, Y: s.B.Y * height},
	}
}

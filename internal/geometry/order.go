package geometry

import (
	"fmt"
	"math"
)

// InvalidGeometryError reports a point set with the wrong cardinality.
type InvalidGeometryError struct {
	Op   string
	Got  int
	Want int
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry in %s: got %d points, want %d", e.Op, e.Got, e.Want)
}

// OrderCorners arranges exactly four points as top-left, top-right,
// bottom-right, bottom-left. The smallest and largest x+y give the top-left
// and bottom-right corners; the smallest and largest y-x give the top-right
// and bottom-left corners. Ties keep the first occurrence.
func OrderCorners(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, &InvalidGeometryError{Op: "order corners", Got: len(pts), Want: 4}
	}

	minSum, maxSum, minDiff, maxDiff := 0, 0, 0, 0
	for i := 1; i < 4; i++ {
		s, d := pts[i].X+pts[i].Y, pts[i].Y-pts[i].X
		if s < pts[minSum].X+pts[minSum].Y {
			minSum = i
		}
		if s > pts[maxSum].X+pts[maxSum].Y {
			maxSum = i
		}
		if d < pts[minDiff].Y-pts[minDiff].X {
			minDiff = i
		}
		if d > pts[maxDiff].Y-pts[maxDiff].X {
			maxDiff = i
		}
	}

	return Quad{pts[minSum], pts[minDiff], pts[maxSum], pts[maxDiff]}, nil
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Less orders points lexicographically by x, then y.
func Less(a, b Point) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

// Extremes returns the lexicographic minimum and maximum of pts.
// It panics on an empty slice.
func Extremes(pts []Point) (lo, hi Point) {
	lo, hi = pts[0], pts[0]
	for _, p := range pts[1:] {
		if Less(p, lo) {
			lo = p
		}
		if Less(hi, p) {
			hi = p
		}
	}
	return lo, hi
}

package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point represents a 2D pixel coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Round returns the nearest integer pixel.
func (p Point) Round() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// TargetPoint is a point that may belong to one of several physical
// calibration targets visible in the same frame. Tagged is false for
// single-target frames, in which case TargetID carries no meaning.
type TargetPoint struct {
	Point
	TargetID int  `json:"target_id,omitempty"`
	Tagged   bool `json:"tagged"`
}

// Untagged builds a TargetPoint without a target id.
func Untagged(x, y float64) TargetPoint {
	return TargetPoint{Point: Point{X: x, Y: y}}
}

// Tagged builds a TargetPoint carrying the given target id.
func Tagged(x, y float64, id int) TargetPoint {
	return TargetPoint{Point: Point{X: x, Y: y}, TargetID: id, Tagged: true}
}

// ID returns the target id and whether one is present.
func (p TargetPoint) ID() (int, bool) {
	return p.TargetID, p.Tagged
}

// TagAll tags every point with the given id.
func TagAll(pts []Point, id int) []TargetPoint {
	out := make([]TargetPoint, len(pts))
	for i, p := range pts {
		out[i] = TargetPoint{Point: p, TargetID: id, Tagged: true}
	}
	return out
}

// Quad is a quadrilateral in top-left, top-right, bottom-right,
// bottom-left order.
type Quad [4]Point

// Points returns the vertices as a slice.
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// ImagePoints returns integer-rounded vertices.
func (q Quad) ImagePoints() []image.Point {
	out := make([]image.Point, 4)
	for i, p := range q {
		out[i] = p.Round()
	}
	return out
}

// Bounds returns the axis-aligned bounding rectangle of the quad.
func (q Quad) Bounds() Box {
	b := Box{X1: q[0].X, Y1: q[0].Y, X2: q[0].X, Y2: q[0].Y}
	for _, p := range q[1:] {
		b.X1 = math.Min(b.X1, p.X)
		b.Y1 = math.Min(b.Y1, p.Y)
		b.X2 = math.Max(b.X2, p.X)
		b.Y2 = math.Max(b.Y2, p.Y)
	}
	return b
}

// Box is an axis-aligned rectangle in pixel space, as produced by the
// bounding-box detector.
type Box struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// Width returns the box width.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Quad converts the box into its canonical quadrilateral.
func (b Box) Quad() Quad {
	return Quad{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
	}
}

// Clamp restricts the box to a w×h canvas.
func (b Box) Clamp(w, h int) Box {
	c := b
	c.X1 = math.Max(0, math.Min(c.X1, float64(w)))
	c.X2 = math.Max(0, math.Min(c.X2, float64(w)))
	c.Y1 = math.Max(0, math.Min(c.Y1, float64(h)))
	c.Y2 = math.Max(0, math.Min(c.Y2, float64(h)))
	return c
}

// IoU computes the intersection over union of two boxes.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

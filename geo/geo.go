package geo

import (
	"fmt"
	"math"
)

// Point is a position in page-local units.
type Point struct{ X, Y float64 }

// Rect is an axis-aligned rectangle in page-local units.
// A normalized Rect has X0 <= X1 and Y0 <= Y1.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) String() string {
	return fmt.Sprintf("[%g %g %g %g]", r.X0, r.Y0, r.X1, r.Y1)
}

// Normalize returns r with its corners ordered.
func (r Rect) Normalize() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether r encloses no area.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Contains reports whether the point (x, y) lies within r.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Union returns the smallest rectangle covering both r and o.
// An empty rectangle does not contribute.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Intersect returns the overlap of r and o, empty if they are disjoint.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// AlmostEqual reports whether r and o coincide within tol on every edge.
func (r Rect) AlmostEqual(o Rect, tol float64) bool {
	return math.Abs(r.X0-o.X0) <= tol &&
		math.Abs(r.Y0-o.Y0) <= tol &&
		math.Abs(r.X1-o.X1) <= tol &&
		math.Abs(r.Y1-o.Y1) <= tol
}

// Matrix is a PDF-style affine transform [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Multiply returns m applied before o (m x o in PDF operand order).
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Transform maps p through m.
func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// TransformRect maps all four corners of r and returns their bounding box,
// so rotated transforms still yield an axis-aligned result.
func (m Matrix) TransformRect(r Rect) Rect {
	p0 := m.Transform(Point{r.X0, r.Y0})
	p1 := m.Transform(Point{r.X1, r.Y0})
	p2 := m.Transform(Point{r.X0, r.Y1})
	p3 := m.Transform(Point{r.X1, r.Y1})
	return Rect{
		X0: math.Min(math.Min(p0.X, p1.X), math.Min(p2.X, p3.X)),
		Y0: math.Min(math.Min(p0.Y, p1.Y), math.Min(p2.Y, p3.Y)),
		X1: math.Max(math.Max(p0.X, p1.X), math.Max(p2.X, p3.X)),
		Y1: math.Max(math.Max(p0.Y, p1.Y), math.Max(p2.Y, p3.Y)),
	}
}

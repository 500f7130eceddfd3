package geo

import (
	"math"
	"testing"
)

func TestRectNormalize(t *testing.T) {
	r := Rect{X0: 10, Y0: 20, X1: 4, Y1: 2}.Normalize()
	want := Rect{X0: 4, Y0: 2, X1: 10, Y1: 20}
	if r != want {
		t.Fatalf("Normalize = %v, want %v", r, want)
	}
}

func TestRectUnionIntersect(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := Rect{X0: 5, Y0: 5, X1: 20, Y1: 8}

	if got, want := a.Union(b), (Rect{X0: 0, Y0: 0, X1: 20, Y1: 10}); got != want {
		t.Errorf("Union = %v, want %v", got, want)
	}
	if got, want := a.Intersect(b), (Rect{X0: 5, Y0: 5, X1: 10, Y1: 8}); got != want {
		t.Errorf("Intersect = %v, want %v", got, want)
	}
	if got := a.Intersect(Rect{X0: 50, Y0: 50, X1: 60, Y1: 60}); !got.Empty() {
		t.Errorf("disjoint Intersect = %v, want empty", got)
	}
	// Union with an empty rect must not drag in the zero origin.
	if got := b.Union(Rect{}); got != b {
		t.Errorf("Union with empty = %v, want %v", got, b)
	}
}

func TestMatrixTransform(t *testing.T) {
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{X: 1, Y: 1})
	if p.X != 12 || p.Y != 23 {
		t.Fatalf("Transform = %v, want {12 23}", p)
	}
}

func TestTransformRectRotated(t *testing.T) {
	// 90-degree rotation: [0 1 -1 0 0 0].
	m := Matrix{0, 1, -1, 0, 0, 0}
	r := m.TransformRect(Rect{X0: 0, Y0: 0, X1: 4, Y1: 2})
	want := Rect{X0: -2, Y0: 0, X1: 0, Y1: 4}
	if !r.AlmostEqual(want, 1e-9) {
		t.Fatalf("TransformRect = %v, want %v", r, want)
	}
}

func TestRectAlmostEqual(t *testing.T) {
	a := Rect{X0: 1, Y0: 1, X1: 2, Y1: 2}
	b := Rect{X0: 1 + 1e-7, Y0: 1, X1: 2, Y1: 2 - 1e-7}
	if !a.AlmostEqual(b, 1e-6) {
		t.Error("expected rects within tolerance")
	}
	if a.AlmostEqual(b, 1e-9) {
		t.Error("expected rects outside tight tolerance")
	}
	if math.Abs(a.Width()-1) > 1e-12 || math.Abs(a.Height()-1) > 1e-12 {
		t.Error("unexpected width/height")
	}
}

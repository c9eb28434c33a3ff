package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const eps = 1e-9

func TestHomogeneousRoundTrip(t *testing.T) {
	p := Point3{X: 1.5, Y: -2.25, Z: 9.0}
	got := FromHomogeneous(ToHomogeneous(p))
	if math.Abs(got.X-p.X) > eps || math.Abs(got.Y-p.Y) > eps || math.Abs(got.Z-p.Z) > eps {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestProjectBackProjectRoundTrip(t *testing.T) {
	cam := Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240}
	p := Point3{X: 2, Y: -1, Z: 10}
	uv := Project(cam, p)
	back := BackProject(cam, uv)
	// back-projection recovers the point up to a positive scalar (here z=1 vs z=10)
	scale := p.Z / back.Z
	scaled := back.Scale(scale)
	if math.Abs(scaled.X-p.X) > 1e-6 || math.Abs(scaled.Y-p.Y) > 1e-6 {
		t.Errorf("project/back_project mismatch: got %+v want %+v (scale %f)", scaled, p, scale)
	}
}

func TestTransformInverseIdentity(t *testing.T) {
	rot := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	tr := NewTransform(rot, Point3{X: 3, Y: 4, Z: 5})
	inv := tr.Inverse()
	composed := inv.Compose(tr)
	p := Point3{X: 1, Y: 2, Z: 3}
	got := composed.Apply(p)
	if math.Abs(got.X-p.X) > 1e-9 || math.Abs(got.Y-p.Y) > 1e-9 || math.Abs(got.Z-p.Z) > 1e-9 {
		t.Errorf("inverse*T should be identity, got %+v applied to %+v = %+v", composed, p, got)
	}
}

func TestTriangulateStereoRejectsEpipolarViolation(t *testing.T) {
	cam := StereoCamera{
		Left:       Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		Right:      Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		TLeftRight: NewTransform(identityDense().Slice(0, 3, 0, 3).(*mat.Dense), Point3{X: 0.5}),
	}
	left := Point2{U: 300, V: 200}
	right := Point2{U: 280, V: 205} // |200-205| = 5 > 1px
	_, err := TriangulateStereo(left, right, cam, Identity(), 100)
	if err == nil {
		t.Fatal("expected epipolar violation error")
	}
}

func TestTriangulateStereoRejectsTooFar(t *testing.T) {
	cam := StereoCamera{
		Left:       Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		Right:      Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		TLeftRight: NewTransform(identityDense().Slice(0, 3, 0, 3).(*mat.Dense), Point3{X: 0.5}),
	}
	left := Point2{U: 300.1, V: 200}
	right := Point2{U: 300, V: 200} // tiny disparity -> huge depth
	_, err := TriangulateStereo(left, right, cam, Identity(), 100)
	if err == nil {
		t.Fatal("expected max-range rejection")
	}
}

func TestTriangulateStereoAccepts(t *testing.T) {
	cam := StereoCamera{
		Left:       Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		Right:      Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240},
		TLeftRight: NewTransform(identityDense().Slice(0, 3, 0, 3).(*mat.Dense), Point3{X: 0.5}),
	}
	// z=10 => disparity = fx*baseline/z = 35
	left := Point2{U: 320 + 35, V: 240}
	right := Point2{U: 320, V: 240}
	p, err := TriangulateStereo(left, right, cam, Identity(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p.Z-10) > 1e-6 {
		t.Errorf("expected z=10, got %f", p.Z)
	}
}

func TestConvexHullPolygonIoU(t *testing.T) {
	square := []Point2{{U: 0, V: 0}, {U: 2, V: 0}, {U: 2, V: 2}, {U: 0, V: 2}}
	shifted := []Point2{{U: 1, V: 1}, {U: 3, V: 1}, {U: 3, V: 3}, {U: 1, V: 3}}
	iou := ConvexHullPolygonIoU(square, shifted)
	// intersection is the 1x1 square at (1,1)-(2,2), union = 4+4-1 = 7
	want := 1.0 / 7.0
	if math.Abs(iou-want) > 1e-9 {
		t.Errorf("got iou %f, want %f", iou, want)
	}
}

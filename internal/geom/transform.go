// Package geom implements the geometry primitives of §4.1: homogeneous
// conversions, rigid-transform composition, stereo triangulation,
// projection/back-projection, and mask utilities.
package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point3 is a 3D point. All 3D quantities are right-handed; camera-frame z
// is forward.
type Point3 struct {
	X, Y, Z float64
}

// Point2 is a pixel coordinate.
type Point2 struct {
	U, V float64
}

// Transform is a 4x4 rigid transform T_A_B mapping a point from frame B to
// frame A: p_A = T_A_B * p_B.
type Transform struct {
	m *mat.Dense
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{m: identityDense()}
}

func identityDense() *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// NewTransform builds a Transform from a rotation matrix (row-major, 3x3)
// and a translation vector.
func NewTransform(rot *mat.Dense, trans Point3) Transform {
	d := identityDense()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, rot.At(i, j))
		}
	}
	d.Set(0, 3, trans.X)
	d.Set(1, 3, trans.Y)
	d.Set(2, 3, trans.Z)
	return Transform{m: d}
}

// Raw exposes the underlying 4x4 matrix for callers that need to hand it to
// gocv's Rodrigues/solvePnP-style calls.
func (t Transform) Raw() *mat.Dense { return t.m }

// FromRowMajor4x4 builds a Transform from a flattened row-major 4x4 matrix,
// the wire format an external SLAM/ego-pose producer hands across §6's
// ego-pose queue.
func FromRowMajor4x4(vals [16]float64) Transform {
	return Transform{m: mat.NewDense(4, 4, vals[:])}
}

// Rotation returns the top-left 3x3 rotation block.
func (t Transform) Rotation() *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	r.Copy(t.m.Slice(0, 3, 0, 3))
	return r
}

// Translation returns the rightmost column's top 3 entries.
func (t Transform) Translation() Point3 {
	return Point3{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Compose returns t * other (apply other first, then t).
func (t Transform) Compose(other Transform) Transform {
	var out mat.Dense
	out.Mul(t.m, other.m)
	return Transform{m: &out}
}

// Inverse returns the inverse rigid transform. For a rotation R and
// translation p, the inverse is [R^T, -R^T p].
func (t Transform) Inverse() Transform {
	r := t.Rotation()
	var rt mat.Dense
	rt.CloneFrom(r.T())
	trans := t.Translation()
	tv := mat.NewVecDense(3, []float64{trans.X, trans.Y, trans.Z})
	var negRtT mat.VecDense
	negRtT.MulVec(&rt, tv)
	negRtT.ScaleVec(-1, &negRtT)
	out := identityDense()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, rt.At(i, j))
		}
		out.Set(i, 3, negRtT.AtVec(i))
	}
	return Transform{m: out}
}

// Apply transforms a point from B to A: p_A = T_A_B * p_B.
func (t Transform) Apply(p Point3) Point3 {
	h := ToHomogeneous(p)
	var out mat.VecDense
	out.MulVec(t.m, h)
	return FromHomogeneous(&out)
}

// ToHomogeneous lifts a 3-vector to a homogeneous 4-vector with w=1.
func ToHomogeneous(p Point3) *mat.VecDense {
	return mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
}

// FromHomogeneous divides a homogeneous 4-vector by its w component. It is
// the inverse of ToHomogeneous on points with w != 0: ToHomogeneous ∘
// FromHomogeneous = identity.
func FromHomogeneous(h *mat.VecDense) Point3 {
	w := h.AtVec(3)
	if w == 0 {
		w = 1
	}
	return Point3{X: h.AtVec(0) / w, Y: h.AtVec(1) / w, Z: h.AtVec(2) / w}
}

// Norm returns the Euclidean norm of p.
func (p Point3) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Sub returns p - q.
func (p Point3) Sub(q Point3) Point3 {
	return Point3{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Add returns p + q.
func (p Point3) Add(q Point3) Point3 {
	return Point3{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Scale returns p scaled by s.
func (p Point3) Scale(s float64) Point3 {
	return Point3{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Package ba implements §4.6's object_bundle_adjustment: a sliding-window
// non-linear least-squares refinement of a track's recent object poses and
// full landmark cloud against fixed ego poses, minimizing reprojection
// error with a Cauchy robust kernel.
//
// No off-the-shelf Go bundle-adjustment or general graph-optimization
// library (the g2o/ceres analogue) appears anywhere in the retrieved pack,
// so this is a hand-rolled Levenberg-Marquardt solver built directly on
// gonum/mat, the linear-algebra library every example repo in the pack that
// touches numerics already depends on.
package ba

import (
	"math"

	"github.com/bamot-go/bamot/internal/geom"
	"gonum.org/v1/gonum/mat"
)

// Observation is one reprojection constraint: a landmark seen from a given
// pose slot, with its 2D (mono) or 3-component (stereo, third component is
// the right-image u coordinate) measurement.
type Observation struct {
	PoseIndex    int // index into the window's Poses slice
	LandmarkID   int // index into the window's Landmarks slice
	U, V         float64
	Stereo       bool
	URight       float64
}

// Window is the optimization problem: a contiguous slice of a track's most
// recent object poses (each composed with its frame's fixed ego pose
// outside this package, so here "pose" already means T_cam_obj) and its
// full landmark set, linked by a set of reprojection observations.
type Window struct {
	Poses        []geom.Transform
	Landmarks    []geom.Point3
	Observations []Observation
	Cam          geom.StereoCamera
}

// Options tunes the optimizer.
type Options struct {
	MaxIterations int
	CauchyScale   float64 // robust-kernel scale, in pixels
	Lambda        float64 // initial LM damping factor
}

// DefaultOptions mirrors typical sliding-window BA tuning: a handful of
// iterations (the window is small, tens of poses/landmarks at most) and a
// 1px Cauchy scale.
func DefaultOptions() Options {
	return Options{MaxIterations: 10, CauchyScale: 1.0, Lambda: 1e-3}
}

// Result holds the refined window; landmark count and identity mapping
// (landmark index -> original LandmarkID) is the caller's responsibility to
// preserve, per §4.6's "landmark ids and identity are preserved" guarantee
// — this package only ever reorders or perturbs the Point values already at
// each index, never adds or removes a landmark slot.
type Result struct {
	Poses     []geom.Transform
	Landmarks []geom.Point3
	FinalCost float64
}

// Optimize runs sliding-window bundle adjustment over w using
// Levenberg-Marquardt with a Cauchy-weighted reprojection cost. Pose[0] of
// the window is held fixed (the anchor into the rest of the unoptimized
// trajectory), matching the original implementation's convention of
// optimizing only poses after the first in a BA window.
func Optimize(w Window, opts Options) Result {
	poses := make([]geom.Transform, len(w.Poses))
	copy(poses, w.Poses)
	landmarks := make([]geom.Point3, len(w.Landmarks))
	copy(landmarks, w.Landmarks)

	if len(w.Observations) == 0 || len(poses) == 0 {
		return Result{Poses: poses, Landmarks: landmarks}
	}

	state := newState(poses, landmarks)
	lambda := opts.Lambda
	cost := evaluateCost(state, w, opts.CauchyScale)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		jac, residuals, weights := buildSystem(state, w, opts.CauchyScale)
		delta, ok := solveLM(jac, residuals, weights, lambda)
		if !ok {
			break
		}
		candidate := state.apply(delta)
		candidateCost := evaluateCost(candidate, w, opts.CauchyScale)
		if candidateCost < cost {
			state = candidate
			cost = candidateCost
			lambda = math.Max(lambda/10, 1e-10)
		} else {
			lambda = math.Min(lambda*10, 1e10)
		}
	}

	return Result{Poses: state.poses, Landmarks: state.landmarks, FinalCost: cost}
}

// state is the free-parameter vector: a small rotation+translation delta
// per non-anchor pose (6 DOF each) and an XYZ offset per landmark (3 DOF
// each), following the standard BA parameterization of perturbing a
// reference pose/point rather than re-deriving a full rotation each step.
type state struct {
	poses     []geom.Transform
	landmarks []geom.Point3
}

func newState(poses []geom.Transform, landmarks []geom.Point3) state {
	return state{poses: poses, landmarks: landmarks}
}

func (s state) dims() int {
	poseDims := 0
	if len(s.poses) > 1 {
		poseDims = (len(s.poses) - 1) * 6
	}
	return poseDims + len(s.landmarks)*3
}

// apply returns a new state perturbed by delta, a dims()-length vector laid
// out as [pose1_rot(3) pose1_trans(3) pose2_rot(3) ... landmark0(3) ...].
func (s state) apply(delta *mat.VecDense) state {
	out := state{
		poses:     make([]geom.Transform, len(s.poses)),
		landmarks: make([]geom.Point3, len(s.landmarks)),
	}
	out.poses[0] = s.poses[0]
	idx := 0
	for i := 1; i < len(s.poses); i++ {
		rx, ry, rz := delta.AtVec(idx), delta.AtVec(idx+1), delta.AtVec(idx+2)
		tx, ty, tz := delta.AtVec(idx+3), delta.AtVec(idx+4), delta.AtVec(idx+5)
		idx += 6
		out.poses[i] = perturbPose(s.poses[i], rx, ry, rz, tx, ty, tz)
	}
	for i, lm := range s.landmarks {
		dx, dy, dz := delta.AtVec(idx), delta.AtVec(idx+1), delta.AtVec(idx+2)
		idx += 3
		out.landmarks[i] = lm.Add(geom.Point3{X: dx, Y: dy, Z: dz})
	}
	return out
}

// perturbPose applies a small-angle rotation (rx,ry,rz as a skew-symmetric
// generator, first-order approximation valid for the small steps LM takes)
// and translation offset to a pose.
func perturbPose(t geom.Transform, rx, ry, rz, tx, ty, tz float64) geom.Transform {
	rot := t.Rotation()
	skew := mat.NewDense(3, 3, []float64{
		0, -rz, ry,
		rz, 0, -rx,
		-ry, rx, 0,
	})
	var deltaRot mat.Dense
	deltaRot.Mul(skew, rot)
	var newRot mat.Dense
	newRot.Add(rot, &deltaRot)
	orthonormalize(&newRot)

	trans := t.Translation()
	newTrans := geom.Point3{X: trans.X + tx, Y: trans.Y + ty, Z: trans.Z + tz}
	return geom.NewTransform(&newRot, newTrans)
}

// orthonormalize re-orthogonalizes a near-rotation matrix via Gram-Schmidt,
// keeping the first-order rotation update on SO(3) after repeated small
// perturbations.
func orthonormalize(m *mat.Dense) {
	col := func(j int) mat.Vector { return m.ColView(j) }
	normalize := func(v *mat.VecDense) {
		n := mat.Norm(v, 2)
		if n > 1e-12 {
			v.ScaleVec(1/n, v)
		}
	}
	c0 := mat.VecDenseCopyOf(col(0))
	normalize(c0)
	c1 := mat.VecDenseCopyOf(col(1))
	proj := mat.Dot(c0, c1)
	var tmp mat.VecDense
	tmp.ScaleVec(proj, c0)
	c1.SubVec(c1, &tmp)
	normalize(c1)
	var c2 mat.VecDense
	crossProduct(&c2, c0, c1)
	for i := 0; i < 3; i++ {
		m.Set(i, 0, c0.AtVec(i))
		m.Set(i, 1, c1.AtVec(i))
		m.Set(i, 2, c2.AtVec(i))
	}
}

func crossProduct(dst *mat.VecDense, a, b *mat.VecDense) {
	dst.Reset()
	*dst = *mat.NewVecDense(3, []float64{
		a.AtVec(1)*b.AtVec(2) - a.AtVec(2)*b.AtVec(1),
		a.AtVec(2)*b.AtVec(0) - a.AtVec(0)*b.AtVec(2),
		a.AtVec(0)*b.AtVec(1) - a.AtVec(1)*b.AtVec(0),
	})
}

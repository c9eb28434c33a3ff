package ba

import (
	"math"

	"github.com/bamot-go/bamot/internal/geom"
	"gonum.org/v1/gonum/mat"
)

// cauchyWeight returns the IRLS weight for a Cauchy robust kernel with the
// given residual norm r and scale c: weight = 1 / (1 + (r/c)^2). Squared
// residual weighting this way reproduces the Cauchy loss's reduced
// sensitivity to large reprojection outliers without a full robust solver.
func cauchyWeight(r, c float64) float64 {
	ratio := r / c
	return 1.0 / (1.0 + ratio*ratio)
}

func residualFor(obs Observation, s state, cam geom.StereoCamera) ([]float64, geom.Point3) {
	pose := s.poses[obs.PoseIndex]
	lm := s.landmarks[obs.LandmarkID]
	camPt := pose.Apply(lm)
	if camPt.Z <= 1e-6 {
		if obs.Stereo {
			return []float64{0, 0, 0}, camPt
		}
		return []float64{0, 0}, camPt
	}
	uv := geom.Project(cam.Left, camPt)
	if !obs.Stereo {
		return []float64{uv.U - obs.U, uv.V - obs.V}, camPt
	}
	rightCamPt := cam.TLeftRight.Inverse().Apply(camPt)
	var uRight float64
	if rightCamPt.Z > 1e-6 {
		uRight = cam.Right.Fx*rightCamPt.X/rightCamPt.Z + cam.Right.Cx
	}
	return []float64{uv.U - obs.U, uv.V - obs.V, uRight - obs.URight}, camPt
}

func evaluateCost(s state, w Window, cauchyScale float64) float64 {
	total := 0.0
	for _, obs := range w.Observations {
		res, _ := residualFor(obs, s, w.Cam)
		norm := 0.0
		for _, r := range res {
			norm += r * r
		}
		norm = math.Sqrt(norm)
		weight := cauchyWeight(norm, cauchyScale)
		total += weight * norm * norm
	}
	return total
}

// buildSystem assembles the normal-equation Jacobian (numerically, via
// forward differences — the residual function's dependence on the
// small-angle pose parameterization makes an analytic Jacobian fiddly to
// keep correct, and the window sizes here are small enough that finite
// differences are cheap) and the Cauchy IRLS weights.
func buildSystem(s state, w Window, cauchyScale float64) (*mat.Dense, *mat.VecDense, []float64) {
	dims := s.dims()
	numResiduals := 0
	for _, obs := range w.Observations {
		d := 2
		if obs.Stereo {
			d = 3
		}
		numResiduals += d
	}

	jac := mat.NewDense(numResiduals, dims, nil)
	residuals := mat.NewVecDense(numResiduals, nil)
	weights := make([]float64, numResiduals)

	baseline := make([]float64, numResiduals)
	row := 0
	for _, obs := range w.Observations {
		res, _ := residualFor(obs, s, w.Cam)
		for _, r := range res {
			baseline[row] = r
			row++
		}
	}

	const h = 1e-5
	for p := 0; p < dims; p++ {
		pv := mat.NewVecDense(dims, nil)
		pv.SetVec(p, h)
		candidate := s.apply(pv)

		row = 0
		for _, obs := range w.Observations {
			res, _ := residualFor(obs, candidate, w.Cam)
			for _, r := range res {
				jac.Set(row, p, (r-baseline[row])/h)
				row++
			}
		}
	}

	row = 0
	for _, obs := range w.Observations {
		res, _ := residualFor(obs, s, w.Cam)
		norm := 0.0
		for _, r := range res {
			norm += r * r
		}
		norm = math.Sqrt(norm)
		weight := cauchyWeight(norm, cauchyScale)
		for _, r := range res {
			residuals.SetVec(row, r)
			weights[row] = weight
			row++
		}
	}

	return jac, residuals, weights
}

// solveLM solves the damped, weighted normal equations
// (J^T W J + lambda*diag(J^T W J)) delta = -J^T W r for delta.
func solveLM(jac *mat.Dense, residuals *mat.VecDense, weights []float64, lambda float64) (*mat.VecDense, bool) {
	rows, cols := jac.Dims()
	if rows == 0 || cols == 0 {
		return nil, false
	}
	w := mat.NewDiagDense(rows, weights)

	var jtw mat.Dense
	jtw.Mul(jac.T(), w)
	var jtwj mat.Dense
	jtwj.Mul(&jtw, jac)

	for i := 0; i < cols; i++ {
		jtwj.Set(i, i, jtwj.At(i, i)*(1+lambda))
	}

	var jtwr mat.VecDense
	jtwr.MulVec(&jtw, residuals)
	jtwr.ScaleVec(-1, &jtwr)

	var delta mat.VecDense
	if err := delta.SolveVec(&jtwj, &jtwr); err != nil {
		return nil, false
	}
	return &delta, true
}

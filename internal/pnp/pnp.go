// Package pnp implements §4.3's localize_object: recovering a track's
// camera-frame pose from 2D-3D correspondences between newly detected
// features and the track's existing object-frame landmark cloud.
//
// gocv ships SolvePnPRansac, but its exact Go binding signature is not
// exercised anywhere in the retrieved pack, so rather than guess at an
// unverified API this package hand-rolls the RANSAC loop around the more
// widely used gocv.SolvePnP, giving exact control over the iteration count
// and reprojection threshold §4.3 specifies (N_ITER=400, 2px) instead of
// whatever defaults a ransac wrapper would pick.
package pnp

import (
	"math"
	"math/rand"

	"github.com/bamot-go/bamot/internal/geom"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrInsufficientCorrespondences is returned when fewer than 4 2D-3D pairs
// are available, the minimum SolvePnP needs.
var ErrInsufficientCorrespondences = errors.New("pnp: fewer than 4 correspondences")

// ErrLowInlierRatio is returned when the best RANSAC hypothesis found does
// not clear the minimum inlier ratio, meaning localization failed for this
// frame and the caller should fall back to motion prediction.
var ErrLowInlierRatio = errors.New("pnp: inlier ratio below threshold")

// Options configures the RANSAC search, defaulting to §4.3's constants.
type Options struct {
	Iterations          int
	ReprojectionErrorPx float64
	MinInlierRatio      float64
	SampleSize          int
}

// DefaultOptions returns §4.3's literal constants: 400 iterations, 2px
// reprojection threshold, inlier ratio > 0.25, minimal 4-point samples.
func DefaultOptions() Options {
	return Options{
		Iterations:          400,
		ReprojectionErrorPx: 2.0,
		MinInlierRatio:      0.25,
		SampleSize:          4,
	}
}

// Correspondence pairs one object-frame 3D landmark with the 2D feature
// believed to be its reprojection in the current frame.
type Correspondence struct {
	Object geom.Point3
	Image  geom.Point2
}

// Result is the pose estimate PnP recovered plus the diagnostics §4.10
// needs to decide whether to trust it.
type Result struct {
	Pose        geom.Transform
	InlierRatio float64
	Inliers     []int // indices into the input Correspondence slice
}

// Localize estimates T_cam_obj from 2D-3D correspondences using a
// hand-rolled RANSAC loop around gocv.SolvePnP, mirroring
// `_localize_object`'s `cv2.solvePnPRansac` call with an identical
// iteration count and reprojection threshold.
func Localize(correspondences []Correspondence, cam geom.Intrinsics, opts Options, rng *rand.Rand) (Result, error) {
	if len(correspondences) < 4 {
		return Result{}, ErrInsufficientCorrespondences
	}
	if opts.SampleSize < 4 {
		opts.SampleSize = 4
	}

	cameraMatrix := intrinsicsToMat(cam)
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV64F)
	defer distCoeffs.Close()

	best := Result{}
	bestInlierCount := -1

	n := len(correspondences)
	sampleSize := opts.SampleSize
	if sampleSize > n {
		sampleSize = n
	}

	for iter := 0; iter < opts.Iterations; iter++ {
		sampleIdx := sampleIndices(rng, n, sampleSize)
		pose, ok := solveForSample(correspondences, sampleIdx, cameraMatrix, distCoeffs)
		if !ok {
			continue
		}
		inliers := inlierIndices(correspondences, pose, cam, opts.ReprojectionErrorPx)
		if len(inliers) > bestInlierCount {
			bestInlierCount = len(inliers)
			best = Result{Pose: pose, Inliers: inliers}
		}
	}

	if bestInlierCount <= 0 {
		return Result{}, ErrLowInlierRatio
	}

	// Refine using every inlier found by the best hypothesis, per
	// `_localize_object`'s follow-up `cv2.solvePnP` refinement pass over
	// the RANSAC inlier set.
	refined, ok := solveForSample(correspondences, best.Inliers, cameraMatrix, distCoeffs)
	if ok {
		best.Pose = refined
	}

	best.InlierRatio = float64(bestInlierCount) / float64(n)
	if best.InlierRatio <= opts.MinInlierRatio {
		return best, ErrLowInlierRatio
	}
	return best, nil
}

func sampleIndices(rng *rand.Rand, n, k int) []int {
	perm := rng.Perm(n)
	if k > n {
		k = n
	}
	return perm[:k]
}

func solveForSample(corr []Correspondence, idx []int, cameraMatrix, distCoeffs gocv.Mat) (geom.Transform, bool) {
	if len(idx) < 4 {
		return geom.Transform{}, false
	}
	objPts := gocv.NewMatWithSize(len(idx), 3, gocv.MatTypeCV64F)
	defer objPts.Close()
	imgPts := gocv.NewMatWithSize(len(idx), 2, gocv.MatTypeCV64F)
	defer imgPts.Close()
	for row, i := range idx {
		c := corr[i]
		objPts.SetDoubleAt(row, 0, c.Object.X)
		objPts.SetDoubleAt(row, 1, c.Object.Y)
		objPts.SetDoubleAt(row, 2, c.Object.Z)
		imgPts.SetDoubleAt(row, 0, c.Image.U)
		imgPts.SetDoubleAt(row, 1, c.Image.V)
	}

	rvec := gocv.NewMatWithSize(3, 1, gocv.MatTypeCV64F)
	defer rvec.Close()
	tvec := gocv.NewMatWithSize(3, 1, gocv.MatTypeCV64F)
	defer tvec.Close()

	ok := gocv.SolvePnP(objPts, imgPts, cameraMatrix, distCoeffs, &rvec, &tvec, false, gocv.SolvePnPIterative)
	if !ok {
		return geom.Transform{}, false
	}

	rotMat := gocv.NewMat()
	defer rotMat.Close()
	gocv.Rodrigues(rvec, &rotMat)

	rot := matToDense3x3(rotMat)
	trans := geom.Point3{
		X: tvec.GetDoubleAt(0, 0),
		Y: tvec.GetDoubleAt(1, 0),
		Z: tvec.GetDoubleAt(2, 0),
	}
	return geom.NewTransform(rot, trans), true
}

func inlierIndices(corr []Correspondence, pose geom.Transform, cam geom.Intrinsics, thresholdPx float64) []int {
	out := make([]int, 0, len(corr))
	for i, c := range corr {
		camPt := pose.Apply(c.Object)
		if camPt.Z <= 0 {
			continue
		}
		reproj := geom.Project(cam, camPt)
		dx := reproj.U - c.Image.U
		dy := reproj.V - c.Image.V
		if math.Hypot(dx, dy) <= thresholdPx {
			out = append(out, i)
		}
	}
	return out
}

func intrinsicsToMat(cam geom.Intrinsics) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	vals := cam.Matrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, vals[r*3+c])
		}
	}
	return m
}

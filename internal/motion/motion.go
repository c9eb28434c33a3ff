// Package motion implements §4.7's motion predictor, §4.8's plausibility
// gate, and §4.11's rotation-angle helper: the constant-velocity
// extrapolation and validity checks that let the pipeline carry a track
// forward through frames where PnP fails or corroboration is weak.
package motion

import (
	"math"
	"sort"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"gonum.org/v1/gonum/mat"
)

// EstimateNextPose implements get_direction_vector + estimate_next_pose:
// from the last `num` (capped to len(poses)) world-frame poses, compute the
// average per-frame translation and extrapolate the final pose by it,
// keeping the final pose's rotation. With fewer than 2 poses the last pose
// is returned unchanged.
func EstimateNextPose(poses []geom.Transform, num int) geom.Transform {
	if len(poses) < 2 {
		if len(poses) == 1 {
			return poses[0]
		}
		return geom.Identity()
	}
	if num > len(poses) {
		num = len(poses)
	}
	if num < 2 {
		num = 2
	}
	last := poses[len(poses)-1]
	anchor := poses[len(poses)-num]
	direction := GetDirectionVector(last, anchor, num-1)

	lastTrans := last.Translation()
	newTrans := lastTrans.Add(direction)
	return geom.NewTransform(last.Rotation(), newTrans)
}

// GetDirectionVector returns the average per-frame world-frame translation
// between last and an anchor pose `steps` frames earlier:
// (t_last - t_anchor) / steps.
func GetDirectionVector(last, anchor geom.Transform, steps int) geom.Point3 {
	if steps <= 0 {
		steps = 1
	}
	delta := last.Translation().Sub(anchor.Translation())
	return delta.Scale(1 / float64(steps))
}

// GateInput bundles everything IsValidMotion needs to evaluate a candidate
// relative transform against §4.8's speed/distance thresholds.
type GateInput struct {
	Class               classparams.Class
	Params              classparams.Params
	RelTransform        geom.Transform
	WellTrackedPoses     int // count of recent poses with a confident match
	RecentLocations     []geom.Point3 // last 2*SlidingWindowBA world-frame locations, most recent last
	FrameRate           float64
	DistFromCam         float64
	Baseline            float64
	BadlyTrackedFrames  int
	MaxMaxDistMultiplier float64
}

// IsValidMotion implements §4.8's is_valid_motion gate.
func IsValidMotion(in GateInput) bool {
	maxSpeed := in.Params.MaxSpeed
	if in.WellTrackedPoses >= 5 {
		medianStep := medianStepNorm(in.RecentLocations)
		capped := 4 * medianStep * in.FrameRate
		if capped < maxSpeed {
			maxSpeed = capped
		}
	}
	minSpeed := maxSpeed / 10
	speed := maxSpeed
	if minSpeed > speed {
		speed = minSpeed
	}
	maxTranslation := speed / in.FrameRate

	distFactor := 1.0
	if in.Baseline > 0 {
		candidate := in.DistFromCam / (40 * in.Baseline)
		if candidate > distFactor {
			distFactor = candidate
		}
	}
	product := (0.75*float64(in.BadlyTrackedFrames) + 1) * distFactor
	if in.MaxMaxDistMultiplier > 0 && product > in.MaxMaxDistMultiplier {
		product = in.MaxMaxDistMultiplier
	}

	translation := in.RelTransform.Translation().Norm()
	return translation < product*maxTranslation
}

// medianStepNorm computes the median of consecutive-location-difference
// norms across a window of world-frame locations.
func medianStepNorm(locations []geom.Point3) float64 {
	if len(locations) < 2 {
		return 0
	}
	steps := make([]float64, 0, len(locations)-1)
	for i := 1; i < len(locations); i++ {
		steps = append(steps, locations[i].Sub(locations[i-1]).Norm())
	}
	sort.Float64s(steps)
	return steps[len(steps)/2]
}

// RotationAngle implements §4.11: the signed yaw angle (radians, about the
// vertical axis) of the relative rotation R_rel = R_cur * R_prev^T between
// two consecutive object poses.
func RotationAngle(prev, cur geom.Transform) float64 {
	prevRot := prev.Rotation()
	curRot := cur.Rotation()
	var relRot mat.Dense
	relRot.Mul(curRot, prevRot.T())
	return math.Atan2(relRot.At(0, 2), relRot.At(0, 0))
}

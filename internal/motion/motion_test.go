package motion

import (
	"math"
	"testing"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"gonum.org/v1/gonum/mat"
)

func identity3x3() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func TestEstimateNextPoseSinglePoseReturnsUnchanged(t *testing.T) {
	p := geom.NewTransform(identity3x3(), geom.Point3{X: 1, Y: 2, Z: 3})
	got := EstimateNextPose([]geom.Transform{p}, 5)
	if got.Translation() != p.Translation() {
		t.Errorf("expected unchanged pose, got %+v", got.Translation())
	}
}

func TestEstimateNextPoseExtrapolatesConstantVelocity(t *testing.T) {
	poses := []geom.Transform{
		geom.NewTransform(identity3x3(), geom.Point3{X: 0}),
		geom.NewTransform(identity3x3(), geom.Point3{X: 1}),
		geom.NewTransform(identity3x3(), geom.Point3{X: 2}),
	}
	got := EstimateNextPose(poses, 3)
	if math.Abs(got.Translation().X-3) > 1e-9 {
		t.Errorf("expected extrapolated x=3, got %f", got.Translation().X)
	}
}

func TestIsValidMotionAcceptsSlowMotion(t *testing.T) {
	in := GateInput{
		Params:       classparams.Params{MaxSpeed: 10},
		RelTransform: geom.NewTransform(identity3x3(), geom.Point3{X: 0.01}),
		FrameRate:    10,
		Baseline:     0.5,
		DistFromCam:  5,
	}
	if !IsValidMotion(in) {
		t.Error("expected slow motion to pass the gate")
	}
}

func TestIsValidMotionRejectsTeleport(t *testing.T) {
	in := GateInput{
		Params:       classparams.Params{MaxSpeed: 10},
		RelTransform: geom.NewTransform(identity3x3(), geom.Point3{X: 100}),
		FrameRate:    10,
		Baseline:     0.5,
		DistFromCam:  5,
	}
	if IsValidMotion(in) {
		t.Error("expected a 100m single-frame jump to fail the gate")
	}
}

func TestRotationAngleZeroForIdenticalPoses(t *testing.T) {
	p := geom.NewTransform(identity3x3(), geom.Point3{})
	if got := RotationAngle(p, p); math.Abs(got) > 1e-9 {
		t.Errorf("expected zero angle for identical poses, got %f", got)
	}
}

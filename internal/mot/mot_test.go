package mot

import (
	"context"
	"testing"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
	"gonum.org/v1/gonum/mat"
)

// noopMatcher satisfies feature.Matcher without doing any real detection or
// matching; every test track here stays below the 5-landmark threshold
// that would make processMatch call Match, so a no-op is sufficient.
type noopMatcher struct{}

func (noopMatcher) Detect(feature.Image, feature.Mask, uint64, uint64, feature.Side) ([]feature.Feature, error) {
	return nil, nil
}

func (noopMatcher) Match(a, b []feature.Feature) ([]feature.Match, error) {
	return nil, nil
}

func identity3x3() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		d.Set(i, i, 1)
	}
	return d
}

func testCam() geom.StereoCamera {
	intr := geom.Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240}
	return geom.StereoCamera{
		Left:       intr,
		Right:      intr,
		TLeftRight: geom.NewTransform(identity3x3(), geom.Point3{X: 0.5}),
	}
}

func testEngine(cfg config.Config) *Engine {
	classParams := classparams.NewTable(cfg.MaxSpeedCar, cfg.MaxSpeedPed, cfg.ClusterRadiusCar, cfg.ClusterRadiusPed, cfg.MinLandmarksCar, cfg.MinLandmarksPed)
	return NewEngine(cfg, classParams, testCam(), noopMatcher{})
}

// stereoDetection builds a Detection with two plausible stereo-matched
// feature pairs, triangulating to distinct nearby object-frame points.
func stereoDetection(cls classparams.Class) Detection {
	left := []feature.Feature{
		{Point: geom.Point2{U: 370, V: 240}, Descriptor: []float64{1, 2, 3}},
		{Point: geom.Point2{U: 420, V: 280}, Descriptor: []float64{4, 5, 6}},
	}
	right := []feature.Feature{
		{Point: geom.Point2{U: 320, V: 240}},
		{Point: geom.Point2{U: 370, V: 280}},
	}
	return Detection{
		Class:         cls,
		LeftMask:      feature.Mask{Width: 640, Height: 480},
		RightMask:     feature.Mask{Width: 640, Height: 480},
		LeftFeatures:  left,
		RightFeatures: right,
		StereoMatches: []feature.Match{{IndexA: 0, IndexB: 0}, {IndexA: 1, IndexB: 1}},
	}
}

func TestStepMintsNewTrackWithTriangulatedLandmarks(t *testing.T) {
	cfg := config.Default()
	cfg.Trust2D = "no" // force every unmatched detection to mint a new track
	cfg.MinLandmarksCar = 1
	e := testEngine(cfg)

	res, err := e.Step(context.Background(), 0, geom.Identity(), []Detection{stereoDetection(classparams.Car)})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(res.Tracks) != 1 {
		t.Fatalf("expected 1 active track, got %d", len(res.Tracks))
	}
	tr := res.Tracks[0]
	if !tr.Active {
		t.Error("expected new track to remain active with landmarks above the class minimum")
	}
	if len(tr.Landmarks) != 2 {
		t.Errorf("expected 2 triangulated landmarks, got %d", len(tr.Landmarks))
	}
	if len(tr.Poses) != 1 {
		t.Errorf("expected 1 recorded pose, got %d", len(tr.Poses))
	}
	for _, lm := range tr.Landmarks {
		for _, obs := range lm.Observations {
			if obs.ImgID != 0 {
				t.Errorf("expected observation img id 0 for first frame, got %d", obs.ImgID)
			}
		}
	}
}

func TestStepDeactivatesNewTrackBelowMinLandmarks(t *testing.T) {
	cfg := config.Default()
	cfg.Trust2D = "no"
	cfg.MinLandmarksCar = 10 // default; 2 triangulated points is not enough for robust init
	e := testEngine(cfg)

	res, err := e.Step(context.Background(), 0, geom.Identity(), []Detection{stereoDetection(classparams.Car)})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(res.Tracks) != 0 {
		t.Fatalf("expected the track to be deactivated on first frame, got %d active", len(res.Tracks))
	}
}

func TestRebalanceBASlotsSpreadsLoadEvenly(t *testing.T) {
	cfg := config.Default()
	cfg.BAEveryNSteps = 3
	e := testEngine(cfg)
	for i := 0; i < 7; i++ {
		e.Registry.New(classparams.Car)
	}

	e.rebalanceBASlots(0)

	if len(e.baSlotLoad) == 0 {
		t.Fatal("expected slot loads to be populated")
	}
	minLoad, maxLoad := -1, -1
	for _, load := range e.baSlotLoad {
		if minLoad == -1 || load < minLoad {
			minLoad = load
		}
		if load > maxLoad {
			maxLoad = load
		}
	}
	if maxLoad-minLoad > 1 {
		t.Errorf("expected slot loads within 1 of each other, got min=%d max=%d", minLoad, maxLoad)
	}
}

func TestApplyLifecycleRulesDeactivatesBadlyTrackedTrack(t *testing.T) {
	cfg := config.Default()
	cfg.KeepTrackForNFramesAfterLost = 5
	e := testEngine(cfg)
	tr := e.Registry.New(classparams.Car)
	tr.BadlyTrackedFrames = 6

	e.applyLifecycleRules()

	if tr.Active {
		t.Error("expected track past the badly-tracked threshold to be deactivated")
	}
}

func TestApplyLifecycleRulesKeepsFreshTrackActive(t *testing.T) {
	cfg := config.Default()
	cfg.KeepTrackForNFramesAfterLost = 30
	e := testEngine(cfg)
	tr := e.Registry.New(classparams.Car)
	tr.BadlyTrackedFrames = 1
	for i := 0; i < 10; i++ {
		tr.AppendPose(uint64(i), geom.Identity(), track.MaskPair{})
	}

	e.applyLifecycleRules()

	if !tr.Active {
		t.Error("expected a track with few badly-tracked frames relative to its lifetime to stay active")
	}
}

func TestExtrapolateUnmatchedIncrementsBadlyTrackedFrames(t *testing.T) {
	cfg := config.Default()
	e := testEngine(cfg)
	tr := e.Registry.New(classparams.Car)
	tr.AppendPose(0, geom.Identity(), track.MaskPair{})

	e.extrapolateUnmatched(tr, 1, geom.Identity())

	if tr.BadlyTrackedFrames != 1 {
		t.Errorf("expected BadlyTrackedFrames to increment to 1, got %d", tr.BadlyTrackedFrames)
	}
	if len(tr.Poses) != 2 {
		t.Errorf("expected extrapolation to append a pose, got %d poses", len(tr.Poses))
	}
	if len(tr.Locations) != len(tr.Poses) || len(tr.PCLCenters) != len(tr.Poses) || len(tr.RotAngle) != len(tr.Poses) {
		t.Errorf("expected Locations/PCLCenters/RotAngle to stay parallel to Poses, got %d/%d/%d vs %d poses",
			len(tr.Locations), len(tr.PCLCenters), len(tr.RotAngle), len(tr.Poses))
	}
}

func TestExtrapolateUnmatchedStaysParallelAcrossDropout(t *testing.T) {
	cfg := config.Default()
	e := testEngine(cfg)
	tr := e.Registry.New(classparams.Car)
	tr.AppendPose(0, geom.Identity(), track.MaskPair{})
	tr.Locations = append(tr.Locations, geom.Point3{})
	tr.PCLCenters = append(tr.PCLCenters, geom.Point3{})
	tr.RotAngle = append(tr.RotAngle, 0)

	// No landmarks, so IsInView is always false here; the parallel arrays
	// must still grow in lockstep with Poses across several such frames.
	for i := uint64(1); i <= 3; i++ {
		e.extrapolateUnmatched(tr, i, geom.Identity())
	}

	if len(tr.Poses) != 4 || len(tr.Locations) != 4 || len(tr.PCLCenters) != 4 || len(tr.RotAngle) != 4 {
		t.Fatalf("expected all four parallel slices at length 4, got poses=%d locations=%d pclcenters=%d rotangle=%d",
			len(tr.Poses), len(tr.Locations), len(tr.PCLCenters), len(tr.RotAngle))
	}
}

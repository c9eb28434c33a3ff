package pnp

import (
	"math"
	"math/rand"
	"testing"

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

func TestLocalizeRecoversKnownPose(t *testing.T) {
	cam := geom.Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240}
	truePose := geom.NewTransform(identity3x3(), geom.Point3{X: 0.2, Y: -0.1, Z: 1.0})

	objectPts := []geom.Point3{
		{X: 0, Y: 0, Z: 5}, {X: 1, Y: 0, Z: 5}, {X: 0, Y: 1, Z: 5}, {X: -1, Y: -1, Z: 6},
		{X: 0.5, Y: 0.5, Z: 5.5}, {X: -0.5, Y: 0.3, Z: 4.5}, {X: 1.2, Y: -0.4, Z: 6},
		{X: -1, Y: 1, Z: 5.2},
	}
	corr := make([]Correspondence, len(objectPts))
	for i, p := range objectPts {
		camPt := truePose.Apply(p)
		corr[i] = Correspondence{Object: p, Image: geom.Project(cam, camPt)}
	}

	rng := rand.New(rand.NewSource(1))
	res, err := Localize(corr, cam, DefaultOptions(), rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.InlierRatio <= 0.25 {
		t.Errorf("expected high inlier ratio, got %f", res.InlierRatio)
	}

	gotTrans := res.Pose.Translation()
	wantTrans := truePose.Translation()
	if math.Abs(gotTrans.X-wantTrans.X) > 0.05 || math.Abs(gotTrans.Z-wantTrans.Z) > 0.05 {
		t.Errorf("recovered translation %+v too far from true %+v", gotTrans, wantTrans)
	}
}

func TestLocalizeRejectsTooFewCorrespondences(t *testing.T) {
	cam := geom.Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240}
	_, err := Localize([]Correspondence{{}, {}, {}}, cam, DefaultOptions(), rand.New(rand.NewSource(1)))
	if err != ErrInsufficientCorrespondences {
		t.Errorf("expected ErrInsufficientCorrespondences, got %v", err)
	}
}

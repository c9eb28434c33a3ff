package mot

import (
	"testing"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
	"github.com/google/uuid"
)

// indexMatcher claims features pairwise by position, standing in for a real
// descriptor matcher so claim-vs-new behavior is deterministic in tests.
type indexMatcher struct{}

func (indexMatcher) Detect(feature.Image, feature.Mask, uint64, uint64, feature.Side) ([]feature.Feature, error) {
	return nil, nil
}

func (indexMatcher) Match(a, b []feature.Feature) ([]feature.Match, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]feature.Match, n)
	for i := 0; i < n; i++ {
		out[i] = feature.Match{IndexA: i, IndexB: i}
	}
	return out, nil
}

func TestTriangulateNewObservationsClaimsExistingLandmark(t *testing.T) {
	cfg := config.Default()
	classParams := classparams.NewTable(cfg.MaxSpeedCar, cfg.MaxSpeedPed, cfg.ClusterRadiusCar, cfg.ClusterRadiusPed, cfg.MinLandmarksCar, cfg.MinLandmarksPed)
	e := NewEngine(cfg, classParams, testCam(), indexMatcher{})

	tr := track.New(1, classparams.Car)
	existingID := uuid.New()
	tr.Landmarks[existingID] = &track.Landmark{
		ID:           existingID,
		Point:        geom.Point3{X: 1, Y: 0, Z: 5},
		Observations: []track.Observation{{Descriptor: []float64{1, 2, 3}}},
	}

	d := stereoDetection(classparams.Car)
	out := e.triangulateNewObservations(tr, d, geom.Identity(), 7)
	if len(out) != 2 {
		t.Fatalf("expected 2 triangulated observations, got %d", len(out))
	}

	var claimedCount, newCount int
	for _, o := range out {
		switch {
		case !o.IsNew && o.ExistingID == existingID:
			claimedCount++
		case o.IsNew:
			newCount++
		}
	}
	if claimedCount != 1 {
		t.Errorf("expected 1 observation claimed by the existing landmark, got %d", claimedCount)
	}
	if newCount != 1 {
		t.Errorf("expected 1 unclaimed match to mint a new landmark, got %d", newCount)
	}
}

package assoc

import (
	"testing"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
)

func TestStageCMatchesClosestByDistance(t *testing.T) {
	reg := track.NewRegistry()
	near := reg.New(classparams.Car)
	near.InView = true
	near.Locations = []geom.Point3{{X: 0, Y: 0, Z: 10}}
	far := reg.New(classparams.Car)
	far.InView = true
	far.Locations = []geom.Point3{{X: 100, Y: 0, Z: 10}}

	detections := []Detection{
		{Index: 0, Class: classparams.Car, MedianWorldPos: geom.Point3{X: 0.5, Y: 0, Z: 10}},
	}
	in := Input{
		Detections:  detections,
		Active:      []*track.ObjectTrack{near, far},
		ClassParams: classparams.NewTable(30, 10, 3, 1, 5, 5),
		FrameRate:   10,
		Trust:       TrustNo,
		NextID:      func() track.ID { return 999 },
	}
	matchedTrack := map[track.ID]bool{}
	matchedDet := map[int]bool{}
	matches := stageC(in, matchedTrack, matchedDet)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].TrackID != near.ID {
		t.Errorf("expected detection matched to near track %d, got %d", near.ID, matches[0].TrackID)
	}
}

func TestImproveTrustNoCreatesNewTracksForUnmatched(t *testing.T) {
	nextID := track.ID(100)
	in := Input{
		Detections:  []Detection{{Index: 0, Class: classparams.Car, MedianWorldPos: geom.Point3{X: 1, Y: 1, Z: 1}}},
		Active:      nil,
		ClassParams: classparams.NewTable(30, 10, 3, 1, 5, 5),
		FrameRate:   10,
		Trust:       TrustNo,
		NextID: func() track.ID {
			nextID++
			return nextID
		},
	}
	out := Improve(in)
	if len(out.Matches) != 1 {
		t.Fatalf("expected 1 new-track match, got %d", len(out.Matches))
	}
	if len(out.UnmatchedDetects) != 0 {
		t.Errorf("expected no unmatched detections under TrustNo, got %v", out.UnmatchedDetects)
	}
}

func TestStageBAllocatesFreshIDForAlreadyMatchedExternalID(t *testing.T) {
	reg := track.NewRegistry()
	tr := reg.New(classparams.Car)
	matchedTrack := map[track.ID]bool{tr.ID: true}
	matchedDet := map[int]bool{}
	notInView := map[track.ID]bool{}

	in := Input{
		Detections: []Detection{
			{Index: 0, Class: classparams.Car, ExternalID: tr.ID, HasExternalID: true},
		},
		Active:      []*track.ObjectTrack{tr},
		ClassParams: classparams.NewTable(30, 10, 3, 1, 5, 5),
		FrameRate:   10,
		NextID:      func() track.ID { return 42 },
	}
	matches := stageB(in, matchedTrack, matchedDet, notInView)
	if len(matches) != 1 || matches[0].TrackID != 42 {
		t.Errorf("expected fresh track id 42 for already-matched external id, got %+v", matches)
	}
}

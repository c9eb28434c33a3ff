package twodtrack

import "testing"

func TestByteTrackerMatchesOverlappingBoxAcrossFrames(t *testing.T) {
	tracker := NewByteTracker[*BBoxBlob](5, 0.1, 0.5, 0.3, MatchingAlgorithmHungarian)

	frame1 := []*BBoxBlob{NewBBoxBlob(Rectangle{X: 10, Y: 20, Width: 30, Height: 40})}
	assignments1, err := tracker.MatchObjects(frame1, []float64{0.9})
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if len(tracker.Objects) != 1 {
		t.Fatalf("expected 1 object after frame 1, got %d", len(tracker.Objects))
	}
	id1, ok := assignments1[0]
	if !ok {
		t.Fatal("frame 1 detection 0 was not assigned a track")
	}

	frame2 := []*BBoxBlob{NewBBoxBlob(Rectangle{X: 12, Y: 22, Width: 30, Height: 40})}
	assignments2, err := tracker.MatchObjects(frame2, []float64{0.9})
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if len(tracker.Objects) != 1 {
		t.Fatalf("expected overlapping box to match existing track, got %d objects", len(tracker.Objects))
	}
	if assignments2[0] != id1 {
		t.Fatalf("expected frame 2 to reuse track %s, got %s", id1, assignments2[0])
	}
}

func TestByteTrackerDropsTrackAfterMaxDisappeared(t *testing.T) {
	tracker := NewByteTracker[*BBoxBlob](2, 0.1, 0.5, 0.3, MatchingAlgorithmHungarian)

	frame1 := []*BBoxBlob{NewBBoxBlob(Rectangle{X: 0, Y: 0, Width: 10, Height: 10})}
	if _, err := tracker.MatchObjects(frame1, []float64{0.9}); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := tracker.MatchObjects(nil, nil); err != nil {
			t.Fatalf("empty frame %d: %v", i, err)
		}
	}

	if len(tracker.Objects) != 0 {
		t.Fatalf("expected track to be dropped after maxDisappeared empty frames, got %d objects", len(tracker.Objects))
	}
}

func TestByteTrackerStartsNewTrackForFarDetection(t *testing.T) {
	tracker := NewByteTracker[*BBoxBlob](5, 0.1, 0.5, 0.3, MatchingAlgorithmHungarian)

	frame1 := []*BBoxBlob{NewBBoxBlob(Rectangle{X: 0, Y: 0, Width: 10, Height: 10})}
	if _, err := tracker.MatchObjects(frame1, []float64{0.9}); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	frame2 := []*BBoxBlob{NewBBoxBlob(Rectangle{X: 1000, Y: 1000, Width: 10, Height: 10})}
	if _, err := tracker.MatchObjects(frame2, []float64{0.9}); err != nil {
		t.Fatalf("frame 2: %v", err)
	}

	if len(tracker.Objects) != 2 {
		t.Fatalf("expected a second, independent track, got %d objects", len(tracker.Objects))
	}
}

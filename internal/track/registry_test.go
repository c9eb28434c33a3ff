package track

import (
	"testing"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
)

func TestRegistryNewAssignsIncreasingIDs(t *testing.T) {
	r := NewRegistry()
	a := r.New(classparams.Car)
	b := r.New(classparams.Car)
	if a.ID == b.ID {
		t.Fatalf("expected distinct IDs, got %d and %d", a.ID, b.ID)
	}
}

func TestRegistryRemapResolvesThroughChain(t *testing.T) {
	r := NewRegistry()
	a := r.New(classparams.Pedestrian)
	b := r.New(classparams.Pedestrian)
	c := r.New(classparams.Pedestrian)

	r.Remap(a.ID, b.ID)
	r.Remap(b.ID, c.ID)

	if got := r.Resolve(a.ID); got != c.ID {
		t.Errorf("expected remap chain a->b->c to resolve to %d, got %d", c.ID, got)
	}
	got, ok := r.Get(a.ID)
	if !ok || got.ID != c.ID {
		t.Errorf("Get(a.ID) should resolve to track c, got %+v ok=%v", got, ok)
	}
}

func TestRegistryActiveAndGraveyardPartitionTracks(t *testing.T) {
	r := NewRegistry()
	a := r.New(classparams.Car)
	b := r.New(classparams.Car)
	b.Deactivate()

	active := r.Active()
	grave := r.Graveyard()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("expected only track a active, got %+v", active)
	}
	if len(grave) != 1 || grave[0].ID != b.ID {
		t.Errorf("expected only track b in graveyard, got %+v", grave)
	}
}

func TestIsBadlyTrackedHardThreshold(t *testing.T) {
	tr := New(1, classparams.Car)
	tr.BadlyTrackedFrames = 11
	if !tr.IsBadlyTracked(10) {
		t.Error("expected track to be badly tracked past hard frame threshold")
	}
}

func TestIsBadlyTrackedFractionalThreshold(t *testing.T) {
	tr := New(1, classparams.Car)
	for i := 0; i < 4; i++ {
		tr.AppendPose(uint64(i), geom.Identity(), MaskPair{})
	}
	tr.BadlyTrackedFrames = 4
	if !tr.IsBadlyTracked(100) {
		t.Error("expected fractional threshold (0.75*4=3 < 4) to trigger")
	}
}

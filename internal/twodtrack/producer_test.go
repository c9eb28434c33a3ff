package twodtrack

import "testing"

func TestProducerAssignsStableIDAcrossFrames(t *testing.T) {
	p := NewProducer()

	ids1, err := p.Assign([]Rectangle{{X: 10, Y: 20, Width: 30, Height: 40}}, []float64{0.9})
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if len(ids1) != 1 || ids1[0] == 0 {
		t.Fatalf("expected a non-zero track id, got %v", ids1)
	}

	ids2, err := p.Assign([]Rectangle{{X: 12, Y: 22, Width: 30, Height: 40}}, []float64{0.9})
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if ids2[0] != ids1[0] {
		t.Fatalf("expected the overlapping box to keep id %d, got %d", ids1[0], ids2[0])
	}
}

func TestBoundingBoxOfPolygon(t *testing.T) {
	box := BoundingBox([][2]float64{{10, 20}, {40, 20}, {40, 60}, {10, 60}})
	want := Rectangle{X: 10, Y: 20, Width: 30, Height: 40}
	if box != want {
		t.Fatalf("expected %+v, got %+v", want, box)
	}
}

func TestBoundingBoxOfEmptyPolygon(t *testing.T) {
	box := BoundingBox(nil)
	if box != (Rectangle{}) {
		t.Fatalf("expected the zero rectangle, got %+v", box)
	}
}

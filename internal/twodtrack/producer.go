package twodtrack

import (
	"github.com/bamot-go/bamot/internal/track"
	"github.com/google/uuid"
)

// Producer assigns stable track.ID external IDs to per-frame 2D bounding
// boxes, acting as the upstream 2D tracker §4.9's Stage B corroborates
// against when a deployment has no dedicated 2D-tracking process of its
// own feeding detections with pre-assigned external IDs.
type Producer struct {
	tracker *ByteTracker[*BBoxBlob]
	byUUID  map[uuid.UUID]track.ID
	next    track.ID
}

// NewProducer builds a Producer with conservative ByteTracker defaults.
func NewProducer() *Producer {
	return &Producer{
		tracker: DefaultByteTracker[*BBoxBlob](),
		byUUID:  make(map[uuid.UUID]track.ID),
	}
}

// Assign runs one frame's boxes (and per-box detection confidences) through
// the 2D tracker and returns the external track.ID assigned to each box in
// input order; a box too low-confidence to match or start a track gets the
// zero track.ID.
func (p *Producer) Assign(boxes []Rectangle, confidences []float64) ([]track.ID, error) {
	blobs := make([]*BBoxBlob, len(boxes))
	for i, box := range boxes {
		blobs[i] = NewBBoxBlob(box)
	}
	assignments, err := p.tracker.MatchObjects(blobs, confidences)
	if err != nil {
		return nil, err
	}

	out := make([]track.ID, len(boxes))
	for i, u := range assignments {
		id, ok := p.byUUID[u]
		if !ok {
			p.next++
			id = p.next
			p.byUUID[u] = id
		}
		out[i] = id
	}
	return out, nil
}

// BoundingBox reduces a polygon (image-pixel coordinates) to its axis-
// aligned bounding box, the shape ByteTracker's IoU matching operates on.
func BoundingBox(polygon [][2]float64) Rectangle {
	if len(polygon) == 0 {
		return Rectangle{}
	}
	minX, minY := polygon[0][0], polygon[0][1]
	maxX, maxY := minX, minY
	for _, p := range polygon[1:] {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return Rectangle{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

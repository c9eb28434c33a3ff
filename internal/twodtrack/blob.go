package twodtrack

import "github.com/google/uuid"

// Blob is a tracked 2D bounding box. Self is the concrete implementing
// type (e.g. *BBoxBlob), letting ByteTracker stay generic over it.
type Blob[Self any] interface {
	GetID() uuid.UUID
	SetID(newID uuid.UUID)

	GetCenter() Point
	GetBBox() Rectangle
	GetPredictedBBox() Rectangle
	GetDiagonal() float64

	GetTrack() []Point
	GetMaxTrackLen() int
	SetMaxTrackLen(newMaxTrackLen int)

	Activate()
	Deactivate()

	GetNoMatchTimes() int
	IncNoMatch()
	ResetNoMatch()

	PredictNextPosition()
	Update(measurement Self) error

	DistanceTo(other Self) float64
	DistanceToPredicted(other Self) float64
}

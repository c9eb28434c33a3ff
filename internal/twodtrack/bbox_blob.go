package twodtrack

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BBoxBlob is a tracked 2D bounding box smoothed by an 8-D Kalman filter
// over [cx, cy, w, h, vx, vy, vw, vh]. It implements Blob[*BBoxBlob] and
// stands in, per detection mask, for the upstream 2D tracker that a
// deployment would run ahead of this module's stereo 3D tracker — its
// stable IDs feed Stage B's 2D-tracker corroboration.
type BBoxBlob struct {
	id            uuid.UUID
	currentBBox   Rectangle
	predictedBBox Rectangle
	track         []Point
	maxTrackLen   int
	active        bool
	noMatchTimes  int
	diagonal      float64
	tracker       *kalman_filter.KalmanBBox
}

// NewBBoxBlobWithTime creates a new BBoxBlob with a custom Kalman time step.
func NewBBoxBlobWithTime(currentBbox Rectangle, dt float64) *BBoxBlob {
	centerX := currentBbox.X + currentBbox.Width/2.0
	centerY := currentBbox.Y + currentBbox.Height/2.0
	diagonal := math.Sqrt(math.Pow(currentBbox.Width, 2) + math.Pow(currentBbox.Height, 2))

	kf := kalman_filter.NewKalmanBBox(
		dt, 1.0, 1.0, 0.0, 0.0,
		2.0, 0.1, 0.1, 0.1, 0.1,
		kalman_filter.WithStateBBox(centerX, centerY, currentBbox.Width, currentBbox.Height),
	)

	blob := &BBoxBlob{
		id:            uuid.New(),
		currentBBox:   currentBbox,
		predictedBBox: currentBbox,
		track:         make([]Point, 0, 150),
		maxTrackLen:   150,
		diagonal:      diagonal,
		tracker:       kf,
	}
	blob.track = append(blob.track, Point{X: centerX, Y: centerY})
	return blob
}

// NewBBoxBlob creates a new BBoxBlob with a unit time step.
func NewBBoxBlob(currentBbox Rectangle) *BBoxBlob {
	return NewBBoxBlobWithTime(currentBbox, 1.0)
}

func (b *BBoxBlob) Activate()   { b.active = true }
func (b *BBoxBlob) Deactivate() { b.active = false }

func (b *BBoxBlob) GetID() uuid.UUID     { return b.id }
func (b *BBoxBlob) SetID(id uuid.UUID)   { b.id = id }

func (b *BBoxBlob) GetCenter() Point {
	return Point{X: b.currentBBox.X + b.currentBBox.Width/2.0, Y: b.currentBBox.Y + b.currentBBox.Height/2.0}
}

func (b *BBoxBlob) GetBBox() Rectangle          { return b.currentBBox }
func (b *BBoxBlob) GetPredictedBBox() Rectangle { return b.predictedBBox }
func (b *BBoxBlob) GetDiagonal() float64        { return b.diagonal }

func (b *BBoxBlob) GetTrack() []Point { return b.track }
func (b *BBoxBlob) GetMaxTrackLen() int { return b.maxTrackLen }
func (b *BBoxBlob) SetMaxTrackLen(n int) { b.maxTrackLen = n }

func (b *BBoxBlob) GetNoMatchTimes() int { return b.noMatchTimes }
func (b *BBoxBlob) IncNoMatch()          { b.noMatchTimes++ }
func (b *BBoxBlob) ResetNoMatch()        { b.noMatchTimes = 0 }

func (b *BBoxBlob) DistanceTo(other *BBoxBlob) float64 {
	return euclideanDistance(b.GetCenter(), other.GetCenter())
}

func (b *BBoxBlob) DistanceToPredicted(other *BBoxBlob) float64 {
	c := Point{X: b.predictedBBox.X + b.predictedBBox.Width/2.0, Y: b.predictedBBox.Y + b.predictedBBox.Height/2.0}
	oc := Point{X: other.predictedBBox.X + other.predictedBBox.Width/2.0, Y: other.predictedBBox.Y + other.predictedBBox.Height/2.0}
	return euclideanDistance(c, oc)
}

// PredictNextPosition runs the Kalman prediction step.
func (b *BBoxBlob) PredictNextPosition() {
	b.tracker.Predict()
	cx, cy, w, h := b.tracker.GetState()
	b.predictedBBox = Rectangle{X: cx - w/2.0, Y: cy - h/2.0, Width: w, Height: h}
}

// Update folds a matched measurement into the Kalman filter.
func (b *BBoxBlob) Update(measured *BBoxBlob) error {
	newBBox := measured.currentBBox
	newCx := newBBox.X + newBBox.Width/2.0
	newCy := newBBox.Y + newBBox.Height/2.0

	if err := b.tracker.Update(newCx, newCy, newBBox.Width, newBBox.Height); err != nil {
		return errors.Wrap(err, "twodtrack: kalman update")
	}

	cx, cy, w, h := b.tracker.GetState()
	b.currentBBox = Rectangle{X: cx - w/2.0, Y: cy - h/2.0, Width: w, Height: h}
	b.diagonal = math.Sqrt(math.Pow(w, 2) + math.Pow(h, 2))
	b.active = true
	b.noMatchTimes = 0

	b.track = append(b.track, Point{X: cx, Y: cy})
	if len(b.track) > b.maxTrackLen {
		b.track = b.track[1:]
	}
	return nil
}

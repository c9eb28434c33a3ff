// Package landmark implements §4.4's landmark manager: folding newly
// triangulated 3D points and their observations into a track's object-frame
// cloud, and pruning points that have drifted into implausible outliers.
package landmark

import (
	"sort"

	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
	"gonum.org/v1/gonum/stat"
)

// IDIssuer mints fresh landmark IDs; track.IDGenerator satisfies it, kept
// as an interface so tests can inject a deterministic stub.
type IDIssuer interface {
	NewLandmarkID() track.LandmarkID
}

// NewObservation is a single new feature correspondence ready to be folded
// into a landmark: a triangulated object-frame point plus the 2D detection
// that produced it.
type NewObservation struct {
	Point      geom.Point3
	Descriptor []float64
	ImgPoint   geom.Point2
	ImgID      uint64

	// ExistingID is set when this observation corroborates an existing
	// landmark (found via feature matching against the track's known
	// cloud) rather than creating a new one.
	ExistingID track.LandmarkID
	IsNew      bool
}

// AddNewLandmarksAndObservations folds a batch of new correspondences into
// t's landmark cloud: existing landmarks get an appended Observation (and
// their point position left untouched, matching the original
// implementation's behavior of never overwriting an established 3D
// position), while ones marked IsNew mint a fresh Landmark via issuer.
func AddNewLandmarksAndObservations(t *track.ObjectTrack, obs []NewObservation, issuer IDIssuer) {
	for _, o := range obs {
		observation := track.Observation{
			Descriptor: o.Descriptor,
			Point:      o.ImgPoint,
			ImgID:      o.ImgID,
		}
		if !o.IsNew {
			if lm, ok := t.Landmarks[o.ExistingID]; ok {
				lm.Observations = append(lm.Observations, observation)
				continue
			}
		}
		id := issuer.NewLandmarkID()
		t.Landmarks[id] = &track.Landmark{
			ID:           id,
			Point:        o.Point,
			Observations: []track.Observation{observation},
		}
	}
}

// OutlierMode selects how RemoveOutlierLandmarks decides a point is an
// outlier, mirroring the original implementation's two configurable
// strategies.
type OutlierMode int

const (
	// ModeClassRadius discards points farther than a fixed radius (from
	// classparams.Params.ClusterRadius) from the supplied anchor.
	ModeClassRadius OutlierMode = iota
	// ModeMAD discards points whose distance from the anchor exceeds a
	// multiple of the median absolute deviation of all those distances, a
	// robust alternative to a fixed radius for classes whose scale varies a
	// lot between instances.
	ModeMAD
)

// RemoveOutlierLandmarks prunes t's landmark cloud in place, returning the
// count removed. Distances are measured from anchor, the median of this
// frame's newly triangulated landmark positions (not the accumulated
// cloud's own centroid), matching the original implementation's use of the
// current frame's cluster median as the pruning reference point.
func RemoveOutlierLandmarks(t *track.ObjectTrack, mode OutlierMode, radius float64, madMultiplier float64, anchor geom.Point3) int {
	if len(t.Landmarks) == 0 {
		return 0
	}
	dists := make(map[track.LandmarkID]float64, len(t.Landmarks))
	all := make([]float64, 0, len(t.Landmarks))
	for id, lm := range t.Landmarks {
		d := lm.Point.Sub(anchor).Norm()
		dists[id] = d
		all = append(all, d)
	}

	var threshold float64
	switch mode {
	case ModeMAD:
		threshold = medianAbsoluteDeviationThreshold(all, madMultiplier)
	default:
		threshold = radius
	}

	removed := 0
	for id, d := range dists {
		if d > threshold {
			delete(t.Landmarks, id)
			removed++
		}
	}
	return removed
}

// MedianOf returns the elementwise median of points (the original
// implementation's np.median(points, axis=0)), the zero point for an empty
// slice.
func MedianOf(points []geom.Point3) geom.Point3 {
	if len(points) == 0 {
		return geom.Point3{}
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	return geom.Point3{X: medianOf1D(xs), Y: medianOf1D(ys), Z: medianOf1D(zs)}
}

func medianOf1D(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// medianAbsoluteDeviationThreshold returns multiplier*MAD(d), using
// gonum/stat for the underlying median computation.
func medianAbsoluteDeviationThreshold(dists []float64, multiplier float64) float64 {
	median := medianOf1D(dists)

	absDevs := make([]float64, len(dists))
	for i, d := range dists {
		absDevs[i] = abs(d - median)
	}
	sort.Float64s(absDevs)
	mad := stat.Quantile(0.5, stat.Empirical, absDevs, nil)
	return multiplier * mad
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

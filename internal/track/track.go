// Package track implements the §3 data model: the per-object landmark cloud,
// its world-frame trajectory, and the bookkeeping a running track needs
// (lifecycle state, identity remapping) independent of how it got there.
package track

import (
	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/google/uuid"
)

// ID identifies an ObjectTrack for the lifetime of a run. Unlike the
// original implementation's signed track_id (which overloaded -1 as "no
// track"), IDs here are plain uint64s starting at 1; absence is expressed
// with Go's (value, ok) idiom rather than a sentinel value.
type ID uint64

// LandmarkID identifies a single 3D point in a track's object-frame cloud.
// uuid.UUID gives collision-free IDs across tracks without a shared counter,
// mirroring the teacher's use of google/uuid for blob identity.
type LandmarkID = uuid.UUID

// Observation records one sighting of a landmark: the detected 2D feature
// that produced it plus the image it came from.
type Observation struct {
	Descriptor []float64
	Point      geom.Point2
	ImgID      uint64
}

// Landmark is a 3D point held in a track's own object frame, along with
// every observation that has contributed to it.
type Landmark struct {
	ID           LandmarkID
	Point        geom.Point3
	Observations []Observation
}

// IDGenerator issues fresh LandmarkIDs. A struct (rather than a bare
// package function) so tests can substitute a deterministic generator.
type IDGenerator struct{}

// NewLandmarkID returns a fresh, collision-free landmark identifier.
func (IDGenerator) NewLandmarkID() LandmarkID {
	return uuid.New()
}

// ObjectTrack is the full per-object state the pipeline threads through
// localization, landmark management, bundle adjustment, and association:
// the object-frame landmark cloud, the estimated pose at every frame it was
// seen, the derived world-frame trajectory, and the lifecycle counters that
// decide when to retire it.
type ObjectTrack struct {
	ID    ID
	Class classparams.Class

	// Landmarks is the object-frame point cloud, keyed by LandmarkID so
	// the internal/landmark functions can add/prune without touching
	// unrelated indices.
	Landmarks map[LandmarkID]*Landmark

	// Poses holds T_cam_obj for every frame this track was active,
	// indexed by position (not ImgID) in frame order.
	Poses  []geom.Transform
	ImgIDs []uint64

	// Masks holds one (left, right) mask pair per frame, parallel to
	// Poses. internal/mot appends zero-value pairs; it does not rasterize
	// silhouettes from the landmarks.
	Masks []MaskPair

	// Locations and PCLCenters are derived once per frame, parallel to
	// Poses: Locations[i] is Poses[i]'s translation mapped into the world
	// frame by that frame's ego pose, PCLCenters[i] the elementwise median
	// of the object-frame landmark cloud at that frame. Appended by
	// mot's processMatch and extrapolateUnmatched.
	Locations  []geom.Point3
	PCLCenters []geom.Point3

	Active            bool
	InView            bool
	BadlyTrackedFrames int
	DistFromCam       float64

	// FrameWidth/FrameHeight cache the most recent detection's image size,
	// so a later unmatched frame's visibility check has real pixel bounds
	// to test against instead of the zero value.
	FrameWidth, FrameHeight int

	// RotAngle holds the rotation angle computed for each frame, parallel
	// to Poses/ImgIDs; a zero entry marks a frame with no preceding pose to
	// measure a rotation against.
	RotAngle []float64
}

// MaskPair bundles the left/right masks rasterized for one frame of a
// track, per §4.1's get_masks_from_landmarks output.
type MaskPair struct {
	Left, Right geom.Mask
}

// New creates a freshly activated track with no landmarks or pose history.
func New(id ID, cls classparams.Class) *ObjectTrack {
	return &ObjectTrack{
		ID:        id,
		Class:     cls,
		Landmarks: make(map[LandmarkID]*Landmark),
		Active:    true,
		InView:    true,
	}
}

// LatestPose returns the most recent pose and whether the track has any.
func (t *ObjectTrack) LatestPose() (geom.Transform, bool) {
	if len(t.Poses) == 0 {
		return geom.Identity(), false
	}
	return t.Poses[len(t.Poses)-1], true
}

// AppendPose records a new frame's pose/mask/imgID triple, keeping Poses,
// Masks and ImgIDs parallel.
func (t *ObjectTrack) AppendPose(imgID uint64, pose geom.Transform, masks MaskPair) {
	t.ImgIDs = append(t.ImgIDs, imgID)
	t.Poses = append(t.Poses, pose)
	t.Masks = append(t.Masks, masks)
}

// LandmarkPoints returns the current object-frame point cloud as a plain
// slice, the shape geom.GetMasksFromLandmarks and the PnP/BA packages need.
func (t *ObjectTrack) LandmarkPoints() []geom.Point3 {
	pts := make([]geom.Point3, 0, len(t.Landmarks))
	for _, lm := range t.Landmarks {
		pts = append(pts, lm.Point)
	}
	return pts
}

// Deactivate marks the track inactive; it is retained in the Registry's
// graveyard for subsequent association lookups but no longer receives new
// observations.
func (t *ObjectTrack) Deactivate() {
	t.Active = false
	t.InView = false
}

// IsBadlyTracked reports whether a track has exceeded either of §4.10's
// deactivation thresholds: a hard frame count since last matched, or a
// fraction of its own lifetime spent unmatched.
func (t *ObjectTrack) IsBadlyTracked(keepAliveFrames int) bool {
	if t.BadlyTrackedFrames > keepAliveFrames {
		return true
	}
	return float64(t.BadlyTrackedFrames) > 0.75*float64(len(t.Poses))
}

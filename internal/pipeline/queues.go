package pipeline

import (
	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
)

// StereoImage is a frame's raw left/right image pair, the §6 input the
// shared-data and writer queues echo back out alongside a frame's results.
type StereoImage struct {
	Left, Right feature.Image
}

// SharedDataRecord is §6's per-frame shared-data queue payload. Done marks
// the end-of-stream sentinel (the original implementation's empty-map
// convention), after which every other field is zero and must be ignored.
type SharedDataRecord struct {
	Done bool

	ObjectTracks      []*track.ObjectTrack
	StereoImage       StereoImage
	AllLeftFeatures   []feature.Feature
	AllRightFeatures  []feature.Feature
	AllStereoMatches  []feature.Match
	ImgID             uint64
	CurrentCamPose    geom.Transform
}

// TwoDWriterRecord is §6's optional 2D-writer queue payload, populated once
// per frame when Config.SaveUpdated2DTrack is set, for tracks with a
// rasterized mask and a non-empty landmark cloud.
type TwoDWriterRecord struct {
	Done bool

	TrackIDs      []track.ID
	ImgID         uint64
	ObjectClasses []classparams.Class
	Masks         []geom.Mask
}

// ThreeDWriterRecord is §6's optional 3D-writer queue payload.
type ThreeDWriterRecord struct {
	Done bool

	WorldCamPose geom.Transform
	Tracks       []*track.ObjectTrack
	ImgID        uint64
}

// OBBWriterRecord is the supplemental oriented-bounding-box writer queue
// (SAVE_OBB_DATA in the original implementation), carrying the same
// filtered track set as the 3D writer for a downstream OBB fitter.
type OBBWriterRecord struct {
	Done bool

	Tracks       []*track.ObjectTrack
	ImgID        uint64
	WorldCamPose geom.Transform
}

// eligibleForWriters mirrors the original's track_copy filter: only tracks
// with a rasterized mask for their latest frame and a non-empty landmark
// cloud are published to the 2D/3D/OBB writer queues.
func eligibleForWriters(t *track.ObjectTrack) bool {
	if len(t.Landmarks) == 0 {
		return false
	}
	if len(t.Masks) == 0 {
		return false
	}
	last := t.Masks[len(t.Masks)-1]
	return last.Left.Width > 0 && last.Left.Height > 0
}

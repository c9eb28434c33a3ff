package mot

import (
	"github.com/bamot-go/bamot/internal/ba"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
)

// buildWindow assembles a ba.Window from a track's last `window` poses and
// its full landmark set, synthesizing one reprojection observation per
// (pose, landmark-observation) pair whose ImgID matches that pose's frame.
// Returns the window, the landmark-id ordering used for Window.Landmarks
// (so results can be written back by id), and the index into t.Poses the
// window's Poses[0] corresponds to.
func buildWindow(t *track.ObjectTrack, window int, cam geom.StereoCamera) (ba.Window, []track.LandmarkID, int) {
	if window > len(t.Poses) {
		window = len(t.Poses)
	}
	if window < 1 {
		return ba.Window{}, nil, 0
	}
	offset := len(t.Poses) - window
	poses := append([]geom.Transform(nil), t.Poses[offset:]...)
	imgIDToPoseIdx := make(map[uint64]int, window)
	for i := offset; i < len(t.Poses); i++ {
		imgIDToPoseIdx[t.ImgIDs[i]] = i - offset
	}

	landmarkIDs := make([]track.LandmarkID, 0, len(t.Landmarks))
	landmarks := make([]geom.Point3, 0, len(t.Landmarks))
	for id, lm := range t.Landmarks {
		landmarkIDs = append(landmarkIDs, id)
		landmarks = append(landmarks, lm.Point)
	}
	idxOf := make(map[track.LandmarkID]int, len(landmarkIDs))
	for i, id := range landmarkIDs {
		idxOf[id] = i
	}

	var observations []ba.Observation
	for _, id := range landmarkIDs {
		lm := t.Landmarks[id]
		for _, obs := range lm.Observations {
			poseIdx, ok := imgIDToPoseIdx[obs.ImgID]
			if !ok {
				continue
			}
			observations = append(observations, ba.Observation{
				PoseIndex:  poseIdx,
				LandmarkID: idxOf[id],
				U:          obs.Point.U,
				V:          obs.Point.V,
			})
		}
	}

	return ba.Window{
		Poses:        poses,
		Landmarks:    landmarks,
		Observations: observations,
		Cam:          cam,
	}, landmarkIDs, offset
}

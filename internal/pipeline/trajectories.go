package pipeline

import (
	"github.com/bamot-go/bamot/internal/ba"
	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/track"
)

// Trajectory maps a track id to its per-frame position series, keyed by
// img_id, per §6's `track_id → {img_id → (x,y,z)}` result shape.
type Trajectory map[track.ID]map[uint64]geom.Point3

// TrajectoryResult is §6's end-of-run return value.
type TrajectoryResult struct {
	OfflineWorld, OfflineCam Trajectory
	OnlineWorld, OnlineCam   Trajectory

	PointCloudSizes    map[track.ID][]int
	TrackIDToClass     map[track.ID]classparams.Class
}

// finalize runs the optional final full bundle adjustment over every track
// the registry ever created, then computes both trajectory views.
func (r *Runner) finalize(egoPoses EgoPoseBatch) *TrajectoryResult {
	all := r.Engine.Registry.All()

	if r.Cfg.FinalFullBA {
		opts := ba.Options{MaxIterations: 20, CauchyScale: 1.0, Lambda: 1e-3}
		for _, t := range all {
			runFullBA(t, r.Engine.Cam, opts)
		}
	}

	classMapping := make(map[track.ID]classparams.Class, len(all))
	for _, t := range all {
		classMapping[t.ID] = t.Class
	}

	return &TrajectoryResult{
		OfflineWorld:    trajectoryOfflineWorld(all, egoPoses),
		OfflineCam:      trajectoryOfflineCam(all),
		OnlineWorld:     trajectoryOnlineWorld(all),
		OnlineCam:       trajectoryOnlineCam(all, egoPoses),
		PointCloudSizes: r.pointCloudSizes,
		TrackIDToClass:  classMapping,
	}
}

// runFullBA bundle-adjusts a track's entire pose/landmark history in one
// window, the "final full BA" pass §6's FINAL_FULL_BA option names, as
// opposed to the sliding-window pass runBundleAdjustment uses mid-run.
func runFullBA(t *track.ObjectTrack, cam geom.StereoCamera, opts ba.Options) {
	if len(t.Poses) == 0 || len(t.Landmarks) == 0 {
		return
	}
	window, landmarkIDs, poseOffset := buildFullWindow(t, cam)
	if len(window.Observations) == 0 {
		return
	}
	result := ba.Optimize(window, opts)
	for i, pose := range result.Poses {
		t.Poses[poseOffset+i] = pose
	}
	for i, id := range landmarkIDs {
		if lm, ok := t.Landmarks[id]; ok {
			lm.Point = result.Landmarks[i]
		}
	}
}

func buildFullWindow(t *track.ObjectTrack, cam geom.StereoCamera) (ba.Window, []track.LandmarkID, int) {
	imgIDToPoseIdx := make(map[uint64]int, len(t.Poses))
	for i, id := range t.ImgIDs {
		imgIDToPoseIdx[id] = i
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
		Poses:        append([]geom.Transform(nil), t.Poses...),
		Landmarks:    landmarks,
		Observations: observations,
		Cam:          cam,
	}, landmarkIDs, 0
}

// trajectoryOfflineWorld recomputes each track's world-frame centroid
// trajectory from its final (possibly BA-refined) poses and ego poses,
// i.e. T_world_obj(img_id) = T_world_cam(img_id) . T_cam_obj(img_id)
// applied to that frame's landmark-cloud centroid.
func trajectoryOfflineWorld(tracks []*track.ObjectTrack, egoPoses EgoPoseBatch) Trajectory {
	out := make(Trajectory, len(tracks))
	for _, t := range tracks {
		series := make(map[uint64]geom.Point3, len(t.Poses))
		for i, imgID := range t.ImgIDs {
			if int(imgID) >= len(egoPoses) || i >= len(t.PCLCenters) {
				continue
			}
			worldObj := egoPoses[imgID].Compose(t.Poses[i])
			series[imgID] = worldObj.Apply(t.PCLCenters[i])
		}
		out[t.ID] = series
	}
	return out
}

// trajectoryOfflineCam is the same recomputation expressed in camera
// frame: T_cam_obj already maps object-frame points straight into the
// camera frame, so the ego pose cancels out of the composition.
func trajectoryOfflineCam(tracks []*track.ObjectTrack) Trajectory {
	out := make(Trajectory, len(tracks))
	for _, t := range tracks {
		series := make(map[uint64]geom.Point3, len(t.Poses))
		for i, imgID := range t.ImgIDs {
			if i >= len(t.PCLCenters) {
				continue
			}
			series[imgID] = t.Poses[i].Apply(t.PCLCenters[i])
		}
		out[t.ID] = series
	}
	return out
}

// trajectoryOnlineWorld returns the world-frame locations recorded live
// during the run (mot.Engine.processMatch's t.Locations), unmodified by any
// subsequent BA pass.
func trajectoryOnlineWorld(tracks []*track.ObjectTrack) Trajectory {
	out := make(Trajectory, len(tracks))
	for _, t := range tracks {
		series := make(map[uint64]geom.Point3, len(t.Locations))
		for i, imgID := range t.ImgIDs {
			if i >= len(t.Locations) {
				continue
			}
			series[imgID] = t.Locations[i]
		}
		out[t.ID] = series
	}
	return out
}

// trajectoryOnlineCam projects the live-recorded world locations back into
// each frame's camera frame via the ego pose's inverse.
func trajectoryOnlineCam(tracks []*track.ObjectTrack, egoPoses EgoPoseBatch) Trajectory {
	out := make(Trajectory, len(tracks))
	for _, t := range tracks {
		series := make(map[uint64]geom.Point3, len(t.Locations))
		for i, imgID := range t.ImgIDs {
			if i >= len(t.Locations) || int(imgID) >= len(egoPoses) {
				continue
			}
			series[imgID] = egoPoses[imgID].Inverse().Apply(t.Locations[i])
		}
		out[t.ID] = series
	}
	return out
}

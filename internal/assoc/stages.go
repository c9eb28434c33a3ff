package assoc

import (
	"math/rand"

	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/motion"
	"github.com/bamot-go/bamot/internal/pnp"
	"github.com/bamot-go/bamot/internal/track"
)

// stageA implements §4.9 Stage A: PnP + appearance scoring, maximum-weight
// assignment over positive scores. Returns the matches it accepted and a
// per-detection cache of the PnP pose computed along the way.
func stageA(in Input, matchedTrack map[track.ID]bool, matchedDet map[int]bool, notInView map[track.ID]bool) ([]Match, map[int]geom.Transform) {
	poseCache := make(map[int]geom.Transform)
	candidateTracks := make([]*track.ObjectTrack, 0, len(in.Active))
	for _, t := range in.Active {
		if !t.InView {
			notInView[t.ID] = true
			continue
		}
		candidateTracks = append(candidateTracks, t)
	}
	if len(candidateTracks) == 0 || len(in.Detections) == 0 {
		return nil, poseCache
	}

	rewards := make([][]float64, len(candidateTracks))
	pairPoses := make(map[[2]int]geom.Transform)
	rng := rand.New(rand.NewSource(1))
	for ti, t := range candidateTracks {
		rewards[ti] = make([]float64, len(in.Detections))
		for di, d := range in.Detections {
			if d.Class != t.Class {
				continue
			}
			if len(d.Features) == 0 || len(t.Landmarks) == 0 {
				continue
			}
			// The original implementation seeds solvePnP with the predicted
			// pose; our RANSAC-around-SolvePnP loop has no seed parameter; it
			// instead widens the inlier search over random minimal samples.
			res, err := pnp.Localize(d.Features, in.Cam, pnp.DefaultOptions(), rng)
			if err != nil {
				continue
			}
			prevPose, hasPrev := t.LatestPose()
			if hasPrev {
				params, perr := in.ClassParams.Lookup(t.Class)
				if perr == nil {
					relTransform := res.Pose.Compose(prevPose.Inverse())
					gateIn := motion.GateInput{
						Class:               t.Class,
						Params:              params,
						RelTransform:        relTransform,
						FrameRate:           in.FrameRate,
						DistFromCam:         t.DistFromCam,
						Baseline:            in.Baseline,
						BadlyTrackedFrames:  t.BadlyTrackedFrames,
						MaxMaxDistMultiplier: in.MaxMaxDistMultiplier,
					}
					if !motion.IsValidMotion(gateIn) {
						continue
					}
				}
			}
			denom := len(d.Features)
			if len(t.Landmarks) < denom {
				denom = len(t.Landmarks)
			}
			if denom == 0 {
				continue
			}
			score := float64(len(res.Inliers)) / float64(denom)
			rewards[ti][di] = score
			pairPoses[[2]int{ti, di}] = res.Pose
		}
	}

	pairs := solveMaxWeight(rewards)
	var matches []Match
	for _, pair := range pairs {
		t := candidateTracks[pair[0]]
		d := in.Detections[pair[1]]
		if pose, ok := pairPoses[[2]int{pair[0], pair[1]}]; ok {
			poseCache[d.Index] = pose
		}
		matches = append(matches, Match{DetectionIndex: d.Index, TrackID: t.ID})
		matchedTrack[t.ID] = true
		matchedDet[d.Index] = true
	}
	return matches, poseCache
}

// stageB implements §4.9 Stage B: 2D-tracker corroboration for detections
// still unmatched after Stage A.
func stageB(in Input, matchedTrack map[track.ID]bool, matchedDet map[int]bool, notInView map[track.ID]bool) []Match {
	graveyard := make(map[track.ID]bool, len(in.Graveyard))
	for _, t := range in.Graveyard {
		graveyard[t.ID] = true
	}
	activeByID := make(map[track.ID]*track.ObjectTrack, len(in.Active))
	for _, t := range in.Active {
		activeByID[t.ID] = t
	}

	var matches []Match
	for _, d := range in.Detections {
		if matchedDet[d.Index] {
			continue
		}
		if !d.HasExternalID {
			continue
		}
		extID := d.ExternalID
		if resolved, ok := in.Remap[extID]; ok {
			extID = resolved
		}

		switch {
		case matchedTrack[extID]:
			id := in.NextID()
			matches = append(matches, Match{DetectionIndex: d.Index, TrackID: id})
			matchedDet[d.Index] = true
		case notInView[extID]:
			id := in.NextID()
			matches = append(matches, Match{DetectionIndex: d.Index, TrackID: id})
			matchedDet[d.Index] = true
		case graveyard[extID]:
			id := in.NextID()
			matches = append(matches, Match{DetectionIndex: d.Index, TrackID: id})
			matchedDet[d.Index] = true
		default:
			t, ok := activeByID[extID]
			if !ok {
				matches = append(matches, Match{DetectionIndex: d.Index, TrackID: extID})
				matchedDet[d.Index] = true
				matchedTrack[extID] = true
				continue
			}
			if t.Class != d.Class || !t.InView {
				continue
			}
			loc, hasLoc := lastLocation(t)
			if !hasLoc {
				continue
			}
			dist := worldDistance(d.MedianWorldPos, loc)
			params, perr := in.ClassParams.Lookup(t.Class)
			if perr != nil {
				continue
			}
			if dist >= maxDistanceForGate(t, params, in.Cam, in.FrameRate, in.Baseline, in.MaxMaxDistMultiplier) {
				continue
			}
			matches = append(matches, Match{DetectionIndex: d.Index, TrackID: t.ID})
			matchedDet[d.Index] = true
			matchedTrack[t.ID] = true
		}
	}
	return matches
}

// stageC implements §4.9 Stage C: a pure 3D-distance fallback for whatever
// remains unmatched after Stages A and B, scored as 1/distance so closer
// pairs carry higher reward in the maximum-weight solve.
func stageC(in Input, matchedTrack map[track.ID]bool, matchedDet map[int]bool) []Match {
	var candidateTracks []*track.ObjectTrack
	for _, t := range in.Active {
		if !matchedTrack[t.ID] && t.InView {
			candidateTracks = append(candidateTracks, t)
		}
	}
	var candidateDets []Detection
	for _, d := range in.Detections {
		if !matchedDet[d.Index] {
			candidateDets = append(candidateDets, d)
		}
	}
	if len(candidateTracks) == 0 || len(candidateDets) == 0 {
		return nil
	}

	rewards := make([][]float64, len(candidateTracks))
	for ti, t := range candidateTracks {
		rewards[ti] = make([]float64, len(candidateDets))
		loc, hasLoc := lastLocation(t)
		for di, d := range candidateDets {
			if d.Class != t.Class || !hasLoc {
				continue
			}
			dist := worldDistance(d.MedianWorldPos, loc)
			if dist <= 0 {
				continue
			}
			rewards[ti][di] = 1.0 / dist
		}
	}

	pairs := solveMaxWeight(rewards)
	var matches []Match
	for _, pair := range pairs {
		t := candidateTracks[pair[0]]
		d := candidateDets[pair[1]]
		matches = append(matches, Match{DetectionIndex: d.Index, TrackID: t.ID})
		matchedTrack[t.ID] = true
		matchedDet[d.Index] = true
	}
	return matches
}

func lastLocation(t *track.ObjectTrack) (geom.Point3, bool) {
	if len(t.Locations) == 0 {
		return geom.Point3{}, false
	}
	return t.Locations[len(t.Locations)-1], true
}

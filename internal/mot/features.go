package mot

import (
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/landmark"
	"github.com/bamot-go/bamot/internal/pnp"
	"github.com/bamot-go/bamot/internal/track"
)

// buildCorrespondences matches a track's known landmark descriptors
// (taken from each landmark's most recent observation) against this
// frame's left features and returns the resulting 2D-3D pairs for PnP.
func (e *Engine) buildCorrespondences(t *track.ObjectTrack, d Detection) []pnp.Correspondence {
	if len(t.Landmarks) == 0 || len(d.LeftFeatures) == 0 {
		return nil
	}
	feats, points, _ := landmarksAsFeatures(t)
	matches, err := e.Matcher.Match(feats, d.LeftFeatures)
	if err != nil {
		return nil
	}
	out := make([]pnp.Correspondence, 0, len(matches))
	for _, m := range matches {
		out = append(out, pnp.Correspondence{
			Object: points[m.IndexA],
			Image:  d.LeftFeatures[m.IndexB].Point,
		})
	}
	return out
}

// claimedLeftFeatures matches t's known landmark descriptors against this
// frame's left features and returns, for each left-feature index claimed by
// an existing landmark, the landmark it matched.
func (e *Engine) claimedLeftFeatures(t *track.ObjectTrack, d Detection) map[int]track.LandmarkID {
	if len(t.Landmarks) == 0 || len(d.LeftFeatures) == 0 {
		return nil
	}
	feats, _, ids := landmarksAsFeatures(t)
	matches, err := e.Matcher.Match(feats, d.LeftFeatures)
	if err != nil {
		return nil
	}
	claimed := make(map[int]track.LandmarkID, len(matches))
	for _, m := range matches {
		claimed[m.IndexB] = ids[m.IndexA]
	}
	return claimed
}

func landmarksAsFeatures(t *track.ObjectTrack) ([]feature.Feature, []geom.Point3, []track.LandmarkID) {
	var feats []feature.Feature
	var points []geom.Point3
	var ids []track.LandmarkID
	for id, lm := range t.Landmarks {
		if len(lm.Observations) == 0 {
			continue
		}
		latest := lm.Observations[len(lm.Observations)-1]
		feats = append(feats, feature.Feature{Point: latest.Point, Descriptor: latest.Descriptor})
		points = append(points, lm.Point)
		ids = append(ids, id)
	}
	return feats, points, ids
}

// triangulateNewObservations implements the triangulation half of §4.4:
// for each stereo match not already claimed by an existing landmark,
// triangulate a new object-frame point (dropping failures per §7's
// geometry-failure handling) and package it for
// landmark.AddNewLandmarksAndObservations.
func (e *Engine) triangulateNewObservations(t *track.ObjectTrack, d Detection, pose geom.Transform, imgID uint64) []landmark.NewObservation {
	claimed := e.claimedLeftFeatures(t, d)
	out := make([]landmark.NewObservation, 0, len(d.StereoMatches))
	for _, m := range d.StereoMatches {
		if m.IndexA < 0 || m.IndexA >= len(d.LeftFeatures) || m.IndexB < 0 || m.IndexB >= len(d.RightFeatures) {
			continue
		}
		left := d.LeftFeatures[m.IndexA]
		right := d.RightFeatures[m.IndexB]
		camPoint, err := geom.TriangulateStereo(left.Point, right.Point, e.Cam, geom.Identity(), e.Cfg.MaxDist)
		if err != nil {
			continue
		}
		objFrame := pose.Inverse().Apply(camPoint)
		obs := landmark.NewObservation{
			Point:      objFrame,
			Descriptor: left.Descriptor,
			ImgPoint:   left.Point,
			ImgID:      imgID,
		}
		if existingID, ok := claimed[m.IndexA]; ok {
			obs.ExistingID = existingID
		} else {
			obs.IsNew = true
		}
		out = append(out, obs)
	}
	return out
}

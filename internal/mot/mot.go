// Package mot implements §4.10's frame step orchestrator: the per-frame
// association → process-match → lifecycle update loop that drives every
// other package (geom, pnp, landmark, ba, motion, assoc) against one
// frame's detections and ego pose.
package mot

import (
	"context"
	"math/rand"

	"github.com/bamot-go/bamot/internal/assoc"
	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/landmark"
	"github.com/bamot-go/bamot/internal/motion"
	"github.com/bamot-go/bamot/internal/pnp"
	"github.com/bamot-go/bamot/internal/track"
	"golang.org/x/sync/errgroup"
)

// Detection is one frame's incoming stereo detection with whatever the
// upstream feature matcher has already cached.
type Detection struct {
	Class         classparams.Class
	LeftMask      feature.Mask
	RightMask     feature.Mask
	LeftFeatures  []feature.Feature
	RightFeatures []feature.Feature
	StereoMatches []feature.Match
	ExternalID    track.ID
	HasExternalID bool
}

// Engine holds all per-run state the frame step needs: the track registry,
// BA slot schedule, identity remap table, and the pluggable feature
// matcher, mirroring the teacher's pattern of a single long-lived struct
// (ByteTracker) that owns tracker state across calls to its per-frame
// entry point.
type Engine struct {
	Registry    *track.Registry
	Cfg         config.Config
	ClassParams classparams.Table
	Cam         geom.StereoCamera
	Matcher     feature.Matcher
	IDIssuer    landmark.IDIssuer

	baSlotLoad map[int]int // slot index -> number of tracks currently assigned
	baSlotOf   map[track.ID]int
}

// NewEngine builds an Engine ready to process frames.
func NewEngine(cfg config.Config, classParams classparams.Table, cam geom.StereoCamera, matcher feature.Matcher) *Engine {
	return &Engine{
		Registry:    track.NewRegistry(),
		Cfg:         cfg,
		ClassParams: classParams,
		Cam:         cam,
		Matcher:     matcher,
		IDIssuer:    track.IDGenerator{},
		baSlotLoad:  make(map[int]int),
		baSlotOf:    make(map[track.ID]int),
	}
}

// StepResult is the outcome of one frame, the shape the run loop publishes
// to the shared-data queue per §6.
type StepResult struct {
	ImgID  uint64
	Tracks []*track.ObjectTrack
}

// Step implements §4.10's `step`: builds this frame's matches, dispatches
// process-match per matched track, extrapolates unmatched tracks, and
// applies lifecycle/deactivation rules.
func (e *Engine) Step(ctx context.Context, imgID uint64, egoPose geom.Transform, detections []Detection) (StepResult, error) {
	e.rebalanceBASlots(imgID)

	trackDetections := make([]assoc.Detection, len(detections))
	for i, d := range detections {
		var worldPts []geom.Point3
		for _, m := range d.StereoMatches {
			if m.IndexA < 0 || m.IndexA >= len(d.LeftFeatures) || m.IndexB < 0 || m.IndexB >= len(d.RightFeatures) {
				continue
			}
			p, err := geom.TriangulateStereo(d.LeftFeatures[m.IndexA].Point, d.RightFeatures[m.IndexB].Point, e.Cam, egoPose, e.Cfg.MaxDist)
			if err == nil {
				worldPts = append(worldPts, p)
			}
		}
		trackDetections[i] = assoc.Detection{
			Index:          i,
			Class:          d.Class,
			MedianWorldPos: landmark.MedianOf(worldPts),
			ExternalID:     d.ExternalID,
			HasExternalID:  d.HasExternalID,
		}
	}

	active := e.Registry.Active()
	graveyard := e.Registry.Graveyard()
	remap := e.remapSnapshot()

	out := assoc.Improve(assoc.Input{
		Detections:           trackDetections,
		Active:               active,
		Graveyard:            graveyard,
		Remap:                remap,
		Trust:                trustMode(e.Cfg.Trust2D),
		Cam:                  e.Cam.Left,
		FrameRate:            e.Cfg.FrameRate,
		ClassParams:          e.ClassParams,
		NextID:               func() track.ID { return e.Registry.Reserve() },
		Baseline:             e.Cam.Baseline(),
		MaxMaxDistMultiplier: e.Cfg.MaxMaxDistMultiplier,
	})

	// Resolve/create every matched track's identity single-threaded first:
	// the Registry's map is not safe for concurrent writes, and §5 requires
	// each per-track task to start from an independent deep copy anyway, so
	// every goroutine below only ever touches its own snapshot.
	snapshots := make([]*track.ObjectTrack, len(out.Matches))
	for i, m := range out.Matches {
		t, ok := e.Registry.Get(m.TrackID)
		if !ok {
			t = e.Registry.NewWithID(m.TrackID, detections[m.DetectionIndex].Class)
		}
		snapshots[i] = cloneTrack(t)
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*track.ObjectTrack, len(out.Matches))
	for i, m := range out.Matches {
		i, m := i, m
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = e.processMatch(snapshots[i], imgID, egoPose, detections[m.DetectionIndex], m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StepResult{}, err
	}

	// Single-threaded writeback, per §5's "orchestrator writes results
	// back into the active-track map in a single-threaded phase". Get
	// returns the same *ObjectTrack the registry stores, so overwriting
	// through it mutates the shared track in place.
	for _, updated := range results {
		if updated == nil {
			continue
		}
		if orig, ok := e.Registry.Get(updated.ID); ok {
			*orig = *updated
		}
	}

	for _, t := range active {
		if wasMatched(t.ID, out.Matches) {
			continue
		}
		e.extrapolateUnmatched(t, imgID, egoPose)
	}

	e.applyLifecycleRules()

	final := e.Registry.Active()
	return StepResult{ImgID: imgID, Tracks: final}, nil
}

func wasMatched(id track.ID, matches []assoc.Match) bool {
	for _, m := range matches {
		if m.TrackID == id {
			return true
		}
	}
	return false
}

func trustMode(s string) assoc.TrustMode {
	switch s {
	case "no":
		return assoc.TrustNo
	case "yes":
		return assoc.TrustYes
	default:
		return assoc.TrustCorroborate
	}
}

func (e *Engine) remapSnapshot() map[track.ID]track.ID {
	out := make(map[track.ID]track.ID)
	for _, t := range e.Registry.All() {
		resolved := e.Registry.Resolve(t.ID)
		if resolved != t.ID {
			out[t.ID] = resolved
		}
	}
	return out
}

// cloneTrack makes the independent deep copy §5 requires before handing a
// track to a per-frame worker goroutine.
func cloneTrack(t *track.ObjectTrack) *track.ObjectTrack {
	clone := *t
	clone.Landmarks = make(map[track.LandmarkID]*track.Landmark, len(t.Landmarks))
	for id, lm := range t.Landmarks {
		lmCopy := *lm
		lmCopy.Observations = append([]track.Observation(nil), lm.Observations...)
		clone.Landmarks[id] = &lmCopy
	}
	clone.Poses = append([]geom.Transform(nil), t.Poses...)
	clone.ImgIDs = append([]uint64(nil), t.ImgIDs...)
	clone.Masks = append([]track.MaskPair(nil), t.Masks...)
	clone.Locations = append([]geom.Point3(nil), t.Locations...)
	clone.PCLCenters = append([]geom.Point3(nil), t.PCLCenters...)
	clone.RotAngle = append([]float64(nil), t.RotAngle...)
	return &clone
}

// processMatch implements §4.10's process-match for a single (track,
// detection) pair, operating entirely on the supplied deep-copied snapshot.
func (e *Engine) processMatch(t *track.ObjectTrack, imgID uint64, egoPose geom.Transform, d Detection, m assoc.Match) *track.ObjectTrack {
	predicted := motion.EstimateNextPose(t.Poses, e.Cfg.SlidingWindowBA)
	candidatePose := predicted

	numLandmarkMatches := len(t.Landmarks)
	if numLandmarkMatches >= 5 {
		var pnpPose geom.Transform
		var pnpOK bool
		if m.HasPnPPose {
			pnpPose, pnpOK = m.PnPPose, true
		} else if corr := e.buildCorrespondences(t, d); len(corr) >= 4 {
			rng := rand.New(rand.NewSource(int64(t.ID)<<32 ^ int64(imgID)))
			res, err := pnp.Localize(corr, e.Cam.Left, pnp.DefaultOptions(), rng)
			if err == nil {
				pnpPose, pnpOK = res.Pose, true
			}
		}
		if pnpOK {
			prevPose, hasPrev := t.LatestPose()
			accept := true
			if hasPrev {
				params, err := e.ClassParams.Lookup(t.Class)
				if err == nil {
					relTransform := pnpPose.Compose(prevPose.Inverse())
					accept = motion.IsValidMotion(motion.GateInput{
						Class:               t.Class,
						Params:              params,
						RelTransform:        relTransform,
						FrameRate:           e.Cfg.FrameRate,
						DistFromCam:         t.DistFromCam,
						Baseline:            e.Cam.Baseline(),
						BadlyTrackedFrames:  t.BadlyTrackedFrames,
						MaxMaxDistMultiplier: e.Cfg.MaxMaxDistMultiplier,
					})
				}
			}
			if accept {
				candidatePose = pnpPose
			}
		}
	}

	t.BadlyTrackedFrames = 0

	newObs := e.triangulateNewObservations(t, d, candidatePose, imgID)
	landmark.AddNewLandmarksAndObservations(t, newObs, e.IDIssuer)

	t.DistFromCam = candidatePose.Apply(medianObjectCentroid(t)).Norm()
	if t.DistFromCam > e.Cfg.MaxDist {
		t.Active = false
	}

	mode := landmark.ModeClassRadius
	if e.Cfg.UsingMedianCluster {
		mode = landmark.ModeMAD
	}
	params, _ := e.ClassParams.Lookup(t.Class)
	radius := params.ClusterRadius * distFactor(t.DistFromCam)
	anchor := landmark.MedianOf(newObsPoints(newObs))
	landmark.RemoveOutlierLandmarks(t, mode, radius, e.Cfg.MADScaleFactor, anchor)

	t.AppendPose(imgID, candidatePose, track.MaskPair{Left: geom.Mask{}, Right: geom.Mask{}})

	if len(t.Poses) > 3 && len(t.Landmarks) > 0 && e.isBASlot(t.ID, imgID) {
		e.runBundleAdjustment(t)
	}

	if len(t.Poses) == 1 && len(t.Landmarks) >= 1 {
		recenterObjectFrame(t)
	}

	minLandmarks := params.MinLandmarks
	if len(t.Poses) == 1 && len(t.Landmarks) < minLandmarks {
		t.Active = false
	}

	t.FrameWidth, t.FrameHeight = imgWidth(d.LeftMask), imgHeight(d.LeftMask)
	t.InView = geom.IsInView(t.LandmarkPoints(), candidatePose, e.Cam.Left, t.FrameWidth, t.FrameHeight, params.MinLandmarks)
	t.Locations = append(t.Locations, egoPose.Apply(candidatePose.Translation()))
	t.PCLCenters = append(t.PCLCenters, medianObjectCentroid(t))
	if len(t.Poses) >= 2 {
		t.RotAngle = append(t.RotAngle, motion.RotationAngle(t.Poses[len(t.Poses)-2], candidatePose))
	} else {
		t.RotAngle = append(t.RotAngle, 0)
	}

	return t
}

func newObsPoints(obs []landmark.NewObservation) []geom.Point3 {
	pts := make([]geom.Point3, len(obs))
	for i, o := range obs {
		pts[i] = o.Point
	}
	return pts
}

func imgWidth(m feature.Mask) int  { return m.Width }
func imgHeight(m feature.Mask) int { return m.Height }

func distFactor(distFromCam float64) float64 {
	d := distFromCam - 15
	if d < 0 {
		d = 0
	}
	return 1 + d/30
}

func medianObjectCentroid(t *track.ObjectTrack) geom.Point3 {
	return landmark.MedianOf(t.LandmarkPoints())
}

// recenterObjectFrame implements §4.10's first-frame re-centering: shift
// the object frame's origin to the current landmark median so
// T_world_obj_new . p_obj_new = T_world_obj_old . p_obj_old for every
// landmark.
func recenterObjectFrame(t *track.ObjectTrack) {
	median := medianObjectCentroid(t)
	if median == (geom.Point3{}) {
		return
	}
	for _, lm := range t.Landmarks {
		lm.Point = lm.Point.Sub(median)
	}
	if len(t.Poses) > 0 {
		last := t.Poses[len(t.Poses)-1]
		shifted := geom.NewTransform(last.Rotation(), last.Apply(median))
		t.Poses[len(t.Poses)-1] = shifted
	}
}

func (e *Engine) extrapolateUnmatched(t *track.ObjectTrack, imgID uint64, egoPose geom.Transform) {
	t.BadlyTrackedFrames++
	predicted := motion.EstimateNextPose(t.Poses, e.Cfg.SlidingWindowBA)
	t.AppendPose(imgID, predicted, track.MaskPair{})
	params, _ := e.ClassParams.Lookup(t.Class)
	t.InView = geom.IsInView(t.LandmarkPoints(), predicted, e.Cam.Left, t.FrameWidth, t.FrameHeight, params.MinLandmarks)

	// Locations/PCLCenters/RotAngle must stay positionally parallel to
	// Poses/ImgIDs regardless of InView, matched or not.
	t.Locations = append(t.Locations, egoPose.Apply(predicted.Translation()))
	t.PCLCenters = append(t.PCLCenters, medianObjectCentroid(t))
	if len(t.Poses) >= 2 {
		t.RotAngle = append(t.RotAngle, motion.RotationAngle(t.Poses[len(t.Poses)-2], predicted))
	} else {
		t.RotAngle = append(t.RotAngle, 0)
	}
}

// applyLifecycleRules implements §4.10 step 5/6: deactivate tracks past
// their badly-tracked threshold. Deactivated tracks stay in the registry,
// where Registry.Graveyard lists every inactive track; no track is
// discarded here, whatever its number of poses.
func (e *Engine) applyLifecycleRules() {
	for _, t := range e.Registry.All() {
		if !t.Active {
			continue
		}
		if t.IsBadlyTracked(e.Cfg.KeepTrackForNFramesAfterLost) {
			t.Deactivate()
		}
	}
}

// Package assoc implements §4.9's three-stage association engine: PnP +
// appearance scoring, 2D-tracker corroboration, and a pure-3D-distance
// fallback, each resolved via maximum-weight bipartite matching.
//
// The weight-matrix padding/solve pattern (pad a rectangular cost matrix to
// square, run arthurkushman/go-hungarian's SolveMax, unpack its
// map[int]map[int]float64 result back into index pairs) is lifted directly
// from the teacher's ByteTracker.performMatching.
package assoc

import (
	"math"

	"github.com/arthurkushman/go-hungarian"
	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/pnp"
	"github.com/bamot-go/bamot/internal/track"
)

// Detection is one frame's incoming stereo detection: its class, median
// triangulated world-frame position, left-image features, and (possibly
// remapped) external 2D-tracker id.
type Detection struct {
	Index          int
	Class          classparams.Class
	MedianWorldPos geom.Point3
	Features       []pnp.Correspondence // 2D-3D pairs for Stage A's PnP; one list per detection, not per (detection,track) pair. mot.Engine.Step leaves it empty, so Stage A scores no pair there
	ExternalID     track.ID
	HasExternalID  bool
}

// TrustMode controls how much weight Stage B's 2D-tracker corroboration
// carries, mirroring the original TRUST_2D config option.
type TrustMode int

const (
	TrustYes TrustMode = iota
	TrustNo
	TrustCorroborate
)

// Match pairs a detection index with the track ID it was assigned to, plus
// the PnP pose computed for it in Stage A so process-match can reuse it
// without recomputing.
type Match struct {
	DetectionIndex int
	TrackID        track.ID
	PnPPose        geom.Transform
	HasPnPPose     bool
}

// Input bundles everything Improve needs for one frame's association pass.
type Input struct {
	Detections    []Detection
	Active        []*track.ObjectTrack
	Graveyard     []*track.ObjectTrack
	Remap         map[track.ID]track.ID
	Trust         TrustMode
	Cam           geom.Intrinsics
	FrameRate     float64
	ImgW, ImgH    int
	ClassParams   classparams.Table
	NextID        func() track.ID

	// Baseline is the stereo rig's baseline (StereoCamera.Baseline()), and
	// MaxMaxDistMultiplier caps the §4.8 gate's distance-badly-tracked
	// product, mirroring the real values process-match uses for the same
	// track so association and process-match agree on the gate.
	Baseline             float64
	MaxMaxDistMultiplier float64
}

// Output is the association result: resolved matches, the set of detection
// indices that found no track, and the set of tracks left unmatched.
type Output struct {
	Matches          []Match
	UnmatchedDetects []int
	UnmatchedTracks  []*track.ObjectTrack
}

// Improve runs the full three-stage §4.9 pipeline.
func Improve(in Input) Output {
	matchedTrack := make(map[track.ID]bool, len(in.Active))
	matchedDet := make(map[int]bool, len(in.Detections))
	var matches []Match

	notInView := make(map[track.ID]bool)
	stageAMatches, stageAPoses := stageA(in, matchedTrack, matchedDet, notInView)
	matches = append(matches, stageAMatches...)

	if in.Trust != TrustNo {
		stageBMatches := stageB(in, matchedTrack, matchedDet, notInView)
		matches = append(matches, stageBMatches...)
	}

	stageCMatches := stageC(in, matchedTrack, matchedDet)
	matches = append(matches, stageCMatches...)

	for i, m := range matches {
		if pose, ok := stageAPoses[m.DetectionIndex]; ok {
			matches[i].PnPPose = pose
			matches[i].HasPnPPose = true
		}
	}

	if in.Trust == TrustNo {
		for _, d := range in.Detections {
			if !matchedDet[d.Index] {
				id := in.NextID()
				matches = append(matches, Match{DetectionIndex: d.Index, TrackID: id})
				matchedDet[d.Index] = true
			}
		}
	}

	var unmatchedDets []int
	for _, d := range in.Detections {
		if !matchedDet[d.Index] {
			unmatchedDets = append(unmatchedDets, d.Index)
		}
	}
	var unmatchedTracks []*track.ObjectTrack
	for _, t := range in.Active {
		if !matchedTrack[t.ID] {
			unmatchedTracks = append(unmatchedTracks, t)
		}
	}

	return Output{Matches: matches, UnmatchedDetects: unmatchedDets, UnmatchedTracks: unmatchedTracks}
}

func worldDistance(a, b geom.Point3) float64 {
	return a.Sub(b).Norm()
}

// solveMaxWeight pads a rectangular reward matrix to square and runs
// arthurkushman/go-hungarian's maximum-weight solver, discarding any
// assignment whose reward is not strictly positive (a zero-padding cell or
// an explicitly excluded pair).
func solveMaxWeight(rewards [][]float64) [][2]int {
	rows := len(rewards)
	if rows == 0 {
		return nil
	}
	cols := len(rewards[0])
	size := rows
	if cols > size {
		size = cols
	}
	padded := make([][]float64, size)
	for i := 0; i < size; i++ {
		padded[i] = make([]float64, size)
		if i < rows {
			copy(padded[i], rewards[i])
		}
	}
	assignment := hungarian.SolveMax(padded)
	out := make([][2]int, 0, len(assignment))
	for r, rowMap := range assignment {
		if r >= rows {
			continue
		}
		for c, weight := range rowMap {
			if c >= cols {
				continue
			}
			if weight > 0 {
				out = append(out, [2]int{r, c})
			}
		}
	}
	return out
}

func maxDistanceForGate(t *track.ObjectTrack, params classparams.Params, cam geom.Intrinsics, frameRate, baseline float64, maxMult float64) float64 {
	maxSpeed := params.MaxSpeed
	minSpeed := maxSpeed / 10
	speed := math.Max(maxSpeed, minSpeed)
	maxTranslation := speed / frameRate
	distFactor := math.Max(1, t.DistFromCam/(40*baseline))
	product := (0.75*float64(t.BadlyTrackedFrames) + 1) * distFactor
	if maxMult > 0 && product > maxMult {
		product = maxMult
	}
	return product * maxTranslation
}

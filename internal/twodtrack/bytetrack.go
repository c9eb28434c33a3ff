package twodtrack

import (
	"fmt"

	"github.com/arthurkushman/go-hungarian"
	"github.com/google/uuid"
)

// MatchingAlgorithm selects the assignment strategy ByteTracker uses once
// an IoU matrix is built.
type MatchingAlgorithm uint16

const (
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	MatchingAlgorithmGreedy
)

// ByteTracker is a two-stage (high-then-low confidence) IoU tracker in the
// style of ByteTrack, generic over the blob type B.
type ByteTracker[B Blob[B]] struct {
	maxDisappeared int
	minIoU         float64
	highThresh     float64
	lowThresh      float64
	algorithm      MatchingAlgorithm
	Objects        map[uuid.UUID]B
}

// NewByteTracker builds a ByteTracker with explicit parameters.
func NewByteTracker[B Blob[B]](maxDisappeared int, minIoU, highThresh, lowThresh float64, algorithm MatchingAlgorithm) *ByteTracker[B] {
	return &ByteTracker[B]{
		maxDisappeared: maxDisappeared,
		minIoU:         minIoU,
		highThresh:     highThresh,
		lowThresh:      lowThresh,
		algorithm:      algorithm,
		Objects:        make(map[uuid.UUID]B),
	}
}

// DefaultByteTracker builds a ByteTracker with conservative defaults.
func DefaultByteTracker[B Blob[B]]() *ByteTracker[B] {
	return NewByteTracker[B](5, 0.3, 0.5, 0.3, MatchingAlgorithmHungarian)
}

type bboxPair struct {
	ID   uuid.UUID
	BBox Rectangle
}

// MatchObjects matches this frame's detections against existing tracks,
// activating new tracks for unmatched high-confidence detections and aging
// out tracks that have disappeared for too long. It returns the track ID
// each input detection index ended up assigned to (new or existing);
// low-confidence detections that matched nothing are absent from the map.
func (bt *ByteTracker[B]) MatchObjects(detections []B, confidences []float64) (map[int]uuid.UUID, error) {
	if len(detections) != len(confidences) {
		return nil, fmt.Errorf("twodtrack: %d detections but %d confidences", len(detections), len(confidences))
	}

	for _, t := range bt.Objects {
		t.PredictNextPosition()
	}

	activeTrackIDs := make([]uuid.UUID, 0)
	activeTrackBBoxes := make([]bboxPair, 0)
	for id, t := range bt.Objects {
		if t.GetNoMatchTimes() < bt.maxDisappeared {
			activeTrackIDs = append(activeTrackIDs, id)
			activeTrackBBoxes = append(activeTrackBBoxes, bboxPair{ID: id, BBox: t.GetPredictedBBox()})
		}
	}

	matchedTracks := make(map[uuid.UUID]struct{})
	matchedDetections := make(map[int]struct{})
	assignments := make(map[int]uuid.UUID)

	highDetectionIndices := make([]int, 0)
	for i, conf := range confidences {
		if conf >= bt.highThresh {
			highDetectionIndices = append(highDetectionIndices, i)
		}
	}
	if len(activeTrackBBoxes) > 0 && len(highDetectionIndices) > 0 {
		iouMatrix := bt.createIoUMatrix(activeTrackBBoxes, highDetectionIndices, detections)
		matches := bt.performMatching(iouMatrix, activeTrackBBoxes, highDetectionIndices)
		if err := bt.processMatches(matches, activeTrackBBoxes, highDetectionIndices, iouMatrix, detections, matchedTracks, matchedDetections, assignments); err != nil {
			return nil, fmt.Errorf("twodtrack: stage 1: %w", err)
		}
	}

	unmatchedTrackBBoxes := make([]bboxPair, 0)
	for _, id := range activeTrackIDs {
		if _, found := matchedTracks[id]; !found {
			if t, ok := bt.Objects[id]; ok {
				unmatchedTrackBBoxes = append(unmatchedTrackBBoxes, bboxPair{ID: id, BBox: t.GetPredictedBBox()})
			}
		}
	}
	lowDetectionIndices := make([]int, 0)
	for i, conf := range confidences {
		if _, found := matchedDetections[i]; !found && conf < bt.highThresh && conf >= bt.lowThresh {
			lowDetectionIndices = append(lowDetectionIndices, i)
		}
	}
	if len(unmatchedTrackBBoxes) > 0 && len(lowDetectionIndices) > 0 {
		iouMatrix := bt.createIoUMatrix(unmatchedTrackBBoxes, lowDetectionIndices, detections)
		matches := bt.performMatching(iouMatrix, unmatchedTrackBBoxes, lowDetectionIndices)
		if err := bt.processMatches(matches, unmatchedTrackBBoxes, lowDetectionIndices, iouMatrix, detections, matchedTracks, matchedDetections, assignments); err != nil {
			return nil, fmt.Errorf("twodtrack: stage 2: %w", err)
		}
	}

	for _, detIdx := range highDetectionIndices {
		if _, found := matchedDetections[detIdx]; !found {
			newBlob := detections[detIdx]
			newBlob.Activate()
			bt.Objects[newBlob.GetID()] = newBlob
			assignments[detIdx] = newBlob.GetID()
		}
	}

	for id, t := range bt.Objects {
		if _, found := matchedTracks[id]; !found {
			t.IncNoMatch()
		}
	}
	for id, t := range bt.Objects {
		if t.GetNoMatchTimes() >= bt.maxDisappeared {
			delete(bt.Objects, id)
		}
	}
	return assignments, nil
}

// GetActiveTracks returns every track still within maxDisappeared misses.
func (bt *ByteTracker[B]) GetActiveTracks() []B {
	out := make([]B, 0, len(bt.Objects))
	for _, t := range bt.Objects {
		if t.GetNoMatchTimes() < bt.maxDisappeared {
			out = append(out, t)
		}
	}
	return out
}

func (bt *ByteTracker[B]) createIoUMatrix(trackBBoxes []bboxPair, detectionIndices []int, allDetections []B) [][]float64 {
	m := make([][]float64, len(trackBBoxes))
	for i, trk := range trackBBoxes {
		row := make([]float64, len(detectionIndices))
		for j, detIdx := range detectionIndices {
			row[j] = IoU(trk.BBox, allDetections[detIdx].GetBBox())
		}
		m[i] = row
	}
	return m
}

func (bt *ByteTracker[B]) performMatching(iouMatrix [][]float64, trackBBoxes []bboxPair, detectionIndices []int) [][2]int {
	switch bt.algorithm {
	case MatchingAlgorithmHungarian:
		if len(trackBBoxes) == 0 || len(detectionIndices) == 0 {
			return [][2]int{}
		}
		numTracks, numDetections := len(trackBBoxes), len(detectionIndices)
		paddedSize := maxInt(numTracks, numDetections)
		padded := make([][]float64, paddedSize)
		for i := 0; i < paddedSize; i++ {
			padded[i] = make([]float64, paddedSize)
		}
		for i := 0; i < numTracks; i++ {
			copy(padded[i][:numDetections], iouMatrix[i])
		}
		assignments := hungarian.SolveMax(padded)
		matches := make([][2]int, 0)
		for trackIndex, row := range assignments {
			for detIdx := range row {
				if trackIndex < numTracks && detIdx < numDetections {
					matches = append(matches, [2]int{trackIndex, detIdx})
				}
				break
			}
		}
		return matches
	default:
		return bt.performGreedyMatching(iouMatrix, trackBBoxes, detectionIndices)
	}
}

func (bt *ByteTracker[B]) performGreedyMatching(iouMatrix [][]float64, trackBBoxes []bboxPair, detectionIndices []int) [][2]int {
	matches := make([][2]int, 0)
	claimed := make(map[int]struct{})
	for i := range trackBBoxes {
		best, bestJ := -1.0, -1
		for j := range detectionIndices {
			if _, found := claimed[j]; found {
				continue
			}
			if iouMatrix[i][j] > best && iouMatrix[i][j] >= bt.minIoU {
				best, bestJ = iouMatrix[i][j], j
			}
		}
		if bestJ != -1 {
			matches = append(matches, [2]int{i, bestJ})
			claimed[bestJ] = struct{}{}
		}
	}
	return matches
}

func (bt *ByteTracker[B]) processMatches(matches [][2]int, trackBBoxes []bboxPair, detectionIndices []int, iouMatrix [][]float64, allDetections []B, matchedTracks map[uuid.UUID]struct{}, matchedDetections map[int]struct{}, assignments map[int]uuid.UUID) error {
	for _, match := range matches {
		trackIdx, detIdx := match[0], match[1]
		if iouMatrix[trackIdx][detIdx] < bt.minIoU {
			continue
		}
		trackID := trackBBoxes[trackIdx].ID
		originalDetIdx := detectionIndices[detIdx]
		t, ok := bt.Objects[trackID]
		if !ok {
			continue
		}
		if err := t.Update(allDetections[originalDetIdx]); err != nil {
			return fmt.Errorf("track %s: %w", trackID, err)
		}
		t.ResetNoMatch()
		matchedTracks[trackID] = struct{}{}
		matchedDetections[originalDetIdx] = struct{}{}
		assignments[originalDetIdx] = trackID
	}
	return nil
}

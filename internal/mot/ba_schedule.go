package mot

import (
	"github.com/bamot-go/bamot/internal/ba"
	"github.com/bamot-go/bamot/internal/track"
)

// rebalanceBASlots implements §4.10 step 1: clear slot assignments and
// redistribute active tracks across BAEveryNSteps slots by lowest current
// load, so a track's BA frequency stays roughly even regardless of churn.
func (e *Engine) rebalanceBASlots(imgID uint64) {
	e.baSlotLoad = make(map[int]int)
	e.baSlotOf = make(map[track.ID]int)
	slots := e.Cfg.BAEveryNSteps
	if slots <= 0 {
		slots = 1
	}
	for _, t := range e.Registry.Active() {
		best := 0
		for s := 1; s < slots; s++ {
			if e.baSlotLoad[s] < e.baSlotLoad[best] {
				best = s
			}
		}
		e.baSlotOf[t.ID] = best
		e.baSlotLoad[best]++
	}
}

// isBASlot reports whether track id's assigned slot matches this frame's
// slot (img_id mod BAEveryNSteps).
func (e *Engine) isBASlot(id track.ID, imgID uint64) bool {
	slots := e.Cfg.BAEveryNSteps
	if slots <= 0 {
		slots = 1
	}
	frameSlot := int(imgID % uint64(slots))
	slot, ok := e.baSlotOf[id]
	return ok && slot == frameSlot
}

// runBundleAdjustment builds a ba.Window over a track's last
// SlidingWindowBA poses and all landmarks, runs the optimizer, and writes
// the refined poses/landmark positions back onto the track. Landmark
// identity (map keys) is untouched; only the Point field of each entry the
// window covers is overwritten, preserving §8's "BA never changes the
// number of landmarks nor their ids" invariant.
func (e *Engine) runBundleAdjustment(t *track.ObjectTrack) {
	window, landmarkIDs, poseOffset := buildWindow(t, e.Cfg.SlidingWindowBA, e.Cam)
	if len(window.Poses) == 0 {
		return
	}
	result := ba.Optimize(window, ba.DefaultOptions())
	for i, pose := range result.Poses {
		t.Poses[poseOffset+i] = pose
	}
	for i, id := range landmarkIDs {
		if lm, ok := t.Landmarks[id]; ok {
			lm.Point = result.Landmarks[i]
		}
	}
}

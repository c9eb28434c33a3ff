// Package pipeline implements §5's producer/MOT-core/writer pipeline and
// §6's external interfaces: bounded queues connecting a stereo-image +
// detection producer, an ego-pose source, the mot.Engine frame step, and a
// set of optional output queues, plus the end-of-run trajectory
// computation.
package pipeline

import (
	"context"
	"log"
	"os"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/mot"
	"github.com/bamot-go/bamot/internal/track"
	"github.com/pkg/errors"
)

var logger = log.New(os.Stderr, "CORE:PIPELINE ", log.LstdFlags)

// FrameInput is one frame's producer output: the stereo image and that
// frame's detections, tagged with the frame's img_id.
type FrameInput struct {
	ImgID       uint64
	Image       StereoImage
	Detections  []mot.Detection
}

// EgoPoseBatch is one ego-pose-queue message: the full ordered list of
// world-frame camera poses from frame 0 up to and including the current
// frame, per §6's "full ordered list" contract.
type EgoPoseBatch []geom.Transform

// Runner drives the mot.Engine across a frame stream, publishing §6's
// output queues and respecting the §5 stop/step/continuous-until control
// surface.
type Runner struct {
	Engine *mot.Engine
	Cfg    config.Config

	Flags *ControlFlags

	SharedData  chan SharedDataRecord
	TwoDWriter  chan TwoDWriterRecord
	ThreeDWriter chan ThreeDWriterRecord
	OBBWriter   chan OBBWriterRecord

	pointCloudSizes map[track.ID][]int
}

// NewRunner builds a Runner with §6's four output queues sized to
// queueDepth, all driven by the same Engine.
func NewRunner(engine *mot.Engine, cfg config.Config, queueDepth int) *Runner {
	return &Runner{
		Engine:          engine,
		Cfg:             cfg,
		Flags:           NewControlFlags(),
		SharedData:      make(chan SharedDataRecord, queueDepth),
		TwoDWriter:      make(chan TwoDWriterRecord, queueDepth),
		ThreeDWriter:    make(chan ThreeDWriterRecord, queueDepth),
		OBBWriter:       make(chan OBBWriterRecord, queueDepth),
		pointCloudSizes: make(map[track.ID][]int),
	}
}

// Run drains frames in ascending img_id order, synchronizing each frame on
// a blocking take from egoPoses before calling Engine.Step, publishing §6's
// output queues, and flushing end-of-stream sentinels to all of them on
// exit (stop flag set or frames exhausted). It returns the end-of-run
// trajectory result described in §6.
//
// Per §5, cancellation has no mid-frame effect: ctx is only consulted at
// frame boundaries (the pose take, the step gate, and queue publishes).
func (r *Runner) Run(ctx context.Context, frames <-chan FrameInput, egoPoses <-chan EgoPoseBatch) (*TrajectoryResult, error) {
	defer r.flushSentinels()

	var lastPoses EgoPoseBatch
	for frame := range frames {
		if r.Flags.Stopped() {
			break
		}
		if err := r.Flags.awaitStep(ctx, frame.ImgID); err != nil {
			return nil, err
		}

		select {
		case batch, ok := <-egoPoses:
			if !ok {
				return nil, errors.Errorf("pipeline: ego-pose queue closed before img %d", frame.ImgID)
			}
			lastPoses = batch
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if int(frame.ImgID) >= len(lastPoses) {
			return nil, errors.Errorf("pipeline: no ego pose for img %d", frame.ImgID)
		}
		currentPose := lastPoses[frame.ImgID]

		if r.Cfg.TrackPointCloudSizes {
			for _, t := range r.Engine.Registry.Active() {
				r.pointCloudSizes[t.ID] = append(r.pointCloudSizes[t.ID], len(t.Landmarks))
			}
		}

		result, err := r.Engine.Step(ctx, frame.ImgID, currentPose, frame.Detections)
		if err != nil {
			logger.Printf("img %d: step failed: %v", frame.ImgID, err)
			r.Flags.Stop()
			break
		}

		if err := r.publish(ctx, frame, currentPose, result); err != nil {
			return nil, err
		}
	}

	return r.finalize(lastPoses), nil
}

func (r *Runner) publish(ctx context.Context, frame FrameInput, currentPose geom.Transform, result mot.StepResult) error {
	var allLeft, allRight []feature.Feature
	var allMatches []feature.Match
	for _, d := range frame.Detections {
		allLeft = append(allLeft, d.LeftFeatures...)
		allRight = append(allRight, d.RightFeatures...)
		allMatches = append(allMatches, d.StereoMatches...)
	}

	record := SharedDataRecord{
		ObjectTracks:     result.Tracks,
		StereoImage:      frame.Image,
		AllLeftFeatures:  allLeft,
		AllRightFeatures: allRight,
		AllStereoMatches: allMatches,
		ImgID:            frame.ImgID,
		CurrentCamPose:   currentPose,
	}
	select {
	case r.SharedData <- record:
	case <-ctx.Done():
		return ctx.Err()
	}

	eligible := make([]*track.ObjectTrack, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		if eligibleForWriters(t) {
			eligible = append(eligible, t)
		}
	}

	if r.Cfg.SaveUpdated2DTrack {
		ids := make([]track.ID, 0, len(eligible))
		classes := make([]classparams.Class, 0, len(eligible))
		masks := make([]geom.Mask, 0, len(eligible))
		for _, t := range eligible {
			ids = append(ids, t.ID)
			classes = append(classes, t.Class)
			masks = append(masks, t.Masks[len(t.Masks)-1].Left)
		}
		rec := TwoDWriterRecord{TrackIDs: ids, ImgID: frame.ImgID, ObjectClasses: classes, Masks: masks}
		select {
		case r.TwoDWriter <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Cfg.Save3DTrack {
		rec := ThreeDWriterRecord{WorldCamPose: currentPose, Tracks: eligible, ImgID: frame.ImgID}
		select {
		case r.ThreeDWriter <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.Cfg.SaveOBBData {
		rec := OBBWriterRecord{Tracks: eligible, ImgID: frame.ImgID, WorldCamPose: currentPose}
		select {
		case r.OBBWriter <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runner) flushSentinels() {
	r.SharedData <- SharedDataRecord{Done: true}
	r.TwoDWriter <- TwoDWriterRecord{Done: true}
	r.ThreeDWriter <- ThreeDWriterRecord{Done: true}
	r.OBBWriter <- OBBWriterRecord{Done: true}
}

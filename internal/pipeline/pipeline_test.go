package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/bamot-go/bamot/internal/classparams"
	"github.com/bamot-go/bamot/internal/config"
	"github.com/bamot-go/bamot/internal/feature"
	"github.com/bamot-go/bamot/internal/geom"
	"github.com/bamot-go/bamot/internal/mot"
	"github.com/stretchr/testify/require"
)

type noopMatcher struct{}

func (noopMatcher) Detect(feature.Image, feature.Mask, uint64, uint64, feature.Side) ([]feature.Feature, error) {
	return nil, nil
}

func (noopMatcher) Match(a, b []feature.Feature) ([]feature.Match, error) { return nil, nil }

func testEngine() *mot.Engine {
	cfg := config.Default()
	intr := geom.Intrinsics{Fx: 700, Fy: 700, Cx: 320, Cy: 240}
	cam := geom.StereoCamera{
		Left:  intr,
		Right: intr,
		TLeftRight: geom.FromRowMajor4x4([16]float64{
			1, 0, 0, 0.5,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
	}
	classParams := classparams.NewTable(cfg.MaxSpeedCar, cfg.MaxSpeedPed, cfg.ClusterRadiusCar, cfg.ClusterRadiusPed, cfg.MinLandmarksCar, cfg.MinLandmarksPed)
	return mot.NewEngine(cfg, classParams, cam, noopMatcher{})
}

// TestRunEmitsOneSharedDataRecordPerEmptyFrame implements boundary scenario
// 1: ten frames with no detections produce ten shared-data records with
// empty object_tracks, then an end-of-stream sentinel.
func TestRunEmitsOneSharedDataRecordPerEmptyFrame(t *testing.T) {
	runner := NewRunner(testEngine(), config.Default(), 16)

	frames := make(chan FrameInput, 10)
	poses := make(chan EgoPoseBatch, 10)
	allPoses := make(EgoPoseBatch, 10)
	for i := range allPoses {
		allPoses[i] = geom.Identity()
	}
	for i := 0; i < 10; i++ {
		frames <- FrameInput{ImgID: uint64(i)}
		poses <- allPoses
	}
	close(frames)

	done := make(chan struct{})
	var result *TrajectoryResult
	var runErr error
	go func() {
		result, runErr = runner.Run(context.Background(), frames, poses)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		select {
		case rec := <-runner.SharedData:
			require.False(t, rec.Done)
			require.Empty(t, rec.ObjectTracks)
			require.Equal(t, uint64(i), rec.ImgID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for shared-data record %d", i)
		}
	}

	select {
	case rec := <-runner.SharedData:
		require.True(t, rec.Done)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for end-of-stream sentinel")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	require.NoError(t, runErr)
	require.NotNil(t, result)
}

// TestRunStopsAtStopFlag ensures the loop exits before consuming further
// frames once Stop has been called, and still flushes sentinels.
func TestRunStopsAtStopFlag(t *testing.T) {
	runner := NewRunner(testEngine(), config.Default(), 4)
	runner.Flags.Stop()

	frames := make(chan FrameInput, 1)
	poses := make(chan EgoPoseBatch, 1)
	frames <- FrameInput{ImgID: 0}
	poses <- EgoPoseBatch{geom.Identity()}
	close(frames)

	result, err := runner.Run(context.Background(), frames, poses)
	require.NoError(t, err)
	require.NotNil(t, result)

	select {
	case rec := <-runner.SharedData:
		require.True(t, rec.Done)
	default:
		t.Fatal("expected a flushed sentinel on the shared-data queue")
	}
}

func TestControlFlagsAwaitStepGatesPastContinuousUntil(t *testing.T) {
	flags := NewControlFlags()
	flags.SetContinuousUntil(0)

	done := make(chan error, 1)
	go func() {
		done <- flags.awaitStep(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatal("expected awaitStep to block past continuous_until_img_id")
	case <-time.After(50 * time.Millisecond):
	}

	flags.Step()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected Step to release the gate")
	}
}

func TestControlFlagsAwaitStepNeverGatesWhenFullyContinuous(t *testing.T) {
	flags := NewControlFlags()
	err := flags.awaitStep(context.Background(), 1000)
	require.NoError(t, err)
}

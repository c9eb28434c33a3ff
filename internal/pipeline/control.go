package pipeline

import (
	"context"
	"sync/atomic"
)

// ControlFlags are the §6 control inputs shared between a run's caller and
// the run loop: a stop request, a single-step release, and the frame id up
// to which the loop runs without waiting for Step.
type ControlFlags struct {
	stop            atomic.Bool
	step            chan struct{}
	continuousUntil atomic.Int64 // -1 means fully continuous, per §6
}

// NewControlFlags returns flags in fully-continuous mode (the default a run
// started without any stepping needs).
func NewControlFlags() *ControlFlags {
	c := &ControlFlags{step: make(chan struct{}, 1)}
	c.continuousUntil.Store(-1)
	return c
}

// Stop requests the run loop exit at the top of its next frame.
func (c *ControlFlags) Stop() {
	c.stop.Store(true)
}

// Stopped reports whether Stop has been called.
func (c *ControlFlags) Stopped() bool {
	return c.stop.Load()
}

// Step releases one frame when the loop is paused waiting past
// ContinuousUntil. Non-blocking: a Step call with no waiter queues one
// release for the loop's next gate check.
func (c *ControlFlags) Step() {
	select {
	case c.step <- struct{}{}:
	default:
	}
}

// SetContinuousUntil sets the frame id up to and including which the loop
// runs without gating on Step. Pass -1 to run fully continuously.
func (c *ControlFlags) SetContinuousUntil(imgID int64) {
	c.continuousUntil.Store(imgID)
}

// awaitStep blocks until either ctx is done or a step release is available,
// when imgID has outrun ContinuousUntil. A continuousUntil of -1 never
// gates.
func (c *ControlFlags) awaitStep(ctx context.Context, imgID uint64) error {
	until := c.continuousUntil.Load()
	if until == -1 || int64(imgID) <= until {
		return nil
	}
	select {
	case <-c.step:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

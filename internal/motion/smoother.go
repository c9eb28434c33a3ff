package motion

import (
	kalman_filter "github.com/LdDl/kalman-filter"
)

// Smoother is an opt-in stabilizer over the raw predicted/PnP-accepted
// pose stream, backed by the teacher's LdDl/kalman-filter 2D constant-
// velocity filter (the same Kalman2D the teacher's SimpleBlob wraps for
// center-position tracking). §4.7's estimate_next_pose is the model the
// pipeline uses; no config option or caller in this module wires Smoother
// in.
type Smoother struct {
	kf *kalman_filter.Kalman2D
}

// NewSmoother seeds a smoother at an initial world-frame XY location, dt
// the expected per-frame time step.
func NewSmoother(x, y, dt float64) *Smoother {
	ux, uy := 1.0, 1.0
	stdDevA, stdDevMx, stdDevMy := 2.0, 0.1, 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(x, y))
	return &Smoother{kf: kf}
}

// Update folds a new observed XY position into the filter and returns the
// filtered state estimate.
func (s *Smoother) Update(x, y float64) (float64, float64, error) {
	s.kf.Predict()
	if err := s.kf.Update(x, y); err != nil {
		return 0, 0, err
	}
	return s.kf.GetState()
}

// Predict advances the filter one step without a new observation, the path
// taken when a frame's pose came from prediction rather than PnP/BA.
func (s *Smoother) Predict() (float64, float64) {
	s.kf.Predict()
	return s.kf.GetState()
}

// Package config loads the closed configuration option set §6 defines,
// using BurntSushi/toml the way the teacher's sibling repos in the
// retrieval pack (the miface/gocv camera-capture tooling) load their TOML
// settings files.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the full closed option set from §6.
type Config struct {
	MaxDist              float64 `toml:"max_dist"`
	FrameRate            float64 `toml:"frame_rate"`
	MaxSpeedCar          float64 `toml:"max_speed_car"`
	MaxSpeedPed          float64 `toml:"max_speed_ped"`
	MaxMaxDistMultiplier float64 `toml:"max_max_dist_multiplier"`
	ClusterRadiusCar     float64 `toml:"cluster_radius_car"`
	ClusterRadiusPed     float64 `toml:"cluster_radius_ped"`
	UsingMedianCluster   bool    `toml:"using_median_cluster"`
	MADScaleFactor       float64 `toml:"mad_scale_factor"`
	MinLandmarksCar      int     `toml:"min_landmarks_car"`
	MinLandmarksPed      int     `toml:"min_landmarks_ped"`

	SlidingWindowBA          int `toml:"sliding_window_ba"`
	SlidingWindowDirVec      int `toml:"sliding_window_dir_vec"`
	SlidingWindowDescriptors int `toml:"sliding_window_descriptors"`
	BAEveryNSteps            int `toml:"ba_every_n_steps"`
	KeepTrackForNFramesAfterLost int `toml:"keep_track_for_n_frames_after_lost"`

	Trust2D            string `toml:"trust_2d"` // "no" | "partial" | "yes"
	ForceNewDetections bool   `toml:"force_new_detections"`
	FinalFullBA        bool   `toml:"final_full_ba"`

	SaveUpdated2DTrack  bool `toml:"save_updated_2d_track"`
	Save3DTrack         bool `toml:"save_3d_track"`
	SaveOBBData         bool `toml:"save_obb_data"`
	TrackPointCloudSizes bool `toml:"track_point_cloud_sizes"`
}

// Default returns the conservative defaults used throughout the original
// implementation's own default config, restated in the new option names.
func Default() Config {
	return Config{
		MaxDist:              50,
		FrameRate:            10,
		MaxSpeedCar:          30,
		MaxSpeedPed:          8,
		MaxMaxDistMultiplier: 10,
		ClusterRadiusCar:     3,
		ClusterRadiusPed:     1,
		UsingMedianCluster:   false,
		MADScaleFactor:       3,
		MinLandmarksCar:      10,
		MinLandmarksPed:      5,

		SlidingWindowBA:          10,
		SlidingWindowDirVec:      5,
		SlidingWindowDescriptors: 5,
		BAEveryNSteps:            3,
		KeepTrackForNFramesAfterLost: 30,

		Trust2D:            "partial",
		ForceNewDetections: false,
		FinalFullBA:        true,

		SaveUpdated2DTrack:   false,
		Save3DTrack:          false,
		SaveOBBData:          false,
		TrackPointCloudSizes: false,
	}
}

// Load reads and validates a TOML config file, filling any unset field
// with Default()'s value first so a config only needs to override what it
// changes.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: decode %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a config with structurally impossible values.
func (c Config) Validate() error {
	if c.FrameRate <= 0 {
		return errors.New("config: frame_rate must be positive")
	}
	if c.MaxDist <= 0 {
		return errors.New("config: max_dist must be positive")
	}
	switch c.Trust2D {
	case "no", "partial", "yes":
	default:
		return errors.Errorf("config: trust_2d must be one of no|partial|yes, got %q", c.Trust2D)
	}
	if c.BAEveryNSteps <= 0 {
		return errors.New("config: ba_every_n_steps must be positive")
	}
	return nil
}

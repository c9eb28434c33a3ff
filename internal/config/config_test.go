package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadTrust2D(t *testing.T) {
	cfg := Default()
	cfg.Trust2D = "maybe"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid trust_2d value")
	}
}

func TestValidateRejectsZeroFrameRate(t *testing.T) {
	cfg := Default()
	cfg.FrameRate = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero frame_rate")
	}
}

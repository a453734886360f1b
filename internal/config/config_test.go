package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultValidates ensures the stock configuration passes its own checks
func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

// TestLoadMissingFile returns defaults when no threshold file exists
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != Default() {
		t.Error("expected defaults for missing file")
	}
}

// TestLoadPartialOverride merges a partial YAML file over the defaults
func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	yaml := "intersection_threshold: 0.3\nmax_cycles: 7\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.IntersectionThreshold != 0.3 {
		t.Errorf("expected intersection_threshold 0.3, got %v", cfg.IntersectionThreshold)
	}
	if cfg.MaxCycles != 7 {
		t.Errorf("expected max_cycles 7, got %d", cfg.MaxCycles)
	}
	// Untouched fields keep their defaults
	if cfg.DirectThreshold != Default().DirectThreshold {
		t.Errorf("expected default direct_threshold, got %v", cfg.DirectThreshold)
	}
}

// TestValidateRejects covers the invariant checks
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ThresholdConfig)
	}{
		{"coherence above one", func(c *ThresholdConfig) { c.CoherenceThreshold = 1.5 }},
		{"negative intersection", func(c *ThresholdConfig) { c.IntersectionThreshold = -0.1 }},
		{"empty window", func(c *ThresholdConfig) { c.SatisfactionWindowMin = 0.7; c.SatisfactionWindowMax = 0.45 }},
		{"zero cycles", func(c *ThresholdConfig) { c.MaxCycles = 0 }},
		{"zero learning rate", func(c *ThresholdConfig) { c.LearningRate = 0 }},
		{"full decay", func(c *ThresholdConfig) { c.DecayRate = 1.0 }},
		{"shrinking kairos boost", func(c *ThresholdConfig) { c.KairosBoost = 0.5 }},
		{"no pattern capacity", func(c *ThresholdConfig) { c.MaxPatterns = 0 }},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

// TestSaveRoundTrip writes and reloads a tuned configuration
func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := Default()
	cfg.IntersectionThreshold = 1.5
	cfg.ConvergenceThreshold = 0.02
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip mismatch: %+v != %+v", loaded, cfg)
	}
}

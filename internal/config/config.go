// Package config holds the injectable threshold configuration for the
// response pipeline. Every gate and convergence constant lives here; nothing
// downstream hard-codes a tuning value.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ThresholdConfig collects the gate, convergence, and learning constants.
// A zero value is not usable; start from Default() and override.
type ThresholdConfig struct {
	// Nexus composer gates
	IntersectionThreshold float64 `yaml:"intersection_threshold"` // gate 1: min combined intensity
	CoherenceThreshold    float64 `yaml:"coherence_threshold"`    // gate 2: min 1-variance agreement
	SatisfactionWindowMin float64 `yaml:"satisfaction_window_min"`
	SatisfactionWindowMax float64 `yaml:"satisfaction_window_max"`
	EmissionReadinessMin  float64 `yaml:"emission_readiness_min"` // gate 4: min composite readiness

	// Emission strategy selection
	DirectThreshold float64 `yaml:"direct_threshold"`
	FusionThreshold float64 `yaml:"fusion_threshold"`
	KairosBoost     float64 `yaml:"kairos_boost"` // confidence multiplier while Kairos is up

	// Convergence engine
	MaxCycles            int     `yaml:"max_cycles"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"` // min |dE| treated as settled

	// Hebbian learning store
	LearningRate         float64 `yaml:"learning_rate"` // eta
	DecayRate            float64 `yaml:"decay_rate"`    // uniform per-turn decay on the coupling matrix
	MinPatternConfidence float64 `yaml:"min_pattern_confidence"`
	MaxPatterns          int     `yaml:"max_patterns"`
}

// Default returns the stock configuration. The intersection threshold has no
// canonical historical value; 1.0 requires two organs at moderate strength.
func Default() ThresholdConfig {
	return ThresholdConfig{
		IntersectionThreshold: 1.0,
		CoherenceThreshold:    0.4,
		SatisfactionWindowMin: 0.45,
		SatisfactionWindowMax: 0.70,
		EmissionReadinessMin:  0.5,
		DirectThreshold:       0.65,
		FusionThreshold:       0.50,
		KairosBoost:           1.5,
		MaxCycles:             5,
		ConvergenceThreshold:  0.1,
		LearningRate:          0.1,
		DecayRate:             0.01,
		MinPatternConfidence:  0.5,
		MaxPatterns:           10000,
	}
}

// Load reads a YAML threshold file over the defaults. A missing file is not an
// error: the defaults are returned so a fresh checkout runs without setup.
func Load(path string) (ThresholdConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read thresholds: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse thresholds: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML (used by the state inspector to dump
// the active tuning).
func (c ThresholdConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations that would break pipeline invariants.
func (c ThresholdConfig) Validate() error {
	unit := []struct {
		name  string
		value float64
	}{
		{"coherence_threshold", c.CoherenceThreshold},
		{"satisfaction_window_min", c.SatisfactionWindowMin},
		{"satisfaction_window_max", c.SatisfactionWindowMax},
		{"emission_readiness_min", c.EmissionReadinessMin},
		{"direct_threshold", c.DirectThreshold},
		{"fusion_threshold", c.FusionThreshold},
		{"convergence_threshold", c.ConvergenceThreshold},
		{"min_pattern_confidence", c.MinPatternConfidence},
	}
	for _, u := range unit {
		if u.value < 0 || u.value > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", u.name, u.value)
		}
	}

	if c.IntersectionThreshold < 0 {
		return fmt.Errorf("intersection_threshold must be >= 0, got %v", c.IntersectionThreshold)
	}
	if c.SatisfactionWindowMin >= c.SatisfactionWindowMax {
		return fmt.Errorf("satisfaction window is empty: [%v, %v]",
			c.SatisfactionWindowMin, c.SatisfactionWindowMax)
	}
	if c.MaxCycles < 1 {
		return fmt.Errorf("max_cycles must be >= 1, got %d", c.MaxCycles)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0,1], got %v", c.LearningRate)
	}
	if c.DecayRate < 0 || c.DecayRate >= 1 {
		return fmt.Errorf("decay_rate must be in [0,1), got %v", c.DecayRate)
	}
	if c.KairosBoost < 1 {
		return fmt.Errorf("kairos_boost must be >= 1, got %v", c.KairosBoost)
	}
	if c.MaxPatterns < 1 {
		return fmt.Errorf("max_patterns must be >= 1, got %d", c.MaxPatterns)
	}
	return nil
}

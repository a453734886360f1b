// Package emission picks the generation path for a settled turn: a direct
// single-nexus emission, a fusion of the top candidates, a nearest stored
// pattern, or the explicit empty emission. The empty emission is a valid
// outcome, never an error. Text here is a structured fragment; grammatical
// polish belongs to the downstream prompt builder.
package emission

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/field"
	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Confidence bands per strategy.
const (
	directConfidenceMin   = 0.7
	fusionConfidenceMin   = 0.5
	fusionConfidenceMax   = 0.7
	fallbackConfidenceMin = 0.4
	fallbackConfidenceMax = 0.6

	// Direct emission needs broad agreement, not just a strong pair.
	directMinParticipants = 3

	// How many top nexuses a fusion emission folds together.
	fusionCap = 3
)

// PatternReader is the slice of the learning store the selector needs for
// the fallback path.
type PatternReader interface {
	Query(activations map[string]float64, limit int) []*types.PatternMatch
}

// Selector maps a final candidate set to an emitted phrase.
type Selector struct {
	cfg *config.ThresholdConfig
}

// NewSelector creates a selector bound to the given thresholds.
func NewSelector(cfg *config.ThresholdConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select chooses the strategy for one turn. nexuses must be the composer's
// ranked output (readiness descending); results are the final cycle's organ
// readings, used to build the fallback query vector. patterns may be nil,
// which disables the fallback path. kairos multiplies the chosen confidence
// by the configured boost, capped at 1.
func (s *Selector) Select(nexuses []*types.Nexus, results []*types.OrganResult, kairos bool, patterns PatternReader) *types.EmittedPhrase {
	phrase := s.pick(nexuses, results, patterns)

	if kairos && phrase.Strategy != types.StrategyNone {
		phrase.Confidence = minf(1.0, phrase.Confidence*s.cfg.KairosBoost)
		phrase.KairosBoosted = true
	}

	logging.Info("emission", "Strategy %s, confidence %.3f (%d nexuses in)",
		phrase.Strategy, phrase.Confidence, len(nexuses))
	return phrase
}

func (s *Selector) pick(nexuses []*types.Nexus, results []*types.OrganResult, patterns PatternReader) *types.EmittedPhrase {
	if len(nexuses) == 0 {
		return s.fallbackOrNone(results, patterns)
	}

	top := nexuses[0]
	if top.EmissionReadiness >= s.cfg.DirectThreshold && len(top.Participants) >= directMinParticipants {
		return s.direct(top)
	}
	if top.EmissionReadiness >= s.cfg.FusionThreshold {
		return s.fuse(nexuses)
	}
	return s.fallbackOrNone(results, patterns)
}

// direct emits the single strongest nexus.
func (s *Selector) direct(n *types.Nexus) *types.EmittedPhrase {
	return &types.EmittedPhrase{
		ID:           uuid.NewString(),
		Text:         n.Atom,
		Strategy:     types.StrategyDirect,
		Confidence:   lerpRange(n.EmissionReadiness, s.cfg.DirectThreshold, 1.0, directConfidenceMin, 1.0),
		Participants: n.Participants,
		SourceAtoms:  []string{n.Atom},
		Timestamp:    time.Now(),
	}
}

// fuse folds the top-ranked nexuses into one moderate-confidence emission.
func (s *Selector) fuse(nexuses []*types.Nexus) *types.EmittedPhrase {
	take := len(nexuses)
	if take > fusionCap {
		take = fusionCap
	}

	atoms := make([]string, 0, take)
	participantSet := make(map[string]bool)
	for _, n := range nexuses[:take] {
		atoms = append(atoms, n.Atom)
		for _, p := range n.Participants {
			participantSet[p] = true
		}
	}
	participants := make([]string, 0, len(participantSet))
	for p := range participantSet {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	return &types.EmittedPhrase{
		ID:           uuid.NewString(),
		Text:         strings.Join(atoms, " + "),
		Strategy:     types.StrategyFusion,
		Confidence:   lerpRange(nexuses[0].EmissionReadiness, s.cfg.FusionThreshold, s.cfg.DirectThreshold, fusionConfidenceMin, fusionConfidenceMax),
		Participants: participants,
		SourceAtoms:  atoms,
		Timestamp:    time.Now(),
	}
}

// fallbackOrNone asks the pattern history for the nearest stored outcome.
// With no store or no match the turn ends in the explicit empty emission.
func (s *Selector) fallbackOrNone(results []*types.OrganResult, patterns PatternReader) *types.EmittedPhrase {
	if patterns != nil {
		query := OrganActivity(results)
		if matches := patterns.Query(query, 1); len(matches) > 0 {
			m := matches[0]
			return &types.EmittedPhrase{
				ID:         uuid.NewString(),
				Text:       m.Record.Output,
				Strategy:   types.StrategyFallback,
				Confidence: fallbackConfidenceMin + (fallbackConfidenceMax-fallbackConfidenceMin)*clamp01(m.Similarity),
				Timestamp:  time.Now(),
			}
		}
		logging.Debug("emission", "No stored pattern close enough, emitting none")
	}

	return &types.EmittedPhrase{
		ID:        uuid.NewString(),
		Strategy:  types.StrategyNone,
		Timestamp: time.Now(),
	}
}

// OrganActivity summarizes a cycle's results as one activation per organ:
// the peak of its weighted field. This is the vector stored patterns are
// matched against, and the activation map recorded for turns that emitted
// without a nexus.
func OrganActivity(results []*types.OrganResult) map[string]float64 {
	activity := make(map[string]float64, len(results))
	for _, res := range results {
		peak := 0.0
		for _, s := range field.Extract(res).Strengths {
			if s > peak {
				peak = s
			}
		}
		activity[res.Organ] = peak
	}
	return activity
}

// lerpRange maps value from [lo,hi] into [outLo,outHi], clamped.
func lerpRange(value, lo, hi, outLo, outHi float64) float64 {
	if hi <= lo {
		return outHi
	}
	t := clamp01((value - lo) / (hi - lo))
	return outLo + t*(outHi-outLo)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

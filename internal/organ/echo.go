package organ

import (
	"context"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganEcho detects recurrence: themes returning across cycles and turns.
const OrganEcho = "echo"

// Activation level for atoms carried over from the prior cycle. Below an
// exact keyword hit but above a partial one, so an echoed theme competes with
// fresh signal without drowning it.
const echoStrength = 0.55

var defaultEchoVocabulary = Vocabulary{
	"emergence": {"again", "returning", "back", "cycle", "pattern", "repeat"},
	"presence":  {"remain", "stay", "continue", "still here"},
	"grief":     {"anniversary", "reminded", "memory", "memories"},
	"repair":    {"second chance", "retry", "anew"},
}

// EchoOrgan is the ensemble's continuity sense. Past the first cycle it
// re-activates the prior cycle's nexus atoms, which is what lets the
// convergence loop actually settle instead of re-deriving the same reading.
type EchoOrgan struct {
	vocab Vocabulary
}

// NewEchoOrgan creates the echo organ.
func NewEchoOrgan(vocab Vocabulary) *EchoOrgan {
	return &EchoOrgan{vocab: resolveVocabulary(defaultEchoVocabulary, vocab)}
}

// Name implements Scorer.
func (o *EchoOrgan) Name() string { return OrganEcho }

// Score implements Scorer.
func (o *EchoOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)

	// Prior-cycle atoms echo directly, keyword match or not.
	priorRatio := 0.0
	if cycle != nil && len(cycle.PriorAtoms) > 0 {
		for _, atom := range cycle.PriorAtoms {
			if acts[atom] < echoStrength {
				acts[atom] = echoStrength
			}
		}
		priorRatio = 1.0
	}

	if len(acts) == 0 {
		return types.NeutralResult(OrganEcho), nil
	}

	coherence := readingCoherence(acts)
	if priorRatio > 0 {
		// An echoed reading is a confirmed reading.
		coherence = clamp01(coherence + 0.25)
	}

	lure := 0.1 + 0.4*maxActivation(acts) + 0.3*priorRatio
	if len(occ.KnownEntities) > 0 {
		lure += 0.1
	}

	var patterns []string
	if priorRatio > 0 {
		patterns = append(patterns, "recurrence")
	}

	return &types.OrganResult{
		Organ:       OrganEcho,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
		Patterns:    patterns,
	}, nil
}

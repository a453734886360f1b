package organ

import (
	"context"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganSomatic detects body-sensation language.
const OrganSomatic = "somatic"

var defaultSomaticVocabulary = Vocabulary{
	"holding":   {"tight", "tense", "clenched", "knot", "gripping", "holding", "stuck"},
	"release":   {"release", "relax", "soften", "loosen", "melt", "unwind", "let go"},
	"grief":     {"heavy", "heaviness", "chest", "throat", "lump", "tears", "crying"},
	"fear":      {"shaking", "trembling", "frozen", "racing", "sweating"},
	"breath":    {"breath", "breathe", "breathing", "sigh", "exhale", "inhale", "gasp"},
	"overwhelm": {"dizzy", "drowning", "crushing", "suffocating", "buzzing"},
	"stillness": {"still", "stillness", "calm", "settled", "grounded", "quiet"},
	"warmth":    {"glow", "soft", "open", "spacious", "light"},
	"numbness":  {"numb", "disconnected", "floating", "unreal", "detached"},
	"joy":       {"laughing", "smiling", "dancing", "energized", "tingling"},
}

// SomaticOrgan reads what the body is saying. First-person framing ("my
// chest", "I feel") raises its lure: felt sensation reported directly is a
// stronger signal than sensation described abstractly.
type SomaticOrgan struct {
	vocab Vocabulary
}

// NewSomaticOrgan creates the somatic organ.
func NewSomaticOrgan(vocab Vocabulary) *SomaticOrgan {
	return &SomaticOrgan{vocab: resolveVocabulary(defaultSomaticVocabulary, vocab)}
}

// Name implements Scorer.
func (o *SomaticOrgan) Name() string { return OrganSomatic }

// Score implements Scorer.
func (o *SomaticOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)
	if len(acts) == 0 {
		return types.NeutralResult(OrganSomatic), nil
	}

	boost := confirmationBoost(acts, cycle)
	coherence := clamp01(readingCoherence(acts) + 0.2*boost)

	lure := 0.15 + 0.5*maxActivation(acts) + 0.15*firstPersonMarkers(occ.Text) + 0.2*boost

	return &types.OrganResult{
		Organ:       OrganSomatic,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
	}, nil
}

// firstPersonMarkers scores how directly the speaker owns the sensation.
func firstPersonMarkers(text string) float64 {
	lower := " " + strings.ToLower(text) + " "
	score := 0.0
	for _, marker := range []string{" my ", " i feel", " i am ", " i'm ", " in me "} {
		if strings.Contains(lower, marker) {
			score += 0.4
		}
	}
	return clamp01(score)
}

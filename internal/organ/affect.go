package organ

import (
	"context"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganAffect detects emotional tone through feeling vocabulary.
const OrganAffect = "affect"

// defaultAffectVocabulary maps feeling keywords onto the shared atom space.
var defaultAffectVocabulary = Vocabulary{
	"grief":     {"sad", "sadness", "grief", "loss", "mourning", "miss", "missing", "tearful"},
	"longing":   {"longing", "yearning", "ache", "wish", "craving", "want"},
	"warmth":    {"warm", "warmth", "tender", "gentle", "fond", "love", "caring"},
	"fear":      {"afraid", "fear", "scared", "anxious", "worried", "dread", "panic"},
	"anger":     {"angry", "anger", "furious", "rage", "irritated", "resentful", "bitter"},
	"joy":       {"happy", "joy", "glad", "delighted", "excited", "grateful"},
	"overwhelm": {"overwhelmed", "too much", "drowning", "flooded", "swamped"},
	"numbness":  {"numb", "empty", "hollow", "flat", "blank"},
	"rupture":   {"betrayed", "wounded", "shattered", "broken", "hurt"},
}

// AffectOrgan reads emotional charge. Its lure rises with match strength and
// with intensity markers in the raw text.
type AffectOrgan struct {
	vocab Vocabulary
}

// NewAffectOrgan creates the affect organ, overlaying vocab on the built-in
// vocabulary when provided.
func NewAffectOrgan(vocab Vocabulary) *AffectOrgan {
	return &AffectOrgan{vocab: resolveVocabulary(defaultAffectVocabulary, vocab)}
}

// Name implements Scorer.
func (o *AffectOrgan) Name() string { return OrganAffect }

// Score implements Scorer.
func (o *AffectOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)
	if len(acts) == 0 {
		return types.NeutralResult(OrganAffect), nil
	}

	boost := confirmationBoost(acts, cycle)
	coherence := clamp01(readingCoherence(acts) + 0.2*boost)

	lure := 0.2 + 0.5*maxActivation(acts) + 0.1*intensityMarkers(occ.Text) + 0.2*boost

	var patterns []string
	if chargedAtoms(acts) >= 2 {
		patterns = append(patterns, "affect_surge")
	}

	return &types.OrganResult{
		Organ:       OrganAffect,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
		Patterns:    patterns,
	}, nil
}

// intensityMarkers scores amplifiers in the raw text: exclamation, repeated
// punctuation, intensifier adverbs.
func intensityMarkers(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	if strings.Contains(text, "!") {
		score += 0.5
	}
	for _, marker := range []string{"very", "really", "so ", "completely", "absolutely"} {
		if strings.Contains(lower, marker) {
			score += 0.25
		}
	}
	return clamp01(score)
}

// chargedAtoms counts atoms activated above a surge level.
func chargedAtoms(acts map[string]float64) int {
	n := 0
	for _, atom := range sortedAtoms(acts) {
		if acts[atom] >= 0.7 {
			n++
		}
	}
	return n
}

// maxActivation returns the strongest raw activation in the reading.
func maxActivation(acts map[string]float64) float64 {
	max := 0.0
	for _, atom := range sortedAtoms(acts) {
		if acts[atom] > max {
			max = acts[atom]
		}
	}
	return max
}

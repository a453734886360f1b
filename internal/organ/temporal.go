package organ

import (
	"context"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganTemporal detects time orientation: dwelling in the past, bracing for
// the future, or resting in the present.
const OrganTemporal = "temporal"

var defaultTemporalVocabulary = Vocabulary{
	"grief":     {"yesterday", "ago", "used to", "remember", "childhood", "once"},
	"emergence": {"beginning", "starting", "new", "tomorrow", "future", "becoming"},
	"holding":   {"always", "never", "forever", "same", "stuck"},
	"presence":  {"now", "today", "moment", "currently", "present"},
	"longing":   {"someday", "hope", "waiting", "until", "eventually"},
	"stillness": {"pause", "slow", "rest", "linger", "dwell"},
	"distance":  {"since", "absence", "interval"},
}

var pastMarkers = []string{"was", "were", "had", "did", "used to", "back then"}
var futureMarkers = []string{"will", "going to", "someday", "soon", "tomorrow"}

// TemporalOrgan reads where in time the occasion lives.
type TemporalOrgan struct {
	vocab Vocabulary
}

// NewTemporalOrgan creates the temporal organ.
func NewTemporalOrgan(vocab Vocabulary) *TemporalOrgan {
	return &TemporalOrgan{vocab: resolveVocabulary(defaultTemporalVocabulary, vocab)}
}

// Name implements Scorer.
func (o *TemporalOrgan) Name() string { return OrganTemporal }

// Score implements Scorer.
func (o *TemporalOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)
	if len(acts) == 0 {
		return types.NeutralResult(OrganTemporal), nil
	}

	boost := confirmationBoost(acts, cycle)
	coherence := clamp01(readingCoherence(acts) + 0.2*boost)

	lure := 0.15 + 0.5*maxActivation(acts) + 0.15*tenseMarkers(occ.Text) + 0.2*boost

	var patterns []string
	if tenseSplit(occ.Text) {
		patterns = append(patterns, "time_torn")
	}

	return &types.OrganResult{
		Organ:       OrganTemporal,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
		Patterns:    patterns,
	}, nil
}

// tenseMarkers scores explicit past/future anchoring in the raw text.
func tenseMarkers(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, m := range pastMarkers {
		if strings.Contains(lower, m) {
			score += 0.25
			break
		}
	}
	for _, m := range futureMarkers {
		if strings.Contains(lower, m) {
			score += 0.25
			break
		}
	}
	return clamp01(score)
}

// tenseSplit reports text pulled toward past and future at once.
func tenseSplit(text string) bool {
	lower := strings.ToLower(text)
	past, future := false, false
	for _, m := range pastMarkers {
		if strings.Contains(lower, m) {
			past = true
			break
		}
	}
	for _, m := range futureMarkers {
		if strings.Contains(lower, m) {
			future = true
			break
		}
	}
	return past && future
}

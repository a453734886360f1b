package organ

import (
	"context"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganRelational detects connection and separation language.
const OrganRelational = "relational"

var defaultRelationalVocabulary = Vocabulary{
	"distance": {"alone", "lonely", "distant", "apart", "isolated", "withdrawn", "away"},
	"presence": {"here", "together", "close", "near", "beside", "accompanied"},
	"rupture":  {"fight", "argument", "conflict", "betrayed", "abandoned", "left"},
	"repair":   {"apologize", "forgive", "reconnect", "reach", "return", "mend"},
	"warmth":   {"friend", "mother", "father", "partner", "family", "beloved", "dear"},
	"longing":  {"missing", "reunion", "connect", "belong"},
	"grief":    {"lost", "gone", "goodbye", "funeral", "passed"},
	"seeking":  {"ask", "asking", "reaching out", "call"},
}

// relationalPronouns never appear in a vocabulary; their density over the
// raw text is its own signal for this organ.
var relationalPronouns = []string{"you", "we", "us", "they", "them", "her", "him", "he", "she"}

// RelationalOrgan reads the occasion's interpersonal field: who is present,
// who is missing, whether the bond is tearing or mending.
type RelationalOrgan struct {
	vocab Vocabulary
}

// NewRelationalOrgan creates the relational organ.
func NewRelationalOrgan(vocab Vocabulary) *RelationalOrgan {
	return &RelationalOrgan{vocab: resolveVocabulary(defaultRelationalVocabulary, vocab)}
}

// Name implements Scorer.
func (o *RelationalOrgan) Name() string { return OrganRelational }

// Score implements Scorer.
func (o *RelationalOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)
	if len(acts) == 0 {
		return types.NeutralResult(OrganRelational), nil
	}

	boost := confirmationBoost(acts, cycle)
	coherence := clamp01(readingCoherence(acts) + 0.2*boost)

	lure := 0.2 + 0.45*maxActivation(acts) + 0.15*pronounDensity(occ.Text) + 0.2*boost

	// Known entities are almost always people here; their presence sharpens
	// the relational reading.
	if len(occ.KnownEntities) > 0 {
		lure += 0.1
	}

	return &types.OrganResult{
		Organ:       OrganRelational,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
	}, nil
}

// pronounDensity scores second/third-person pronoun frequency per word.
func pronounDensity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"")
		for _, p := range relationalPronouns {
			if w == p {
				hits++
				break
			}
		}
	}
	return clamp01(3 * float64(hits) / float64(len(words)))
}

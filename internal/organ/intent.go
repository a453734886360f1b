package organ

import (
	"context"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// OrganIntent detects the speech act: asking, telling, refusing, trying.
const OrganIntent = "intent"

var defaultIntentVocabulary = Vocabulary{
	"seeking":    {"help", "need", "please", "how", "what", "why", "wondering"},
	"disclosure": {"confess", "admit", "tell", "share", "secret", "honestly", "truth"},
	"refusal":    {"no", "stop", "enough", "refuse", "cannot"},
	"emergence":  {"try", "trying", "attempt", "practice", "learn", "change"},
	"presence":   {"listen", "hear", "notice", "attend"},
	"overwhelm":  {"everything", "all", "every", "completely", "totally"},
	"release":    {"let go", "surrender", "allow", "accept", "trust"},
}

// IntentOrgan reads what the occasion is trying to do, and tags the detected
// speech-act patterns for downstream consumers.
type IntentOrgan struct {
	vocab Vocabulary
}

// NewIntentOrgan creates the intent organ.
func NewIntentOrgan(vocab Vocabulary) *IntentOrgan {
	return &IntentOrgan{vocab: resolveVocabulary(defaultIntentVocabulary, vocab)}
}

// Name implements Scorer.
func (o *IntentOrgan) Name() string { return OrganIntent }

// Score implements Scorer.
func (o *IntentOrgan) Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error) {
	acts := MatchVocabulary(o.vocab, occ)
	patterns := detectSpeechActs(occ.Text)

	if len(acts) == 0 && len(patterns) == 0 {
		return types.NeutralResult(OrganIntent), nil
	}

	boost := confirmationBoost(acts, cycle)
	coherence := clamp01(readingCoherence(acts) + 0.15*float64(len(patterns)) + 0.15*boost)

	lure := 0.25 + 0.4*maxActivation(acts) + 0.15*boost
	if containsPattern(patterns, "question") {
		lure += 0.2
	}

	return &types.OrganResult{
		Organ:       OrganIntent,
		Coherence:   coherence,
		Lure:        clamp01(lure),
		Activations: acts,
		Patterns:    patterns,
	}, nil
}

// detectSpeechActs classifies the gross speech act from surface cues.
// Returned patterns are sorted by construction (fixed check order).
func detectSpeechActs(text string) []string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	var patterns []string
	if strings.HasSuffix(lower, "?") || hasAnyPrefix(lower, "what ", "how ", "why ", "who ", "when ", "where ", "can you", "could you", "do you") {
		patterns = append(patterns, "question")
	}
	if strings.Contains(lower, "help") || strings.Contains(lower, "i need") || strings.Contains(lower, "please") {
		patterns = append(patterns, "request")
	}
	if hasAnyPrefix(lower, "i feel", "i am ", "i'm ", "i was", "i have been") {
		patterns = append(patterns, "self_disclosure")
	}
	return patterns
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}

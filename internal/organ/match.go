package organ

import (
	"sort"
	"strings"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Keyword match similarities. A token either hits a keyword exactly, contains
// it (or is contained by it), shares enough characters to count as a partial
// echo, or misses.
const (
	SimExact     = 1.0
	SimSubstring = 0.8
	SimPartial   = 0.5

	// Minimum distinct shared characters for a partial match
	partialMinShared = 3
)

// keywordSimilarity scores one token against one keyword.
func keywordSimilarity(token, keyword string) float64 {
	if token == keyword {
		return SimExact
	}
	if strings.Contains(token, keyword) || strings.Contains(keyword, token) {
		return SimSubstring
	}
	if sharedChars(token, keyword) >= partialMinShared {
		return SimPartial
	}
	return 0
}

// sharedChars counts distinct characters present in both strings.
func sharedChars(a, b string) int {
	seen := make(map[rune]bool)
	for _, r := range a {
		seen[r] = true
	}
	inB := make(map[rune]bool)
	for _, r := range b {
		if seen[r] {
			inB[r] = true
		}
	}
	return len(inB)
}

// MatchVocabulary scores every atom in vocab against the occasion and returns
// raw similarities for atoms that matched at all. Multi-word keywords are
// checked against the full lowercased text; single words against the token
// list. Per atom the best keyword similarity wins.
func MatchVocabulary(vocab Vocabulary, occ *types.TextOccasion) map[string]float64 {
	if occ == nil || len(vocab) == 0 {
		return map[string]float64{}
	}

	textLower := strings.ToLower(occ.Text)
	result := make(map[string]float64)

	for atom, keywords := range vocab {
		best := 0.0
		for _, kw := range keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(kw, " ") {
				// Phrase keyword: containment in the raw text only
				if strings.Contains(textLower, kw) {
					best = maxf(best, SimExact)
				}
				continue
			}
			for _, tok := range occ.Tokens {
				if sim := keywordSimilarity(tok, kw); sim > best {
					best = sim
				}
				if best >= SimExact {
					break
				}
			}
			if best >= SimExact {
				break
			}
		}
		if best > 0 {
			result[atom] = best
		}
	}
	return result
}

// readingCoherence scores how settled a set of raw matches is. One dominant
// atom reads as a coherent signal; many weak scattered matches do not.
func readingCoherence(acts map[string]float64) float64 {
	if len(acts) == 0 {
		return 0
	}

	var max, sum float64
	for _, atom := range sortedAtoms(acts) {
		v := acts[atom]
		sum += v
		if v > max {
			max = v
		}
	}
	if sum == 0 {
		return 0
	}

	dominance := max / sum // 1/n .. 1
	return clamp01(max * (0.4 + 0.6*dominance))
}

// confirmationBoost measures how much of the current reading re-appears from
// the prior cycle's nexus atoms. Repeated atoms mean the ensemble is settling
// on this organ's signal, which raises both lure and coherence.
func confirmationBoost(acts map[string]float64, cycle *types.CycleContext) float64 {
	if cycle == nil || len(cycle.PriorAtoms) == 0 || len(acts) == 0 {
		return 0
	}

	confirmed := 0
	for _, atom := range sortedAtoms(acts) {
		if cycle.HasPriorAtom(atom) {
			confirmed++
		}
	}
	return float64(confirmed) / float64(len(acts))
}

// sortedAtoms returns the map keys in sorted order so float accumulation is
// bit-reproducible across runs.
func sortedAtoms(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

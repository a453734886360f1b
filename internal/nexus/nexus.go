// Package nexus finds cross-organ agreement points. A nexus is an atom that
// at least two organs activated strongly enough, run through a four-gate
// cascade: intersection, coherence, satisfaction window, emission readiness.
// Gate rejection is control flow here, not an error condition.
package nexus

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Emission readiness blend. Coherence dominates: an agreement everyone holds
// weakly beats a strong signal the organs disagree about.
const (
	weightCoherence    = 0.47
	weightIntersection = 0.35
	weightField        = 0.11
	weightCoupling     = 0.07

	// How far outside the satisfaction window a nexus may sit and still be
	// admitted while Kairos is active.
	kairosWindowTolerance = 0.15
)

// CouplingReader supplies learned pairwise organ coupling. Implementations
// must return a consistent snapshot for the duration of a turn.
type CouplingReader interface {
	Coupling(organA, organB string) float64
}

// Composer applies the gate cascade for one cycle.
type Composer struct {
	cfg *config.ThresholdConfig
}

// NewComposer creates a composer bound to the given thresholds.
func NewComposer(cfg *config.ThresholdConfig) *Composer {
	return &Composer{cfg: cfg}
}

// contribution is one organ's weighted activation at a candidate atom.
type contribution struct {
	organ    string
	strength float64
}

// Compose runs all four gates over the cycle's semantic fields and returns
// the surviving nexuses sorted by emission readiness, strongest first.
// coupling may be nil, in which case learned coupling contributes zero.
// kairos widens the satisfaction window per gate 3 and boosts the readiness
// of nexuses admitted through the widened edges.
func (c *Composer) Compose(fields []*types.SemanticField, coupling CouplingReader, kairos bool) []*types.Nexus {
	byAtom := make(map[string][]contribution)
	for _, f := range fields {
		for _, atom := range sortedKeys(f.Strengths) {
			byAtom[atom] = append(byAtom[atom], contribution{organ: f.Organ, strength: f.Strengths[atom]})
		}
	}

	atoms := make([]string, 0, len(byAtom))
	for atom := range byAtom {
		atoms = append(atoms, atom)
	}
	sort.Strings(atoms)

	var passing []*types.Nexus
	for _, atom := range atoms {
		contribs := byAtom[atom]

		// Gate 1: intersection. At least two organs, combined intensity
		// over threshold.
		if len(contribs) < 2 {
			continue
		}
		combined := 0.0
		for _, cb := range contribs {
			combined += cb.strength
		}
		if combined < c.cfg.IntersectionThreshold {
			continue
		}

		acts := make([]float64, len(contribs))
		for i, cb := range contribs {
			acts[i] = cb.strength
		}

		// Gate 2: coherence. Agreement is one minus the variance of the
		// participant activations.
		coherence := clamp01(1 - stat.Variance(acts, nil))
		if coherence < c.cfg.CoherenceThreshold {
			continue
		}

		intersectionStrength := stat.Mean(acts, nil)
		fieldStrength := combined / (1 + combined)

		// Gate 3: satisfaction window. Kairos admits near-window nexuses
		// through a widened band and marks them for the readiness boost.
		kairosAdmitted := false
		if fieldStrength < c.cfg.SatisfactionWindowMin || fieldStrength > c.cfg.SatisfactionWindowMax {
			if !kairos {
				continue
			}
			if fieldStrength < c.cfg.SatisfactionWindowMin-kairosWindowTolerance ||
				fieldStrength > c.cfg.SatisfactionWindowMax+kairosWindowTolerance {
				continue
			}
			kairosAdmitted = true
		}

		couplingWeight := meanPairCoupling(coupling, contribs)

		// Gate 4: emission readiness.
		readiness := weightCoherence*coherence +
			weightIntersection*intersectionStrength +
			weightField*fieldStrength +
			weightCoupling*couplingWeight
		if kairosAdmitted {
			readiness = minf(1.0, readiness*c.cfg.KairosBoost)
		}
		if readiness < c.cfg.EmissionReadinessMin {
			continue
		}

		participants := make([]string, len(contribs))
		activations := make(map[string]float64, len(contribs))
		for i, cb := range contribs {
			participants[i] = cb.organ
			activations[cb.organ] = cb.strength
		}
		sort.Strings(participants)

		passing = append(passing, &types.Nexus{
			Atom:                 atom,
			Participants:         participants,
			Activations:          activations,
			Coherence:            coherence,
			IntersectionStrength: intersectionStrength,
			FieldStrength:        fieldStrength,
			CouplingWeight:       couplingWeight,
			EmissionReadiness:    readiness,
			KairosAdmitted:       kairosAdmitted,
		})
	}

	sort.Slice(passing, func(i, j int) bool {
		if passing[i].EmissionReadiness != passing[j].EmissionReadiness {
			return passing[i].EmissionReadiness > passing[j].EmissionReadiness
		}
		return passing[i].Atom < passing[j].Atom
	})

	logging.Debug("nexus", "Composed %d nexuses from %d candidate atoms", len(passing), len(byAtom))
	return passing
}

// meanPairCoupling averages learned coupling over all participant pairs,
// scaled by the pair's co-activation. Learned coupling entries are unbounded
// above; the result is clamped to keep the readiness blend (whose weights sum
// to 1) inside the unit interval.
func meanPairCoupling(coupling CouplingReader, contribs []contribution) float64 {
	if coupling == nil || len(contribs) < 2 {
		return 0
	}

	sum := 0.0
	pairs := 0
	for i := 0; i < len(contribs); i++ {
		for j := i + 1; j < len(contribs); j++ {
			sum += coupling.Coupling(contribs[i].organ, contribs[j].organ) *
				contribs[i].strength * contribs[j].strength
			pairs++
		}
	}
	return clamp01(sum / float64(pairs))
}

func sortedKeys(m map[string]float64) []string {
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

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

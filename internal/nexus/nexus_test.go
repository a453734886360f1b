package nexus

import (
	"math"
	"reflect"
	"testing"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// fieldOf builds a semantic field whose strengths are taken as given.
func fieldOf(organ string, strengths map[string]float64) *types.SemanticField {
	return &types.SemanticField{Organ: organ, Lure: 1, Coherence: 1, Strengths: strengths}
}

// constCoupling reports the same learned coupling for every organ pair.
type constCoupling float64

func (c constCoupling) Coupling(a, b string) float64 { return float64(c) }

func within(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// TestTwoOrganAgreement traces a strong two-organ nexus through all gates:
// activations 0.8 and 0.75 with an intersection threshold of 1.5.
func TestTwoOrganAgreement(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 1.5

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.8}),
		fieldOf("somatic", map[string]float64{"grief": 0.75}),
	}

	out := NewComposer(&cfg).Compose(fields, nil, false)
	if len(out) != 1 {
		t.Fatalf("expected 1 nexus, got %d", len(out))
	}

	n := out[0]
	if n.Atom != "grief" {
		t.Errorf("atom = %s, want grief", n.Atom)
	}
	if !within(n.Coherence, 0.99875, 1e-4) {
		t.Errorf("coherence = %v, want ~0.9988", n.Coherence)
	}
	if want := []string{"affect", "somatic"}; !reflect.DeepEqual(n.Participants, want) {
		t.Errorf("participants = %v, want %v", n.Participants, want)
	}
	if !within(n.IntersectionStrength, 0.775, 1e-9) {
		t.Errorf("intersection strength = %v, want 0.775", n.IntersectionStrength)
	}
	if !within(n.FieldStrength, 1.55/2.55, 1e-9) {
		t.Errorf("field strength = %v, want %v", n.FieldStrength, 1.55/2.55)
	}
	if n.KairosAdmitted {
		t.Error("in-window nexus should not be marked kairos-admitted")
	}
}

// TestSingleOrganNeverForms: gate 1 requires at least two participants
func TestSingleOrganNeverForms(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 0.1

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 1.0, "fear": 0.9}),
	}

	if out := NewComposer(&cfg).Compose(fields, nil, false); len(out) != 0 {
		t.Errorf("single organ formed %d nexuses", len(out))
	}
}

// TestIntersectionThresholdMonotonic: raising the threshold never admits more
func TestIntersectionThresholdMonotonic(t *testing.T) {
	// Disable the later gates so gate 1 alone decides
	cfg := config.Default()
	cfg.CoherenceThreshold = 0
	cfg.SatisfactionWindowMin = 0
	cfg.SatisfactionWindowMax = 1
	cfg.EmissionReadinessMin = 0

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"a": 0.9, "b": 0.6, "c": 0.3, "d": 0.9}),
		fieldOf("somatic", map[string]float64{"a": 0.8, "b": 0.5}),
		fieldOf("relational", map[string]float64{"c": 0.3}),
	}

	prev := math.MaxInt
	for _, threshold := range []float64{0.5, 1.0, 1.2, 1.5, 2.0} {
		cfg.IntersectionThreshold = threshold
		n := len(NewComposer(&cfg).Compose(fields, nil, false))
		if n > prev {
			t.Errorf("threshold %v admitted %d nexuses, more than %d at a lower threshold", threshold, n, prev)
		}
		prev = n
	}
}

// TestCoherenceGateRejectsDisagreement: scattered activations fail gate 2
func TestCoherenceGateRejectsDisagreement(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 0.5
	cfg.SatisfactionWindowMin = 0
	cfg.SatisfactionWindowMax = 1
	cfg.EmissionReadinessMin = 0
	cfg.CoherenceThreshold = 0.7

	// 0.9 vs 0.1 gives coherence 1 - 0.32 = 0.68, under the 0.7 gate
	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.9}),
		fieldOf("somatic", map[string]float64{"grief": 0.1}),
	}

	if out := NewComposer(&cfg).Compose(fields, nil, false); len(out) != 0 {
		t.Errorf("incoherent pair passed gate 2: %+v", out[0])
	}

	cfg.CoherenceThreshold = 0.6
	if out := NewComposer(&cfg).Compose(fields, nil, false); len(out) != 1 {
		t.Error("pair should pass with the gate lowered to 0.6")
	}
}

// TestCoherenceStaysUnit: 1 - variance lands in [0,1] for unit activations
func TestCoherenceStaysUnit(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 0
	cfg.CoherenceThreshold = 0
	cfg.SatisfactionWindowMin = 0
	cfg.SatisfactionWindowMax = 1
	cfg.EmissionReadinessMin = 0

	fields := []*types.SemanticField{
		fieldOf("a", map[string]float64{"x": 1.0, "y": 0.9, "z": 0.001}),
		fieldOf("b", map[string]float64{"x": 0.001, "y": 0.1, "z": 0.999}),
		fieldOf("c", map[string]float64{"x": 0.5, "y": 0.5}),
	}

	for _, n := range NewComposer(&cfg).Compose(fields, nil, false) {
		if n.Coherence < 0 || n.Coherence > 1 {
			t.Errorf("nexus %s coherence %v out of [0,1]", n.Atom, n.Coherence)
		}
	}
}

// TestSatisfactionWindowGate rejects over-saturated agreement without kairos
// and admits it with the kairos widening, readiness boosted.
func TestSatisfactionWindowGate(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 1.0

	// Combined 2.6 gives field strength 0.722, over the 0.70 window edge
	// but inside the widened kairos band.
	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.9}),
		fieldOf("somatic", map[string]float64{"grief": 0.85}),
		fieldOf("temporal", map[string]float64{"grief": 0.85}),
	}

	if out := NewComposer(&cfg).Compose(fields, nil, false); len(out) != 0 {
		t.Fatalf("over-window nexus passed without kairos: %+v", out[0])
	}

	out := NewComposer(&cfg).Compose(fields, nil, true)
	if len(out) != 1 {
		t.Fatalf("kairos should admit the near-window nexus, got %d", len(out))
	}
	if !out[0].KairosAdmitted {
		t.Error("admitted nexus not marked kairos-admitted")
	}
	// Un-boosted readiness is ~0.85; the 1.5x boost caps at 1.0
	if out[0].EmissionReadiness != 1.0 {
		t.Errorf("boosted readiness = %v, want 1.0", out[0].EmissionReadiness)
	}
}

// TestKairosBandIsBounded: kairos widens the window, it does not remove it
func TestKairosBandIsBounded(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 0.1

	// Combined 0.4 gives field strength 0.286, below min minus tolerance
	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.2}),
		fieldOf("somatic", map[string]float64{"grief": 0.2}),
	}

	if out := NewComposer(&cfg).Compose(fields, nil, true); len(out) != 0 {
		t.Errorf("far-under-window nexus admitted under kairos: %+v", out[0])
	}
}

// TestReadinessGate rejects when the composite falls under the minimum
func TestReadinessGate(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 1.5
	cfg.EmissionReadinessMin = 0.9

	// Same pair as TestTwoOrganAgreement: readiness ~0.81, under 0.9
	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.8}),
		fieldOf("somatic", map[string]float64{"grief": 0.75}),
	}

	if out := NewComposer(&cfg).Compose(fields, nil, false); len(out) != 0 {
		t.Errorf("nexus passed a 0.9 readiness gate with readiness %v", out[0].EmissionReadiness)
	}
}

// TestCouplingRaisesReadiness: learned coupling feeds the gate-4 composite
func TestCouplingRaisesReadiness(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 1.0

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.8}),
		fieldOf("somatic", map[string]float64{"grief": 0.75}),
	}

	cold := NewComposer(&cfg).Compose(fields, nil, false)
	warm := NewComposer(&cfg).Compose(fields, constCoupling(1.0), false)
	if len(cold) != 1 || len(warm) != 1 {
		t.Fatalf("expected 1 nexus each, got %d and %d", len(cold), len(warm))
	}

	if !within(warm[0].CouplingWeight, 0.8*0.75, 1e-9) {
		t.Errorf("coupling weight = %v, want %v", warm[0].CouplingWeight, 0.8*0.75)
	}
	if warm[0].EmissionReadiness <= cold[0].EmissionReadiness {
		t.Errorf("coupling should raise readiness: cold=%v warm=%v",
			cold[0].EmissionReadiness, warm[0].EmissionReadiness)
	}
}

// TestRankingIsReadinessDescending orders the candidate set strongest first
func TestRankingIsReadinessDescending(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 1.0

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.8, "longing": 0.6}),
		fieldOf("somatic", map[string]float64{"grief": 0.75, "longing": 0.55}),
	}

	out := NewComposer(&cfg).Compose(fields, nil, false)
	if len(out) != 2 {
		t.Fatalf("expected 2 nexuses, got %d", len(out))
	}
	if out[0].Atom != "grief" || out[1].Atom != "longing" {
		t.Errorf("order = [%s %s], want [grief longing]", out[0].Atom, out[1].Atom)
	}
	if out[0].EmissionReadiness < out[1].EmissionReadiness {
		t.Error("candidate set not sorted by readiness descending")
	}
}

// TestComposeIsDeterministic: identical inputs, identical candidate set
func TestComposeIsDeterministic(t *testing.T) {
	cfg := config.Default()
	cfg.IntersectionThreshold = 0.5

	fields := []*types.SemanticField{
		fieldOf("affect", map[string]float64{"grief": 0.8, "warmth": 0.4, "fear": 0.6}),
		fieldOf("somatic", map[string]float64{"grief": 0.7, "warmth": 0.5}),
		fieldOf("relational", map[string]float64{"warmth": 0.45, "fear": 0.55}),
	}

	c := NewComposer(&cfg)
	first := c.Compose(fields, constCoupling(0.3), false)
	second := c.Compose(fields, constCoupling(0.3), false)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("compose not deterministic:\n first: %+v\nsecond: %+v", first, second)
	}
}

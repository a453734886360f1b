package types

import "time"

// TextOccasion is a single unit of conversational input. It is built once per
// turn by the occasion package (or an external preprocessor) and is immutable
// from then on; every organ in a cycle reads the same occasion.
type TextOccasion struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Tokens        []string          `json:"tokens"`                   // lowercased words, punctuation stripped
	KnownEntities map[string]string `json:"known_entities,omitempty"` // entity text -> label
	Timestamp     time.Time         `json:"timestamp"`
}

// CycleContext carries inter-cycle state into organ scoring. The convergence
// engine rebuilds it each cycle; organs treat it as read-only.
type CycleContext struct {
	Cycle             int      `json:"cycle"`
	PriorAtoms        []string `json:"prior_atoms,omitempty"` // atoms from the prior cycle's passing nexuses
	PriorSatisfaction float64  `json:"prior_satisfaction"`
	Kairos            bool     `json:"kairos"`
}

// HasPriorAtom reports whether atom appeared in the prior cycle's nexus set.
func (c *CycleContext) HasPriorAtom(atom string) bool {
	for _, a := range c.PriorAtoms {
		if a == atom {
			return true
		}
	}
	return false
}

// OrganResult is one organ's reading of an occasion for one cycle.
// Activations hold raw match similarity per atom (0..1); lure/coherence
// weighting happens later in the field extractor. Never mutated after creation.
type OrganResult struct {
	Organ       string             `json:"organ"`
	Coherence   float64            `json:"coherence"` // 0..1, how settled the organ's reading is
	Lure        float64            `json:"lure"`      // 0..1, appetition: how much the organ wants to speak
	Activations map[string]float64 `json:"activations"`
	Patterns    []string           `json:"patterns,omitempty"` // organ-specific detected patterns
}

// NeutralResult is the substitute returned when an organ fails or times out.
// It is a normal outcome, not an error signal.
func NeutralResult(organ string) *OrganResult {
	return &OrganResult{
		Organ:       organ,
		Coherence:   0,
		Lure:        0,
		Activations: map[string]float64{},
	}
}

// SemanticField is the lure/coherence-weighted activation map derived from one
// OrganResult. Ephemeral: recomputed every cycle, never persisted.
type SemanticField struct {
	Organ     string             `json:"organ"`
	Lure      float64            `json:"lure"`
	Coherence float64            `json:"coherence"`
	Strengths map[string]float64 `json:"strengths"` // atom -> weighted activation
}

// Nexus is a candidate cross-organ agreement point. Invariant: at least two
// participants. Discarded if it fails any composer gate.
type Nexus struct {
	Atom                 string             `json:"atom"`
	Participants         []string           `json:"participants"` // organ names, >= 2
	Activations          map[string]float64 `json:"activations"`  // organ -> weighted activation at this atom
	Coherence            float64            `json:"coherence"`
	IntersectionStrength float64            `json:"intersection_strength"`
	FieldStrength        float64            `json:"field_strength"`
	CouplingWeight       float64            `json:"coupling_weight"`
	EmissionReadiness    float64            `json:"emission_readiness"` // gate-4 composite, sorts the candidate set
	KairosAdmitted       bool               `json:"kairos_admitted,omitempty"`
}

// TerminalState is the state the convergence engine ends a turn in.
type TerminalState string

const (
	StateConverging        TerminalState = "converging"
	StateKairos            TerminalState = "kairos"
	StateConverged         TerminalState = "converged"
	StateForcedTermination TerminalState = "forced_termination"
)

// ConvergenceState tracks one turn's descent toward satisfaction. Mutated once
// per cycle by the engine, destroyed at turn end.
type ConvergenceState struct {
	Cycle             int           `json:"cycle"`
	Energy            float64       `json:"energy"`
	PriorEnergy       float64       `json:"prior_energy"`
	Satisfaction      float64       `json:"satisfaction"`
	PriorSatisfaction float64       `json:"prior_satisfaction"`
	KairosFlag        bool          `json:"kairos_flag"`
	State             TerminalState `json:"state"`
}

// Strategy identifies the generation path the emission selector chose.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"           // high-confidence single nexus, >= 3 organs
	StrategyFusion   Strategy = "fusion"           // moderate confidence, top nexuses combined
	StrategyFallback Strategy = "hebbian_fallback" // nearest stored pattern
	StrategyNone     Strategy = "none"             // nothing cleared the gates
)

// EmittedPhrase is the turn's final output unit, handed to downstream
// consumers (prompt builder, effectors). Immutable once created.
type EmittedPhrase struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Strategy      Strategy  `json:"strategy"`
	Confidence    float64   `json:"confidence"` // 0..1
	Participants  []string  `json:"participants,omitempty"`
	SourceAtoms   []string  `json:"source_atoms,omitempty"`
	KairosBoosted bool      `json:"kairos_boosted,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// IsEmpty reports whether the phrase is the explicit empty emission.
func (e *EmittedPhrase) IsEmpty() bool {
	return e.Strategy == StrategyNone
}

// TurnOutcome is what the pipeline feeds back into the learning store after a
// completed turn.
type TurnOutcome struct {
	InputSignature string             `json:"input_signature"`
	Text           string             `json:"text"`
	Confidence     float64            `json:"confidence"`
	Participants   []string           `json:"participants"`
	Activations    map[string]float64 `json:"activations"`       // organ -> activation at the emitted atoms
	Quality        *float64           `json:"quality,omitempty"` // optional external evaluator score, 0..1
	Timestamp      time.Time          `json:"timestamp"`
}

// PatternRecord is one entry in the learning store's bounded pattern history.
type PatternRecord struct {
	ID          string             `json:"id"`
	Signature   string             `json:"signature"`
	Output      string             `json:"output"`
	Confidence  float64            `json:"confidence"`
	Activations map[string]float64 `json:"activations"` // organ -> activation vector entry
	CreatedAt   time.Time          `json:"created_at"`
}

// PatternMatch is a pattern record paired with its similarity to a query
// activation vector.
type PatternMatch struct {
	Record     *PatternRecord `json:"record"`
	Similarity float64        `json:"similarity"`
}

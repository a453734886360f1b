// Package convergence runs the bounded cycle loop that settles a turn. Each
// cycle re-scores the organs, recomposes the nexus set, and updates a scalar
// energy that descends toward the satisfaction band. The loop always reaches
// a terminal state within the configured cycle cap; there is no blocking I/O
// inside it.
package convergence

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/field"
	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/nexus"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Energy blend. The satisfaction gap dominates; the delta term damps
// oscillation; the remaining terms read the ensemble's spread.
const (
	energyWeightSatisfaction = 0.40
	energyWeightDelta        = 0.25
	energyWeightAgreement    = 0.15
	energyWeightResonance    = 0.10
	energyWeightIntensity    = 0.10

	// Kairos detection: energy delta must already be small and the mean
	// coherence must carry real signal.
	kairosDeltaBound   = 0.1
	kairosResonanceMin = 0.4

	// Target point for the intensity term. Peak coherence at the inverse
	// golden ratio reads as ripe; far above or below it raises energy.
	goldenPoint = 0.618
)

// DefaultOrganTimeout bounds one organ's scoring call per cycle.
const DefaultOrganTimeout = 2 * time.Second

// CycleTrace is one cycle's scalar snapshot, kept for inspection and tests.
type CycleTrace struct {
	Cycle        int     `json:"cycle"`
	Energy       float64 `json:"energy"`
	Satisfaction float64 `json:"satisfaction"`
	Delta        float64 `json:"delta"`
	Agreement    float64 `json:"agreement"`
	Resonance    float64 `json:"resonance"`
	Intensity    float64 `json:"intensity"`
	NexusCount   int     `json:"nexus_count"`
}

// Outcome is what a finished turn hands to the emission selector: the final
// cycle's organ results and candidate set plus the terminal state.
type Outcome struct {
	State   types.ConvergenceState `json:"state"`
	Results []*types.OrganResult   `json:"results"`
	Nexuses []*types.Nexus         `json:"nexuses"`
	Trace   []CycleTrace           `json:"trace"`
}

// Engine drives the cycle loop for one turn at a time. Safe for concurrent
// use: all per-turn state lives on the stack of Run.
type Engine struct {
	cfg      *config.ThresholdConfig
	registry *organ.Registry
	composer *nexus.Composer

	// Timeout bounds each organ scoring call. An organ that misses it is
	// treated as neutral for the cycle.
	Timeout time.Duration
}

// NewEngine creates a convergence engine over the given organ registry.
func NewEngine(cfg *config.ThresholdConfig, registry *organ.Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		composer: nexus.NewComposer(cfg),
		Timeout:  DefaultOrganTimeout,
	}
}

// Run descends one occasion to a terminal state. coupling may be nil; it is
// read, never written, so a snapshot taken at turn start keeps every cycle
// consistent. Cancelling ctx abandons the turn and returns the context error;
// per-cycle state is ephemeral so nothing needs unwinding.
func (e *Engine) Run(ctx context.Context, occ *types.TextOccasion, coupling nexus.CouplingReader) (*Outcome, error) {
	priorEnergy := 1.0
	priorDelta := 0.0
	priorSatisfaction := 0.0
	var priorAtoms []string

	outcome := &Outcome{}

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cycleCtx := &types.CycleContext{
			Cycle:             cycle,
			PriorAtoms:        priorAtoms,
			PriorSatisfaction: priorSatisfaction,
		}

		results := e.scoreAll(ctx, occ, cycleCtx)
		fields := field.ExtractAll(results)
		nexuses := e.composer.Compose(fields, coupling, false)

		agreement, resonance, intensity := ensembleSignal(results)

		energy := energyWeightSatisfaction*(1-priorSatisfaction) +
			energyWeightDelta*priorDelta +
			energyWeightAgreement*(1-agreement) +
			energyWeightResonance*(1-resonance) +
			energyWeightIntensity*math.Abs(intensity-goldenPoint)
		satisfaction := 1 - energy*(1-resonance)
		delta := math.Abs(energy - priorEnergy)

		outcome.Trace = append(outcome.Trace, CycleTrace{
			Cycle:        cycle,
			Energy:       energy,
			Satisfaction: satisfaction,
			Delta:        delta,
			Agreement:    agreement,
			Resonance:    resonance,
			Intensity:    intensity,
			NexusCount:   len(nexuses),
		})
		logging.Debug("convergence", "Cycle %d: energy=%.4f satisfaction=%.4f delta=%.4f nexuses=%d",
			cycle, energy, satisfaction, delta, len(nexuses))

		state := types.ConvergenceState{
			Cycle:             cycle,
			Energy:            energy,
			PriorEnergy:       priorEnergy,
			Satisfaction:      satisfaction,
			PriorSatisfaction: priorSatisfaction,
			State:             types.StateConverging,
		}

		// Termination checks, in order. The first two need a meaningful
		// prior energy, so they start at cycle 2.
		terminal := false
		switch {
		case cycle >= 2 && delta < e.cfg.ConvergenceThreshold:
			state.State = types.StateConverged
			terminal = true
		case cycle >= 2 &&
			energy >= e.cfg.SatisfactionWindowMin && energy <= e.cfg.SatisfactionWindowMax &&
			satisfaction > priorSatisfaction &&
			delta < kairosDeltaBound &&
			resonance > kairosResonanceMin:
			state.State = types.StateKairos
			state.KairosFlag = true
			terminal = true
		case cycle >= e.cfg.MaxCycles:
			state.State = types.StateForcedTermination
			terminal = true
		}

		if terminal {
			if state.KairosFlag {
				// Recompose the final cycle with the widened window so
				// near-ripe nexuses are admitted under the boost.
				nexuses = e.composer.Compose(fields, coupling, true)
			}
			logging.Info("convergence", "Turn settled: %s at cycle %d (energy=%.3f, %d nexuses)",
				state.State, cycle, energy, len(nexuses))

			outcome.State = state
			outcome.Results = results
			outcome.Nexuses = nexuses
			return outcome, nil
		}

		priorAtoms = nexusAtoms(nexuses)
		priorEnergy = energy
		priorDelta = delta
		priorSatisfaction = satisfaction
	}
}

// scoreAll dispatches every registered organ concurrently and joins their
// results in registry (name) order. A failed or timed-out organ contributes
// its neutral default result; the cycle never blocks on a straggler.
func (e *Engine) scoreAll(ctx context.Context, occ *types.TextOccasion, cycleCtx *types.CycleContext) []*types.OrganResult {
	organs := e.registry.All()
	results := make([]*types.OrganResult, len(organs))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range organs {
		g.Go(func() error {
			results[i] = e.scoreBounded(gctx, s, occ, cycleCtx)
			return nil
		})
	}
	g.Wait()

	return results
}

// scoreBounded runs one organ under the per-call timeout.
func (e *Engine) scoreBounded(ctx context.Context, s organ.Scorer, occ *types.TextOccasion, cycleCtx *types.CycleContext) *types.OrganResult {
	octx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	type scored struct {
		res *types.OrganResult
		err error
	}
	ch := make(chan scored, 1)
	go func() {
		res, err := s.Score(octx, occ, cycleCtx)
		ch <- scored{res: res, err: err}
	}()

	select {
	case <-octx.Done():
		logging.Warn("convergence", "Organ %s missed the %v budget, substituting neutral result", s.Name(), e.Timeout)
		return types.NeutralResult(s.Name())
	case sc := <-ch:
		if sc.err != nil || sc.res == nil {
			logging.Warn("convergence", "Organ %s failed: %v", s.Name(), sc.err)
			return types.NeutralResult(s.Name())
		}
		return sc.res
	}
}

// ensembleSignal derives the cross-organ scalars the energy formula needs:
// agreement (1 - coherence spread), resonance (mean coherence), intensity
// (peak coherence).
func ensembleSignal(results []*types.OrganResult) (agreement, resonance, intensity float64) {
	if len(results) == 0 {
		return 1, 0, 0
	}

	coherences := make([]float64, len(results))
	for i, r := range results {
		coherences[i] = r.Coherence
		if r.Coherence > intensity {
			intensity = r.Coherence
		}
	}

	resonance = stat.Mean(coherences, nil)
	if len(coherences) < 2 {
		return 1, resonance, intensity
	}

	agreement = clamp01(1 - stat.StdDev(coherences, nil))
	return agreement, resonance, intensity
}

// nexusAtoms collects the passing atoms for the next cycle's context.
func nexusAtoms(nexuses []*types.Nexus) []string {
	if len(nexuses) == 0 {
		return nil
	}
	atoms := make([]string, len(nexuses))
	for i, n := range nexuses {
		atoms[i] = n.Atom
	}
	return atoms
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

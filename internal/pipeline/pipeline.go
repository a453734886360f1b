// Package pipeline wires one turn end to end: occasion in, convergence,
// emission, then the learning update behind it. Everything a sense or tool
// front-end needs is the ProcessTurn call.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/convergence"
	"github.com/axo-lotto/dae-gov-sub013/internal/emission"
	"github.com/axo-lotto/dae-gov-sub013/internal/eval"
	"github.com/axo-lotto/dae-gov-sub013/internal/hebbian"
	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/occasion"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
	"github.com/axo-lotto/dae-gov-sub013/internal/profiling"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Request is one incoming message plus where it came from.
type Request struct {
	Text    string
	Source  string // repl, discord, mcp
	Channel string
}

// Response is everything one turn produced.
type Response struct {
	Occasion *types.TextOccasion      `json:"occasion"`
	Phrase   *types.EmittedPhrase     `json:"phrase"`
	State    types.ConvergenceState   `json:"state"`
	Trace    []convergence.CycleTrace `json:"trace,omitempty"`
	Quality  *float64                 `json:"quality,omitempty"`
}

// Options are the optional attachments for a pipeline. Judge and Journal may
// be nil; a nil Profiler becomes an off-level one.
type Options struct {
	Judge           *eval.Judge
	Journal         *journal.Journal
	Profiler        *profiling.Profiler
	ExtractEntities bool
	OrganTimeout    time.Duration // 0 keeps the engine default
}

// Pipeline runs turns against one organ registry and one learning store.
type Pipeline struct {
	cfg      config.ThresholdConfig
	builder  *occasion.Builder
	engine   *convergence.Engine
	selector *emission.Selector
	store    *hebbian.Store
	judge    *eval.Judge
	journal  *journal.Journal
	prof     *profiling.Profiler

	// Turns are serialized so learning updates land in arrival order and
	// per-turn decay stays deterministic.
	mu sync.Mutex
}

// New assembles a pipeline. store must be non-nil; learning runs on every
// turn, silent ones included.
func New(cfg config.ThresholdConfig, registry *organ.Registry, store *hebbian.Store, opts Options) *Pipeline {
	prof := opts.Profiler
	if prof == nil {
		prof, _ = profiling.New(profiling.LevelOff, "")
	}

	engine := convergence.NewEngine(&cfg, registry)
	if opts.OrganTimeout > 0 {
		engine.Timeout = opts.OrganTimeout
	}

	return &Pipeline{
		cfg:      cfg,
		builder:  occasion.NewBuilder(opts.ExtractEntities),
		engine:   engine,
		selector: emission.NewSelector(&cfg),
		store:    store,
		judge:    opts.Judge,
		journal:  opts.Journal,
		prof:     prof,
	}
}

// ProcessTurn descends one message to an emitted phrase and feeds the result
// back into the learning store. A cancelled context abandons the turn before
// any learning or journaling happens.
func (p *Pipeline) ProcessTurn(ctx context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	turnStart := time.Now()

	start := time.Now()
	occ := p.builder.Build(req.Text)
	p.prof.Record(occ.ID, "occasion", time.Since(start), nil)

	stop := p.prof.Start(occ.ID, "convergence")
	outcome, err := p.engine.Run(ctx, occ, p.store.Snapshot())
	stop()
	if err != nil {
		return nil, err
	}

	stop = p.prof.Start(occ.ID, "emission")
	phrase := p.selector.Select(outcome.Nexuses, outcome.Results, outcome.State.KairosFlag, p.store)
	stop()

	var quality *float64
	if p.judge != nil && !phrase.IsEmpty() {
		stop = p.prof.Start(occ.ID, "judge")
		score, err := p.judge.Score(occ.Text, phrase.Text)
		stop()
		if err != nil {
			logging.Warn("pipeline", "Judge failed, learning at neutral weight: %v", err)
		} else {
			quality = &score
		}
	}

	stop = p.prof.Start(occ.ID, "learning")
	p.store.Update(&types.TurnOutcome{
		InputSignature: hebbian.Signature(occ.Text),
		Text:           phrase.Text,
		Confidence:     phrase.Confidence,
		Participants:   phrase.Participants,
		Activations:    turnActivations(outcome, phrase),
		Quality:        quality,
		Timestamp:      time.Now(),
	})
	stop()

	p.recordTurn(req, occ, outcome, phrase, quality)

	meta := map[string]any{
		"strategy": string(phrase.Strategy),
		"cycles":   outcome.State.Cycle,
		"state":    string(outcome.State.State),
	}
	if p.prof.ShouldProfile(profiling.LevelDetailed) {
		for k, v := range p.prof.ResourceMetadata() {
			meta[k] = v
		}
	}
	p.prof.Record(occ.ID, "turn", time.Since(turnStart), meta)

	logging.Info("pipeline", "Turn %q -> %s (confidence %.2f, %d cycles, %s)",
		logging.Truncate(occ.Text, 40), phrase.Strategy, phrase.Confidence,
		outcome.State.Cycle, outcome.State.State)

	return &Response{
		Occasion: occ,
		Phrase:   phrase,
		State:    outcome.State,
		Trace:    outcome.Trace,
		Quality:  quality,
	}, nil
}

// turnActivations builds the organ activation map the learning store records
// for this turn. Nexus-backed strategies use the weighted activations at the
// emitted atoms; fallback and silent turns fall back to the per-organ field
// peaks.
func turnActivations(outcome *convergence.Outcome, phrase *types.EmittedPhrase) map[string]float64 {
	switch phrase.Strategy {
	case types.StrategyDirect, types.StrategyFusion:
		atoms := make(map[string]bool, len(phrase.SourceAtoms))
		for _, a := range phrase.SourceAtoms {
			atoms[a] = true
		}
		acts := make(map[string]float64)
		for _, n := range outcome.Nexuses {
			if !atoms[n.Atom] {
				continue
			}
			for name, v := range n.Activations {
				if v > acts[name] {
					acts[name] = v
				}
			}
		}
		return acts
	default:
		return emission.OrganActivity(outcome.Results)
	}
}

func (p *Pipeline) recordTurn(req Request, occ *types.TextOccasion, outcome *convergence.Outcome, phrase *types.EmittedPhrase, quality *float64) {
	if p.journal == nil {
		return
	}
	err := p.journal.Record(journal.Turn{
		OccasionID: occ.ID,
		Input:      occ.Text,
		Output:     phrase.Text,
		Strategy:   string(phrase.Strategy),
		Confidence: phrase.Confidence,
		Cycles:     outcome.State.Cycle,
		Energy:     outcome.State.Energy,
		Organs:     phrase.Participants,
		Quality:    quality,
		Source:     req.Source,
		Channel:    req.Channel,
	})
	if err != nil {
		logging.Warn("pipeline", "Journal write failed: %v", err)
	}
}

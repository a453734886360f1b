// Package hebbian is the engine's long-lived learning state: a symmetric
// organ-coupling matrix reinforced by co-activation and a bounded history of
// high-confidence emission patterns. Everything else in the pipeline is
// per-turn and ephemeral; this store is the one piece of shared mutable
// state, so all access goes through a single mutex and readers take
// point-in-time snapshots for the duration of a turn.
package hebbian

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

const (
	// How often the background loop writes dirty state to disk.
	flushInterval = 30 * time.Second

	// Below this many stored patterns a Go-side cosine scan beats a round
	// trip through sqlite-vec.
	vecQueryMin = 256
)

// Store holds the coupling matrix and pattern history. Create with New for a
// session-only store; call Open to attach durable storage and Start for the
// background flush loop. Open must complete before the store is shared
// between goroutines.
type Store struct {
	cfg config.ThresholdConfig

	mu       sync.RWMutex
	organs   []string       // sorted, fixed for the store's lifetime
	index    map[string]int // organ name -> matrix row
	coupling *mat.SymDense
	patterns []*types.PatternRecord // oldest first
	byID     map[string]*types.PatternRecord

	// Write-behind bookkeeping, guarded by mu.
	dirty         bool // coupling matrix diverges from disk
	pendingAdds   []*types.PatternRecord
	pendingEvicts []string

	// Persistence. A nil handle means in-memory only for the session.
	db           *sqlDB
	vecAvailable bool

	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an in-memory store over the given organ set. The set must be
// non-empty and is fixed for the store's lifetime; later updates naming
// unknown organs are ignored.
func New(organNames []string, cfg config.ThresholdConfig) *Store {
	organs := append([]string(nil), organNames...)
	sort.Strings(organs)

	index := make(map[string]int, len(organs))
	for i, name := range organs {
		index[name] = i
	}

	return &Store{
		cfg:      cfg,
		organs:   organs,
		index:    index,
		coupling: mat.NewSymDense(len(organs), nil),
		byID:     make(map[string]*types.PatternRecord),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Organs returns the organ basis, sorted.
func (s *Store) Organs() []string {
	return append([]string(nil), s.organs...)
}

// Coupling returns the learned weight between two organs. Unknown names read
// as zero.
func (s *Store) Coupling(organA, organB string) float64 {
	i, iOK := s.index[organA]
	j, jOK := s.index[organB]
	if !iOK || !jOK {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coupling.At(i, j)
}

// CouplingSnapshot is a point-in-time copy of the coupling matrix. The nexus
// composer reads one snapshot for a whole turn so it never observes a
// half-applied update.
type CouplingSnapshot struct {
	index map[string]int
	m     *mat.SymDense
}

// Coupling returns the snapshotted weight between two organs.
func (c *CouplingSnapshot) Coupling(organA, organB string) float64 {
	i, iOK := c.index[organA]
	j, jOK := c.index[organB]
	if !iOK || !jOK {
		return 0
	}
	return c.m.At(i, j)
}

// Snapshot copies the current coupling matrix.
func (s *Store) Snapshot() *CouplingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := mat.NewSymDense(len(s.organs), nil)
	m.CopySym(s.coupling)
	return &CouplingSnapshot{index: s.index, m: m}
}

// Update folds a completed turn back into the store: Hebbian reinforcement
// for every co-participating organ pair, uniform decay across the whole
// matrix, then pattern capture when the turn's confidence clears the
// configured minimum. Persistence happens later on the flush loop; Update
// never blocks on I/O.
func (s *Store) Update(outcome *types.TurnOutcome) {
	if outcome == nil {
		return
	}

	eta := s.cfg.LearningRate * qualityMultiplier(outcome.Quality)

	s.mu.Lock()
	defer s.mu.Unlock()

	participants := s.knownParticipants(outcome.Participants)
	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			ai := outcome.Activations[participants[i]]
			aj := outcome.Activations[participants[j]]
			if ai <= 0 || aj <= 0 {
				continue
			}
			ri, rj := s.index[participants[i]], s.index[participants[j]]
			s.coupling.SetSym(ri, rj, s.coupling.At(ri, rj)+eta*ai*aj)
		}
	}

	// Uniform decay runs every turn, silent turns included. It bounds every
	// entry: under constant stimulation a weight settles at
	// increment*(1-decay)/decay.
	if s.cfg.DecayRate > 0 {
		s.coupling.ScaleSym(1-s.cfg.DecayRate, s.coupling)
	}
	s.dirty = true

	if outcome.Confidence >= s.cfg.MinPatternConfidence {
		s.appendPatternLocked(outcome)
	}
}

// qualityMultiplier scales reinforcement by an external evaluator verdict.
// No verdict is neutral (1.0); a scored turn maps 0.5 to neutral, 1.0 to
// doubled reinforcement and 0 to none.
func qualityMultiplier(q *float64) float64 {
	if q == nil {
		return 1.0
	}
	v := *q
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return 2 * v
}

// knownParticipants filters to organs in the basis, deduplicated and sorted.
func (s *Store) knownParticipants(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := s.index[n]; ok && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) appendPatternLocked(outcome *types.TurnOutcome) {
	acts := make(map[string]float64, len(outcome.Activations))
	for organ, a := range outcome.Activations {
		if _, ok := s.index[organ]; ok {
			acts[organ] = a
		}
	}

	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	rec := &types.PatternRecord{
		ID:          uuid.New().String(),
		Signature:   outcome.InputSignature,
		Output:      outcome.Text,
		Confidence:  outcome.Confidence,
		Activations: acts,
		CreatedAt:   ts,
	}
	s.patterns = append(s.patterns, rec)
	s.byID[rec.ID] = rec
	s.pendingAdds = append(s.pendingAdds, rec)
	s.evictOverflowLocked()
}

// evictOverflowLocked drops oldest records past capacity.
func (s *Store) evictOverflowLocked() {
	for len(s.patterns) > s.cfg.MaxPatterns {
		old := s.patterns[0]
		s.patterns = s.patterns[1:]
		delete(s.byID, old.ID)
		s.pendingEvicts = append(s.pendingEvicts, old.ID)
	}
}

// PatternCount returns the number of stored pattern records.
func (s *Store) PatternCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// RecentPatterns returns the n newest pattern records, newest first. n <= 0
// returns all. Records are immutable once stored, so sharing pointers is safe.
func (s *Store) RecentPatterns(n int) []*types.PatternRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.PatternRecord, 0, len(s.patterns))
	for i := len(s.patterns) - 1; i >= 0; i-- {
		out = append(out, s.patterns[i])
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// Query returns stored patterns ranked by activation-vector cosine
// similarity, strongest first. Orthogonal patterns are not matches, so the
// result may be shorter than limit. Large histories go through the
// sqlite-vec index when it is available; small ones are scanned in Go.
func (s *Store) Query(activations map[string]float64, limit int) []*types.PatternMatch {
	if limit <= 0 {
		return nil
	}
	query := s.vectorOf(activations)
	if floats.Norm(query, 2) == 0 {
		return nil
	}

	s.mu.RLock()
	pats := make([]*types.PatternRecord, len(s.patterns))
	copy(pats, s.patterns)
	s.mu.RUnlock()
	if len(pats) == 0 {
		return nil
	}

	if s.vecAvailable && len(pats) >= vecQueryMin {
		matches, err := s.queryVec(query, limit)
		if err == nil {
			return matches
		}
		logging.Debug("hebbian", "vec query failed, scanning instead: %v", err)
	}
	return s.scan(pats, query, limit)
}

// scan is the Go-side ranking path. Ties keep insertion order, oldest first.
func (s *Store) scan(pats []*types.PatternRecord, query []float64, limit int) []*types.PatternMatch {
	matches := make([]*types.PatternMatch, 0, len(pats))
	for _, p := range pats {
		sim := cosineSim(query, s.vectorOf(p.Activations))
		if sim <= 0 {
			continue
		}
		matches = append(matches, &types.PatternMatch{Record: p, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// vectorOf projects a sparse activation map onto the fixed organ basis.
func (s *Store) vectorOf(acts map[string]float64) []float64 {
	v := make([]float64, len(s.organs))
	for i, organ := range s.organs {
		v[i] = acts[organ]
	}
	return v
}

// cosineSim is cosine similarity over the organ basis. Activations are
// non-negative, so the result lies in [0,1].
func cosineSim(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// PairWeight is one off-diagonal coupling entry, for inspection surfaces.
type PairWeight struct {
	OrganA string  `json:"organ_a"`
	OrganB string  `json:"organ_b"`
	Weight float64 `json:"weight"`
}

// TopPairs returns the n strongest organ pairs, strongest first. n <= 0
// returns all pairs.
func (s *Store) TopPairs(n int) []PairWeight {
	s.mu.RLock()
	pairs := make([]PairWeight, 0, len(s.organs)*(len(s.organs)-1)/2)
	for i := 0; i < len(s.organs); i++ {
		for j := i + 1; j < len(s.organs); j++ {
			pairs = append(pairs, PairWeight{
				OrganA: s.organs[i],
				OrganB: s.organs[j],
				Weight: s.coupling.At(i, j),
			})
		}
	}
	s.mu.RUnlock()

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Weight != pairs[j].Weight {
			return pairs[i].Weight > pairs[j].Weight
		}
		if pairs[i].OrganA != pairs[j].OrganA {
			return pairs[i].OrganA < pairs[j].OrganA
		}
		return pairs[i].OrganB < pairs[j].OrganB
	})
	if n > 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// Start begins the background flush loop. A store without persistence has
// nothing to flush, so Start is a no-op until Open succeeds.
func (s *Store) Start() {
	if s.db == nil || s.started {
		return
	}
	s.started = true
	go s.flushLoop()
	logging.Info("hebbian", "Flush loop started (every %s)", flushInterval)
}

func (s *Store) flushLoop() {
	defer close(s.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				logging.Warn("hebbian", "Periodic flush failed: %v", err)
			}
		}
	}
}

// Close stops the flush loop, flushes pending state and releases the
// database. Safe to call on an in-memory store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.started {
		close(s.stop)
		<-s.done
	}

	err := s.Flush()
	if cerr := s.db.close(); err == nil {
		err = cerr
	}
	s.db = nil
	s.vecAvailable = false
	return err
}

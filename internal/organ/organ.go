// Package organ holds the independent text scorers that feed the response
// pipeline. Every organ maps an occasion to a coherence score, a lure
// (appetition) score, and per-atom activations over its own vocabulary.
// Organs share no mutable state and are safe to dispatch concurrently.
package organ

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// Scorer is the capability set every organ variant implements. Score must be
// a pure function of the occasion, the cycle context, and the organ's loaded
// vocabulary. On internal trouble an organ returns the neutral default result
// rather than an error; the error return exists for the dispatch layer.
type Scorer interface {
	Name() string
	Score(ctx context.Context, occ *types.TextOccasion, cycle *types.CycleContext) (*types.OrganResult, error)
}

// Registry is the lookup table of registered organs. Orchestration code only
// talks to the registry, so new organ variants plug in without touching it.
type Registry struct {
	mu     sync.RWMutex
	organs map[string]Scorer
}

// NewRegistry creates an empty organ registry.
func NewRegistry() *Registry {
	return &Registry{organs: make(map[string]Scorer)}
}

// Register adds an organ. Duplicate names are an error: two organs with one
// name would corrupt the coupling matrix indexing.
func (r *Registry) Register(s Scorer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if name == "" {
		return fmt.Errorf("organ has no name")
	}
	if _, exists := r.organs[name]; exists {
		return fmt.Errorf("organ already registered: %s", name)
	}
	r.organs[name] = s
	return nil
}

// Get returns a registered organ by name.
func (r *Registry) Get(name string) (Scorer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.organs[name]
	return s, ok
}

// All returns every registered organ sorted by name. The order is stable so
// concurrent dispatch and matrix indexing stay deterministic.
func (r *Registry) All() []Scorer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Scorer, 0, len(r.organs))
	for _, s := range r.organs {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Names returns the sorted organ names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.organs))
	for name := range r.organs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered organs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.organs)
}

// DefaultRegistry builds a registry with the six stock organs. vocabs may
// override any organ's built-in vocabulary by name (loaded from YAML, see
// LoadVocabularies); pass nil to use the built-ins throughout.
func DefaultRegistry(vocabs map[string]Vocabulary) (*Registry, error) {
	r := NewRegistry()

	stock := []Scorer{
		NewAffectOrgan(vocabs[OrganAffect]),
		NewSomaticOrgan(vocabs[OrganSomatic]),
		NewRelationalOrgan(vocabs[OrganRelational]),
		NewTemporalOrgan(vocabs[OrganTemporal]),
		NewIntentOrgan(vocabs[OrganIntent]),
		NewEchoOrgan(vocabs[OrganEcho]),
	}
	for _, s := range stock {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

package organ

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
)

// Vocabulary maps an atom name to the keywords that activate it. Loaded once
// per organ from configuration; the pipeline treats it as read-only.
type Vocabulary map[string][]string

// Atoms returns the vocabulary's atom names, sorted.
func (v Vocabulary) Atoms() []string {
	atoms := make([]string, 0, len(v))
	for atom := range v {
		atoms = append(atoms, atom)
	}
	sort.Strings(atoms)
	return atoms
}

// merge overlays other onto v, returning a new vocabulary. Atoms in other
// replace same-named atoms in v wholesale.
func (v Vocabulary) merge(other Vocabulary) Vocabulary {
	out := make(Vocabulary, len(v)+len(other))
	for atom, kws := range v {
		out[atom] = kws
	}
	for atom, kws := range other {
		out[atom] = kws
	}
	return out
}

// LoadVocabularies reads organ vocabulary overrides from a single YAML file
// shaped organ_name -> {atom_name: [keyword, ...]}. A missing file returns an
// empty map so the built-in vocabularies apply.
func LoadVocabularies(path string) (map[string]Vocabulary, error) {
	if path == "" {
		return map[string]Vocabulary{}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]Vocabulary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabularies: %w", err)
	}

	var vocabs map[string]Vocabulary
	if err := yaml.Unmarshal(data, &vocabs); err != nil {
		return nil, fmt.Errorf("failed to parse vocabularies: %w", err)
	}

	for name, vocab := range vocabs {
		logging.Info("organ", "Loaded vocabulary for %s: %d atoms", name, len(vocab))
	}
	return vocabs, nil
}

// resolveVocabulary picks the override when present, else the built-in.
func resolveVocabulary(builtin, override Vocabulary) Vocabulary {
	if len(override) == 0 {
		return builtin
	}
	return builtin.merge(override)
}

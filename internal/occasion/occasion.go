// Package occasion is the engine's input boundary: it turns raw message text
// into the immutable TextOccasion every organ reads. Tokenization keeps every
// word; organ vocabularies score words like "no" and "why", so nothing is
// filtered out here.
package occasion

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tsawler/prose/v3"

	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

// tokenPunctuation becomes whitespace before splitting.
var tokenPunctuation = []string{".", ",", "!", "?", ":", ";", "'", "\"", "(", ")", "-", "…"}

// Builder constructs occasions. Entity extraction runs the prose NLP pipeline
// per message; disable it where that cost matters more than entity context.
type Builder struct {
	extractEntities bool
}

// NewBuilder creates a builder. extractEntities turns on prose NER for the
// known_entities map.
func NewBuilder(extractEntities bool) *Builder {
	return &Builder{extractEntities: extractEntities}
}

// Build creates an immutable occasion from raw text.
func (b *Builder) Build(text string) *types.TextOccasion {
	occ := &types.TextOccasion{
		ID:        uuid.New().String(),
		Text:      strings.TrimSpace(text),
		Tokens:    Tokenize(text),
		Timestamp: time.Now(),
	}
	if b.extractEntities && occ.Text != "" {
		occ.KnownEntities = extractEntities(occ.Text)
	}
	return occ
}

// BuildWithEntities is Build plus caller-supplied entity context. Caller
// entries win over NER output on collision.
func (b *Builder) BuildWithEntities(text string, known map[string]string) *types.TextOccasion {
	occ := b.Build(text)
	if len(known) == 0 {
		return occ
	}

	if occ.KnownEntities == nil {
		occ.KnownEntities = make(map[string]string, len(known))
	}
	for name, label := range known {
		occ.KnownEntities[name] = label
	}
	return occ
}

// Tokenize lowercases text, turns punctuation into spaces and splits on
// whitespace. The result is what keyword matching runs against.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	for _, p := range tokenPunctuation {
		lower = strings.ReplaceAll(lower, p, " ")
	}
	return strings.Fields(lower)
}

// extractEntities runs prose NER over the text. Pipeline errors and empty
// results both yield nil; entity context is optional everywhere downstream.
func extractEntities(text string) map[string]string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		logging.Debug("occasion", "NER failed: %v", err)
		return nil
	}

	ents := doc.Entities()
	if len(ents) == 0 {
		return nil
	}

	known := make(map[string]string, len(ents))
	for _, ent := range ents {
		known[ent.Text] = ent.Label
	}
	return known
}

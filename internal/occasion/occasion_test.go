package occasion

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

// TestTokenize checks lowercasing, punctuation handling and splitting.
func TestTokenize(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Grief, and loss!", []string{"grief", "and", "loss"}},
		{"It's heavy", []string{"it", "s", "heavy"}},
		{"Self-doubt creeps in", []string{"self", "doubt", "creeps", "in"}},
		{"WHY?", []string{"why"}},
		{"", nil},
		{"   \n\t ", nil},
	}

	for _, tt := range tests {
		got := Tokenize(tt.text)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

// TestTokenizeKeepsFunctionWords guards the property organ matching depends
// on: short function words stay in the token stream.
func TestTokenizeKeepsFunctionWords(t *testing.T) {
	got := Tokenize("No, stop. Why now?")
	want := []string{"no", "stop", "why", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize dropped function words: got %v, want %v", got, want)
	}
}

// TestBuildShape verifies the occasion carries a parseable ID, trimmed text,
// tokens and a timestamp.
func TestBuildShape(t *testing.T) {
	b := NewBuilder(false)
	occ := b.Build("  I miss her so much.  ")

	if _, err := uuid.Parse(occ.ID); err != nil {
		t.Errorf("occasion ID %q is not a UUID: %v", occ.ID, err)
	}
	if occ.Text != "I miss her so much." {
		t.Errorf("Text = %q, want trimmed original", occ.Text)
	}

	want := []string{"i", "miss", "her", "so", "much"}
	if !reflect.DeepEqual(occ.Tokens, want) {
		t.Errorf("Tokens = %v, want %v", occ.Tokens, want)
	}
	if occ.Timestamp.IsZero() {
		t.Errorf("Timestamp not set")
	}
	if occ.KnownEntities != nil {
		t.Errorf("entities extracted with extraction disabled: %v", occ.KnownEntities)
	}
}

// TestBuildWithEntities checks caller-supplied entity context lands on the
// occasion without requiring the NER pipeline.
func TestBuildWithEntities(t *testing.T) {
	b := NewBuilder(false)

	occ := b.BuildWithEntities("Sarah called this morning", map[string]string{"Sarah": "PERSON"})
	if occ.KnownEntities["Sarah"] != "PERSON" {
		t.Errorf("KnownEntities = %v, missing caller entry", occ.KnownEntities)
	}

	plain := b.BuildWithEntities("nothing known", nil)
	if plain.KnownEntities != nil {
		t.Errorf("empty context produced entities: %v", plain.KnownEntities)
	}
}

// TestBuildIDsAreUnique makes sure two occasions from identical text never
// collide.
func TestBuildIDsAreUnique(t *testing.T) {
	b := NewBuilder(false)
	a, c := b.Build("same text"), b.Build("same text")
	if a.ID == c.ID {
		t.Errorf("two occasions share ID %q", a.ID)
	}
}

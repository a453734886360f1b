package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// helper: create a Journal backed by a temp directory
func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir), filepath.Join(dir, "system", "turns.jsonl")
}

// helper: read all raw turns from the JSONL file
func readTurns(t *testing.T, path string) []Turn {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var turns []Turn
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var tn Turn
		if err := json.Unmarshal([]byte(line), &tn); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		turns = append(turns, tn)
	}
	return turns
}

func TestRecordWritesJSONL(t *testing.T) {
	j, path := newTestJournal(t)

	quality := 0.75
	ts := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	err := j.Record(Turn{
		Timestamp:  ts,
		OccasionID: "occ-1",
		Input:      "everything feels heavy today",
		Output:     "that weight is real",
		Strategy:   "direct",
		Confidence: 0.82,
		Cycles:     2,
		Organs:     []string{"affect", "somatic"},
		Quality:    &quality,
		Source:     "repl",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	turns := readTurns(t, path)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	tn := turns[0]
	if !tn.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", tn.Timestamp, ts)
	}
	if tn.Input != "everything feels heavy today" {
		t.Errorf("unexpected input: %q", tn.Input)
	}
	if tn.Strategy != "direct" {
		t.Errorf("strategy = %q, want direct", tn.Strategy)
	}
	if tn.Quality == nil || *tn.Quality != quality {
		t.Errorf("quality = %v, want %v", tn.Quality, quality)
	}
	if len(tn.Organs) != 2 || tn.Organs[0] != "affect" {
		t.Errorf("unexpected organs: %v", tn.Organs)
	}
}

func TestRecordSetsTimestamp(t *testing.T) {
	j, path := newTestJournal(t)

	before := time.Now()
	if err := j.Record(Turn{Input: "hello", Strategy: "none"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	turns := readTurns(t, path)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Timestamp.Before(before) {
		t.Errorf("timestamp %v not set on record", turns[0].Timestamp)
	}
}

func TestRecentReturnsLastN(t *testing.T) {
	j, _ := newTestJournal(t)

	for i := 0; i < 5; i++ {
		if err := j.Record(Turn{Input: fmt.Sprintf("turn %d", i), Strategy: "direct"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	turns, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Input != "turn 3" || turns[1].Input != "turn 4" {
		t.Errorf("unexpected order: %q, %q", turns[0].Input, turns[1].Input)
	}

	// Asking for more than exists returns everything
	all, err := j.Recent(100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 turns, got %d", len(all))
	}
}

func TestRecentMissingFile(t *testing.T) {
	j, _ := newTestJournal(t)

	turns, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent on empty journal: %v", err)
	}
	if turns != nil {
		t.Errorf("expected nil, got %d turns", len(turns))
	}
}

func TestSearchMatchesInputAndOutput(t *testing.T) {
	j, _ := newTestJournal(t)

	j.Record(Turn{Input: "grief comes in waves", Output: "let it move through", Strategy: "direct"})
	j.Record(Turn{Input: "what should I do", Output: "stay with the question", Strategy: "fusion"})
	j.Record(Turn{Input: "the grief again", Strategy: "none"})

	// Matches in input, most recent first
	hits, err := j.Search("GRIEF", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Input != "the grief again" {
		t.Errorf("expected most recent first, got %q", hits[0].Input)
	}

	// Matches in output
	hits, err = j.Search("question", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Strategy != "fusion" {
		t.Errorf("unexpected output match: %v", hits)
	}

	// Limit respected
	hits, _ = j.Search("grief", 1)
	if len(hits) != 1 {
		t.Errorf("expected limit 1, got %d", len(hits))
	}
}

func TestByStrategyFilters(t *testing.T) {
	j, _ := newTestJournal(t)

	j.Record(Turn{Input: "a", Strategy: "direct"})
	j.Record(Turn{Input: "b", Strategy: "fusion"})
	j.Record(Turn{Input: "c", Strategy: "none"})
	j.Record(Turn{Input: "d", Strategy: "fusion"})

	turns, err := j.ByStrategy("fusion", 10)
	if err != nil {
		t.Fatalf("ByStrategy: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 fusion turns, got %d", len(turns))
	}
	if turns[0].Input != "d" || turns[1].Input != "b" {
		t.Errorf("expected most recent first, got %q, %q", turns[0].Input, turns[1].Input)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	j, path := newTestJournal(t)

	if err := j.Record(Turn{Input: "good turn", Strategy: "direct"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Inject garbage between valid records
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json\n")
	f.Close()

	if err := j.Record(Turn{Input: "another good turn", Strategy: "direct"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	turns, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("expected 2 valid turns, got %d", len(turns))
	}
}

func TestConcurrentRecords(t *testing.T) {
	j, path := newTestJournal(t)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				j.Record(Turn{Input: fmt.Sprintf("g%d-%d", g, i), Strategy: "direct"})
			}
		}(g)
	}
	wg.Wait()

	turns := readTurns(t, path)
	if len(turns) != 100 {
		t.Errorf("expected 100 turns, got %d", len(turns))
	}
}

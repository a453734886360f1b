// Package journal keeps an append-only JSONL record of every processed turn:
// what came in, what went out, and how the engine weighed it. The file is the
// system's own account of itself, inspectable offline and usable as a sample
// source for post-hoc judging.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Turn is a single journal record.
type Turn struct {
	Timestamp  time.Time `json:"ts"`
	OccasionID string    `json:"occasion_id,omitempty"`
	Input      string    `json:"input"`
	Output     string    `json:"output,omitempty"` // empty when the turn stayed silent
	Strategy   string    `json:"strategy"`
	Confidence float64   `json:"confidence"`
	Cycles     int       `json:"cycles,omitempty"`
	Energy     float64   `json:"energy,omitempty"`
	Organs     []string  `json:"organs,omitempty"`  // participants behind the emission
	Quality    *float64  `json:"quality,omitempty"` // judge verdict when enabled
	Source     string    `json:"source,omitempty"`  // repl, discord, mcp
	Channel    string    `json:"channel,omitempty"`
}

// Journal is the turn logger.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal under statePath. The system directory is created on
// the spot so the journal works even when nothing else has touched the state
// tree yet.
func New(statePath string) *Journal {
	path := filepath.Join(statePath, "system", "turns.jsonl")
	os.MkdirAll(filepath.Dir(path), 0755)
	return &Journal{path: path}
}

// Record appends a turn to the journal.
func (j *Journal) Record(turn Turn) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Count returns the number of recorded turns.
func (j *Journal) Count() (int, error) {
	turns, err := j.readAll()
	if err != nil {
		return 0, err
	}
	return len(turns), nil
}

// Recent returns the last n turns, oldest first.
func (j *Journal) Recent(n int) ([]Turn, error) {
	turns, err := j.readAll()
	if err != nil {
		return nil, err
	}

	if n >= len(turns) {
		return turns, nil
	}
	return turns[len(turns)-n:], nil
}

// Search returns turns whose input or output contains the query, most recent
// first.
func (j *Journal) Search(query string, limit int) ([]Turn, error) {
	turns, err := j.readAll()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var result []Turn
	for i := len(turns) - 1; i >= 0 && len(result) < limit; i-- {
		tn := turns[i]
		if strings.Contains(strings.ToLower(tn.Input), query) ||
			strings.Contains(strings.ToLower(tn.Output), query) {
			result = append(result, tn)
		}
	}
	return result, nil
}

// ByStrategy returns turns emitted with a specific strategy, most recent
// first.
func (j *Journal) ByStrategy(strategy string, limit int) ([]Turn, error) {
	turns, err := j.readAll()
	if err != nil {
		return nil, err
	}

	var result []Turn
	for i := len(turns) - 1; i >= 0 && len(result) < limit; i-- {
		if turns[i].Strategy == strategy {
			result = append(result, turns[i])
		}
	}
	return result, nil
}

// readAll reads every turn from the journal file.
func (j *Journal) readAll() ([]Turn, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var turns []Turn
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var turn Turn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			continue // skip malformed entries
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

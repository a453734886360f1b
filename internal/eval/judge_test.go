package eval

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
)

// helper: judge backed by a fake Ollama server with a fixed response
func newTestJudge(t *testing.T, handler http.HandlerFunc) *Judge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewJudge(srv.URL, "test-model")
}

// helper: handler that returns a fixed generation response
func fixedResponse(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: text, Done: true})
	}
}

func TestScoreParsesRating(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1", 0.0},
		{"2", 0.25},
		{"3", 0.5},
		{"4", 0.75},
		{"5", 1.0},
		{" 4 ", 0.75},
		{"5 - precise and grounded", 1.0},
	}

	for _, tc := range tests {
		j := newTestJudge(t, fixedResponse(tc.raw))
		got, err := j.Score("some message", "some response")
		if err != nil {
			t.Errorf("Score with %q: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Score with %q = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestScoreRejectsUnparseable(t *testing.T) {
	for _, raw := range []string{"I think it deserves a 3", "", "excellent"} {
		j := newTestJudge(t, fixedResponse(raw))
		if _, err := j.Score("msg", "resp"); err == nil {
			t.Errorf("expected parse error for %q", raw)
		}
	}
}

func TestScoreRejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{"0", "7", "9"} {
		j := newTestJudge(t, fixedResponse(raw))
		if _, err := j.Score("msg", "resp"); err == nil {
			t.Errorf("expected range error for %q", raw)
		}
	}
}

func TestScoreServerError(t *testing.T) {
	j := newTestJudge(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	})
	if _, err := j.Score("msg", "resp"); err == nil {
		t.Error("expected error on server failure")
	}
}

func TestScoreSendsPrompt(t *testing.T) {
	var got generateRequest
	j := newTestJudge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "3", Done: true})
	})

	if _, err := j.Score("the grief is back", "let it be here"); err != nil {
		t.Fatalf("Score: %v", err)
	}

	if got.Model != "test-model" {
		t.Errorf("model = %q, want test-model", got.Model)
	}
	if got.Stream {
		t.Error("expected stream: false")
	}
	if !strings.Contains(got.Prompt, "the grief is back") ||
		!strings.Contains(got.Prompt, "let it be here") {
		t.Errorf("prompt missing turn content: %q", got.Prompt)
	}
	if !strings.Contains(got.Prompt, "ONLY a single number") {
		t.Errorf("prompt missing format instruction: %q", got.Prompt)
	}
}

func TestNewJudgeFromEnv(t *testing.T) {
	t.Setenv("OLLAMA_URL", "")
	if j := NewJudgeFromEnv(); j != nil {
		t.Error("expected nil judge without OLLAMA_URL")
	}

	t.Setenv("OLLAMA_URL", "http://example.test:11434")
	t.Setenv("OLLAMA_JUDGE_MODEL", "")
	j := NewJudgeFromEnv()
	if j == nil {
		t.Fatal("expected judge with OLLAMA_URL set")
	}
	if j.baseURL != "http://example.test:11434" {
		t.Errorf("baseURL = %q", j.baseURL)
	}
	if j.model != "llama3.2" {
		t.Errorf("default model = %q, want llama3.2", j.model)
	}

	t.Setenv("OLLAMA_JUDGE_MODEL", "qwen2.5")
	if j := NewJudgeFromEnv(); j.model != "qwen2.5" {
		t.Errorf("model override = %q, want qwen2.5", j.model)
	}
}

func TestEvaluateTurns(t *testing.T) {
	j := newTestJudge(t, fixedResponse("4")) // every verdict 0.75

	turns := []journal.Turn{
		{Input: "a", Output: "ra", Strategy: "direct", Confidence: 0.80},
		{Input: "b", Output: "rb", Strategy: "fusion", Confidence: 0.70},
		{Input: "c", Strategy: "none", Confidence: 0.10}, // silent, skipped
		{Input: "d", Output: "rd", Strategy: "direct", Confidence: 0.75},
	}

	report, err := j.EvaluateTurns(turns)
	if err != nil {
		t.Fatalf("EvaluateTurns: %v", err)
	}

	if report.SampleSize != 3 {
		t.Errorf("sample size = %d, want 3", report.SampleSize)
	}
	if report.QualityAvg != 0.75 {
		t.Errorf("quality avg = %v, want 0.75", report.QualityAvg)
	}
	wantConfAvg := (0.80 + 0.70 + 0.75) / 3
	if diff := report.ConfidenceAvg - wantConfAvg; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("confidence avg = %v, want %v", report.ConfidenceAvg, wantConfAvg)
	}
	// All differences within 0.25, none at 0.5
	if report.Agreement != 1.0 {
		t.Errorf("agreement = %v, want 1.0", report.Agreement)
	}
	if len(report.Outliers) != 0 {
		t.Errorf("expected no outliers, got %d", len(report.Outliers))
	}
	// Constant quality has zero variance
	if report.Correlation != 0 {
		t.Errorf("correlation = %v, want 0", report.Correlation)
	}
}

func TestEvaluateTurnsOutliers(t *testing.T) {
	j := newTestJudge(t, fixedResponse("1")) // every verdict 0.0

	turns := []journal.Turn{
		{Input: "a", Output: "ra", Strategy: "direct", Confidence: 0.9},
		{Input: "b", Output: "rb", Strategy: "direct", Confidence: 0.1},
	}

	report, err := j.EvaluateTurns(turns)
	if err != nil {
		t.Fatalf("EvaluateTurns: %v", err)
	}
	if len(report.Outliers) != 1 {
		t.Fatalf("expected 1 outlier, got %d", len(report.Outliers))
	}
	if report.Outliers[0].Confidence != 0.9 {
		t.Errorf("wrong outlier: %+v", report.Outliers[0])
	}
	if report.Agreement != 0.5 {
		t.Errorf("agreement = %v, want 0.5", report.Agreement)
	}
}

func TestEvaluateTurnsNoEmitted(t *testing.T) {
	j := newTestJudge(t, fixedResponse("3"))

	turns := []journal.Turn{
		{Input: "a", Strategy: "none"},
		{Input: "b", Strategy: "none"},
	}
	if _, err := j.EvaluateTurns(turns); err == nil {
		t.Error("expected error when nothing was emitted")
	}
}

func TestPearsonCorrelation(t *testing.T) {
	// Perfect correlation
	results := []Result{
		{Confidence: 0.1, Quality: 0.1},
		{Confidence: 0.3, Quality: 0.3},
		{Confidence: 0.5, Quality: 0.5},
		{Confidence: 0.7, Quality: 0.7},
		{Confidence: 0.9, Quality: 0.9},
	}
	if corr := pearsonCorrelation(results); corr < 0.99 {
		t.Errorf("perfect correlation should be ~1.0, got %f", corr)
	}

	// Zero variance on one side
	results2 := []Result{
		{Confidence: 0.5, Quality: 0.1},
		{Confidence: 0.5, Quality: 0.9},
	}
	if corr := pearsonCorrelation(results2); corr != 0 {
		t.Errorf("zero variance should give 0, got %f", corr)
	}

	// Anticorrelation
	results3 := []Result{
		{Confidence: 0.1, Quality: 0.9},
		{Confidence: 0.5, Quality: 0.5},
		{Confidence: 0.9, Quality: 0.1},
	}
	if corr := pearsonCorrelation(results3); corr > -0.99 {
		t.Errorf("anticorrelation should be ~-1.0, got %f", corr)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "he..."},
		{"", 5, ""},
		{"hi", 2, "hi"},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

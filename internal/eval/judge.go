// Package eval rates finished turns with an external LLM judge, giving the
// learning store a quality signal independent of the engine's own confidence.
// The judge is optional: without OLLAMA_URL the system learns at neutral
// weight.
package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
)

// Judge scores emitted phrases against the message they answer.
type Judge struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewJudge creates a judge against an Ollama endpoint.
func NewJudge(baseURL, model string) *Judge {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Judge{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 60 * time.Second, // generation can be slow
		},
	}
}

// NewJudgeFromEnv returns nil when OLLAMA_URL is unset. A nil judge is a
// valid configuration meaning no quality verdicts.
func NewJudgeFromEnv() *Judge {
	baseURL := os.Getenv("OLLAMA_URL")
	if baseURL == "" {
		return nil
	}
	return NewJudge(baseURL, os.Getenv("OLLAMA_JUDGE_MODEL"))
}

// judgePrompt is the rating template. An integer scale parses far more
// reliably from small models than a decimal score.
const judgePrompt = `Rate how well this response meets the message it answers.

Message: %s

Response: %s

Rating scale:
1 = Misses the message entirely
2 = Barely touches what was said
3 = Adequate, neither sharp nor wrong
4 = Attuned and specific to the message
5 = Precise, addresses what matters most

Respond with ONLY a single number (1-5).`

var ratingPattern = regexp.MustCompile(`^(\d)`)

// Score rates a response against its message, mapped to 0..1 where 0.5 is
// the neutral midpoint of the scale.
func (j *Judge) Score(message, response string) (float64, error) {
	raw, err := j.generate(fmt.Sprintf(judgePrompt, message, response))
	if err != nil {
		return 0, fmt.Errorf("judge generate: %w", err)
	}

	raw = strings.TrimSpace(raw)
	matches := ratingPattern.FindStringSubmatch(raw)
	if len(matches) < 2 {
		return 0, fmt.Errorf("could not parse rating from response: %q", raw)
	}

	rating, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid rating number: %w", err)
	}
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("rating out of range: %d", rating)
	}

	return float64(rating-1) / 4.0, nil
}

// Result compares the engine's confidence with the judge's verdict for one
// turn.
type Result struct {
	Input      string  `json:"input"`
	Output     string  `json:"output"`
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
	Difference float64 `json:"difference"` // quality - confidence
}

// Report summarizes a batch evaluation of recorded turns.
type Report struct {
	Timestamp     time.Time `json:"timestamp"`
	SampleSize    int       `json:"sample_size"`
	ConfidenceAvg float64   `json:"confidence_avg"`
	QualityAvg    float64   `json:"quality_avg"`
	Bias          float64   `json:"bias"`        // quality_avg - confidence_avg
	Correlation   float64   `json:"correlation"` // Pearson, confidence vs quality
	Agreement     float64   `json:"agreement"`   // share of samples within 0.25
	Results       []Result  `json:"results"`
	Outliers      []Result  `json:"outliers"`    // |difference| >= 0.5
}

// EvaluateTurns judges every emitted turn in the slice and compares the
// verdicts with the engine's confidence. Silent turns are skipped, and a
// judge error drops the sample rather than failing the batch.
func (j *Judge) EvaluateTurns(turns []journal.Turn) (*Report, error) {
	var results []Result
	var totalConfidence, totalQuality float64

	for _, turn := range turns {
		if turn.Output == "" {
			continue
		}

		quality, err := j.Score(turn.Input, turn.Output)
		if err != nil {
			continue
		}

		result := Result{
			Input:      truncate(turn.Input, 100),
			Output:     truncate(turn.Output, 100),
			Strategy:   turn.Strategy,
			Confidence: turn.Confidence,
			Quality:    quality,
			Difference: quality - turn.Confidence,
		}
		results = append(results, result)
		totalConfidence += turn.Confidence
		totalQuality += quality
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no emitted turns to judge")
	}

	n := float64(len(results))
	confidenceAvg := totalConfidence / n
	qualityAvg := totalQuality / n

	var agreement int
	var outliers []Result
	for _, r := range results {
		if math.Abs(r.Difference) <= 0.25 {
			agreement++
		}
		if math.Abs(r.Difference) >= 0.5 {
			outliers = append(outliers, r)
		}
	}

	return &Report{
		Timestamp:     time.Now(),
		SampleSize:    len(results),
		ConfidenceAvg: confidenceAvg,
		QualityAvg:    qualityAvg,
		Bias:          qualityAvg - confidenceAvg,
		Correlation:   pearsonCorrelation(results),
		Agreement:     float64(agreement) / n,
		Results:       results,
		Outliers:      outliers,
	}, nil
}

func pearsonCorrelation(results []Result) float64 {
	if len(results) < 2 {
		return 0
	}

	n := float64(len(results))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for _, r := range results {
		x := r.Confidence
		y := r.Quality
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}

	numerator := n*sumXY - sumX*sumY
	denominator := (n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY)
	if denominator <= 0 {
		return 0
	}
	return numerator / math.Sqrt(denominator)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// generateRequest is the Ollama API request format for generation
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the Ollama API response format for generation
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (j *Judge) generate(prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  j.model,
		Prompt: prompt,
		Stream: false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := j.client.Post(
		j.baseURL+"/api/generate",
		"application/json",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.Response, nil
}

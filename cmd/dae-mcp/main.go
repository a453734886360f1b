// dae-mcp exposes the response engine over MCP stdio.
//
// Tools: process_turn runs a full learning turn, query_patterns scores text
// against the stored pattern history without learning, coupling_matrix and
// recent_turns inspect the store and the turn journal. All tools share one
// engine instance, so turns processed here land in the same state directory
// the daemon uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/emission"
	"github.com/axo-lotto/dae-gov-sub013/internal/eval"
	"github.com/axo-lotto/dae-gov-sub013/internal/hebbian"
	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
	"github.com/axo-lotto/dae-gov-sub013/internal/occasion"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
	"github.com/axo-lotto/dae-gov-sub013/internal/pipeline"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

type engine struct {
	pipe     *pipeline.Pipeline
	store    *hebbian.Store
	jrnl     *journal.Journal
	builder  *occasion.Builder
	registry *organ.Registry
}

func main() {
	// Load .env file - try executable's parent dir (repo root), then exe dir, then cwd
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"),
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}
	thresholdsPath := os.Getenv("THRESHOLDS_PATH")
	if thresholdsPath == "" {
		thresholdsPath = "thresholds.yaml"
	}

	cfg, err := config.Load(thresholdsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load thresholds: %v\n", err)
		os.Exit(1)
	}

	vocabs, err := organ.LoadVocabularies(os.Getenv("VOCABULARIES_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load vocabularies: %v\n", err)
		os.Exit(1)
	}
	registry, err := organ.DefaultRegistry(vocabs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build organ registry: %v\n", err)
		os.Exit(1)
	}

	store := hebbian.New(registry.Names(), cfg)
	if err := store.Open(statePath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: learning store persistence unavailable, running in-memory: %v\n", err)
	}
	store.Start()

	jrnl := journal.New(statePath)

	eng := &engine{
		store:    store,
		jrnl:     jrnl,
		builder:  occasion.NewBuilder(true),
		registry: registry,
		pipe: pipeline.New(cfg, registry, store, pipeline.Options{
			Judge:           eval.NewJudgeFromEnv(),
			Journal:         jrnl,
			ExtractEntities: true,
		}),
	}

	s := server.NewMCPServer(
		"dae-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register tools
	s.AddTool(processTurnTool(), eng.handleProcessTurn)
	s.AddTool(queryPatternsTool(), eng.handleQueryPatterns)
	s.AddTool(couplingMatrixTool(), eng.handleCouplingMatrix)
	s.AddTool(recentTurnsTool(), eng.handleRecentTurns)

	// Run server; flush the store when stdin closes
	serveErr := server.ServeStdio(s)
	if err := store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close learning store: %v\n", err)
	}
	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
		os.Exit(1)
	}
}

func processTurnTool() mcp.Tool {
	return mcp.NewTool("process_turn",
		mcp.WithDescription("Run one text turn through the organ ensemble: convergence, emission, learning update, journal record. Empty text is a valid silent turn; the coupling matrix still decays."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Input text for the turn"),
		),
	)
}

func (e *engine) handleProcessTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)

	resp, err := e.pipe.ProcessTurn(ctx, pipeline.Request{Text: text, Source: "mcp"})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}

	out := map[string]any{
		"strategy":     resp.Phrase.Strategy,
		"text":         resp.Phrase.Text,
		"confidence":   resp.Phrase.Confidence,
		"state":        resp.State.State,
		"cycles":       resp.State.Cycle,
		"energy":       resp.State.Energy,
		"satisfaction": resp.State.Satisfaction,
	}
	if len(resp.Phrase.Participants) > 0 {
		out["participants"] = resp.Phrase.Participants
	}
	if len(resp.Phrase.SourceAtoms) > 0 {
		out["source_atoms"] = resp.Phrase.SourceAtoms
	}
	if resp.Phrase.KairosBoosted {
		out["kairos_boosted"] = true
	}
	if resp.Quality != nil {
		out["quality"] = *resp.Quality
	}

	return jsonResult(out)
}

func queryPatternsTool() mcp.Tool {
	return mcp.NewTool("query_patterns",
		mcp.WithDescription("Score text through the organ ensemble and return the nearest stored patterns by activation-vector similarity. Read-only: no learning update, no journal record."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to score and match"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum matches to return (default 5)"),
		),
	)
}

func (e *engine) handleQueryPatterns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	text, _ := args["text"].(string)
	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	occ := e.builder.Build(text)
	cycle := &types.CycleContext{Cycle: 1}

	var results []*types.OrganResult
	for _, scorer := range e.registry.All() {
		res, err := scorer.Score(ctx, occ, cycle)
		if err != nil {
			res = types.NeutralResult(scorer.Name())
		}
		results = append(results, res)
	}

	activations := emission.OrganActivity(results)
	matches := e.store.Query(activations, limit)

	return jsonResult(map[string]any{
		"activations": activations,
		"matches":     matches,
	})
}

func couplingMatrixTool() mcp.Tool {
	return mcp.NewTool("coupling_matrix",
		mcp.WithDescription("Inspect the Hebbian learning store: organ list, strongest coupling pairs, pattern count."),
		mcp.WithNumber("top",
			mcp.Description("How many strongest pairs to return (default 10)"),
		),
	)
}

func (e *engine) handleCouplingMatrix(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	top := 10
	if n, ok := args["top"].(float64); ok && n > 0 {
		top = int(n)
	}

	return jsonResult(map[string]any{
		"organs":        e.store.Organs(),
		"top_pairs":     e.store.TopPairs(top),
		"pattern_count": e.store.PatternCount(),
	})
}

func recentTurnsTool() mcp.Tool {
	return mcp.NewTool("recent_turns",
		mcp.WithDescription("Read the turn journal: recent processed turns with input, output, strategy, confidence, and quality verdicts."),
		mcp.WithNumber("n",
			mcp.Description("How many turns to return (default 10)"),
		),
		mcp.WithString("strategy",
			mcp.Description("Filter by strategy: direct, fusion, hebbian_fallback, none"),
		),
	)
}

func (e *engine) handleRecentTurns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	n := 10
	if v, ok := args["n"].(float64); ok && v > 0 {
		n = int(v)
	}
	strategy, _ := args["strategy"].(string)

	var turns []journal.Turn
	var err error
	if strategy != "" {
		turns, err = e.jrnl.ByStrategy(strategy, n)
	} else {
		turns, err = e.jrnl.Recent(n)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read journal: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"count": len(turns),
		"turns": turns,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

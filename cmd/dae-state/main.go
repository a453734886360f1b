// dae-state inspects the engine's learning state from the command line:
// the organ coupling matrix, captured patterns, the turn journal, and the
// active threshold configuration. It reads the same state directory the
// daemon writes, so it must be built with the same organ set.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/eval"
	"github.com/axo-lotto/dae-gov-sub013/internal/hebbian"
	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
)

func main() {
	godotenv.Load() // same env file the daemon reads; absence is fine

	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}
	thresholdsPath := os.Getenv("THRESHOLDS_PATH")
	if thresholdsPath == "" {
		thresholdsPath = "thresholds.yaml"
	}

	cmd := "summary"
	var args []string
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	switch cmd {
	case "summary":
		handleSummary(statePath, thresholdsPath)
	case "matrix":
		handleMatrix(statePath, thresholdsPath, args)
	case "patterns":
		handlePatterns(statePath, thresholdsPath, args)
	case "recent":
		handleRecent(statePath, args)
	case "search":
		handleSearch(statePath, args)
	case "judge":
		handleJudge(statePath, args)
	case "thresholds":
		handleThresholds(thresholdsPath, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`dae-state - Inspect the response engine's learning state

Usage: dae-state <command> [options]

Commands:
  summary              Overview of organs, coupling, and history (default)

  matrix               Show the full organ coupling matrix
  matrix -top N        Also list the N strongest pairs (default 10)

  patterns             List recent captured patterns
  patterns -n N        Number of patterns to show (default 20)
  patterns <id>        Show one pattern as JSON

  recent               Show recent turns from the journal
  recent -n N          Number of turns to show (default 20)
  recent -strategy s   Filter by emission strategy (direct, fusion,
                       hebbian_fallback, none)

  search -q <text>     Search turn inputs and outputs
  search -n N          Number of matches to show (default 20)

  judge                Re-judge recent turns against engine confidence
  judge -n N           Number of turns to judge (default 20)

  thresholds           Print the active threshold configuration
  thresholds -write F  Write the active thresholds to file F

Environment:
  STATE_PATH           State directory (default: "state")
  THRESHOLDS_PATH      Threshold YAML file (default: "thresholds.yaml")
  VOCABULARIES_PATH    Organ vocabulary YAML (optional)
  OLLAMA_URL           Judge endpoint, required by the judge command`)
}

// openStore attaches the persisted learning state using the daemon's own
// configuration and organ basis. A differing organ set would silently skip
// coupling rows on load, so the registry is built exactly as the daemon
// builds it.
func openStore(statePath, thresholdsPath string) *hebbian.Store {
	cfg, err := config.Load(thresholdsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	vocabs, err := organ.LoadVocabularies(os.Getenv("VOCABULARIES_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	registry, err := organ.DefaultRegistry(vocabs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := hebbian.New(registry.Names(), cfg)
	if err := store.Open(statePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleSummary(statePath, thresholdsPath string) {
	store := openStore(statePath, thresholdsPath)
	defer store.Close()

	jrnl := journal.New(statePath)
	turns, err := jrnl.Count()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	organs := store.Organs()

	fmt.Println("State Summary")
	fmt.Println("=============")
	fmt.Printf("Organs:    %d (%s)\n", len(organs), strings.Join(organs, ", "))
	fmt.Printf("Patterns:  %d\n", store.PatternCount())
	fmt.Printf("Turns:     %d\n", turns)

	fmt.Println("\nStrongest coupling pairs:")
	pairs := store.TopPairs(5)
	if len(pairs) == 0 || pairs[0].Weight == 0 {
		fmt.Println("  (no coupling learned yet)")
		return
	}
	for _, p := range pairs {
		if p.Weight == 0 {
			continue
		}
		fmt.Printf("  %s / %s  %.4f\n", p.OrganA, p.OrganB, p.Weight)
	}
}

func handleMatrix(statePath, thresholdsPath string, args []string) {
	fs := flag.NewFlagSet("matrix", flag.ExitOnError)
	top := fs.Int("top", 10, "Number of strongest pairs to list")
	fs.Parse(args)

	store := openStore(statePath, thresholdsPath)
	defer store.Close()

	organs := store.Organs()

	fmt.Println("Coupling Matrix")
	fmt.Println("===============")
	fmt.Printf("%-12s", "")
	for _, name := range organs {
		fmt.Printf("%10s", name)
	}
	fmt.Println()
	for _, rowName := range organs {
		fmt.Printf("%-12s", rowName)
		for _, colName := range organs {
			if rowName == colName {
				fmt.Printf("%10s", "-")
				continue
			}
			fmt.Printf("%10.4f", store.Coupling(rowName, colName))
		}
		fmt.Println()
	}

	fmt.Printf("\nStrongest pairs (top %d):\n", *top)
	for _, p := range store.TopPairs(*top) {
		fmt.Printf("  %s / %s  %.4f\n", p.OrganA, p.OrganB, p.Weight)
	}
}

func handlePatterns(statePath, thresholdsPath string, args []string) {
	fs := flag.NewFlagSet("patterns", flag.ExitOnError)
	count := fs.Int("n", 20, "Number of patterns to show")
	fs.Parse(args)

	store := openStore(statePath, thresholdsPath)
	defer store.Close()

	// Show single pattern as JSON
	if fs.NArg() > 0 {
		id := fs.Arg(0)
		for _, rec := range store.RecentPatterns(0) {
			if rec.ID == id {
				data, _ := json.MarshalIndent(rec, "", "  ")
				fmt.Println(string(data))
				return
			}
		}
		fmt.Fprintf(os.Stderr, "Error: pattern %s not found\n", id)
		os.Exit(1)
	}

	recs := store.RecentPatterns(*count)

	fmt.Printf("Patterns (%d of %d, newest first)\n", len(recs), store.PatternCount())
	fmt.Println("================================")
	for _, rec := range recs {
		age := time.Since(rec.CreatedAt).Round(time.Second)
		fmt.Printf("%s (%s, conf=%.2f, %s ago)\n  %s\n\n",
			rec.ID, rec.Signature, rec.Confidence, age, rec.Output)
	}
}

func handleRecent(statePath string, args []string) {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	count := fs.Int("n", 20, "Number of turns to show")
	strategy := fs.String("strategy", "", "Filter by emission strategy")
	fs.Parse(args)

	jrnl := journal.New(statePath)

	var turns []journal.Turn
	var err error
	if *strategy != "" {
		turns, err = jrnl.ByStrategy(*strategy, *count)
	} else {
		turns, err = jrnl.Recent(*count)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Recent Turns (%d)\n", len(turns))
	fmt.Println("================")
	printTurns(turns)
}

func handleSearch(statePath string, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("q", "", "Substring to match against inputs and outputs")
	count := fs.Int("n", 20, "Number of matches to show")
	fs.Parse(args)

	if *query == "" {
		fmt.Fprintln(os.Stderr, "Error: -q is required")
		os.Exit(1)
	}

	jrnl := journal.New(statePath)
	turns, err := jrnl.Search(*query, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Matching Turns (%d)\n", len(turns))
	fmt.Println("==================")
	printTurns(turns)
}

func printTurns(turns []journal.Turn) {
	for _, t := range turns {
		head := fmt.Sprintf("%s conf=%.2f", t.Strategy, t.Confidence)
		if t.Quality != nil {
			head += fmt.Sprintf(" quality=%.2f", *t.Quality)
		}
		out := t.Output
		if out == "" {
			out = "(silent)"
		}
		age := time.Since(t.Timestamp).Round(time.Second)
		fmt.Printf("%s (%s, %s ago)\n  in:  %s\n  out: %s\n\n",
			head, t.Source, age, t.Input, out)
	}
}

func handleJudge(statePath string, args []string) {
	fs := flag.NewFlagSet("judge", flag.ExitOnError)
	count := fs.Int("n", 20, "Number of recent turns to judge")
	fs.Parse(args)

	judge := eval.NewJudgeFromEnv()
	if judge == nil {
		fmt.Fprintln(os.Stderr, "Error: OLLAMA_URL not set, the judge needs a model endpoint")
		os.Exit(1)
	}

	jrnl := journal.New(statePath)
	turns, err := jrnl.Recent(*count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, err := judge.EvaluateTurns(turns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Judge Report")
	fmt.Println("============")
	fmt.Printf("Sample:      %d turns\n", report.SampleSize)
	fmt.Printf("Confidence:  %.2f avg\n", report.ConfidenceAvg)
	fmt.Printf("Quality:     %.2f avg\n", report.QualityAvg)
	fmt.Printf("Bias:        %+.2f\n", report.Bias)
	fmt.Printf("Correlation: %.2f\n", report.Correlation)
	fmt.Printf("Agreement:   %.0f%% within 0.25\n", report.Agreement*100)

	if len(report.Outliers) > 0 {
		fmt.Println("\nOutliers:")
		for _, r := range report.Outliers {
			fmt.Printf("  conf=%.2f quality=%.2f (%s)\n    %s\n",
				r.Confidence, r.Quality, r.Strategy, r.Output)
		}
	}
}

func handleThresholds(thresholdsPath string, args []string) {
	fs := flag.NewFlagSet("thresholds", flag.ExitOnError)
	write := fs.String("write", "", "Write the active thresholds to a YAML file")
	fs.Parse(args)

	cfg, err := config.Load(thresholdsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *write != "" {
		if err := cfg.Save(*write); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote thresholds to %s\n", *write)
		return
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Thresholds")
	fmt.Println("==========")
	fmt.Print(string(data))
}

// dae-synthetic replays scripted conversations through the response pipeline
// and checks expectations against each emission. Every scenario starts from a
// fresh in-memory learning store, so runs are repeatable and never touch the
// daemon's state directory. Scenarios are YAML files under tests/scenarios/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/hebbian"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
	"github.com/axo-lotto/dae-gov-sub013/internal/pipeline"
)

// Scenario defines a scripted conversation
type Scenario struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	ShowCoupling bool   `yaml:"show_coupling"` // print top coupling pairs after the run
	Turns        []Turn `yaml:"turns"`
}

// Turn is one input line plus optional expectations on its emission
type Turn struct {
	Say    string  `yaml:"say"`
	Expect *Expect `yaml:"expect"`
}

// Expect defines expectations for one turn's emission
type Expect struct {
	Silent        *bool    `yaml:"silent"`
	Strategy      string   `yaml:"strategy"`
	Contains      string   `yaml:"contains"`
	ContainsAny   []string `yaml:"contains_any"`
	NotContains   string   `yaml:"not_contains"`
	MinConfidence float64  `yaml:"min_confidence"`
}

var verbose bool

func main() {
	godotenv.Load() // same env file the daemon reads; absence is fine

	scenarioPath := flag.String("scenario", "", "Path to scenario YAML file")
	scenarioDir := flag.String("dir", "tests/scenarios", "Directory containing scenario files")
	listScenarios := flag.Bool("list", false, "List available scenarios")
	runAll := flag.Bool("all", false, "Run all scenarios")
	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.Parse()

	if *listScenarios {
		scenarios, _ := filepath.Glob(filepath.Join(*scenarioDir, "*.yaml"))
		fmt.Println("Available scenarios:")
		for _, s := range scenarios {
			scenario, err := loadScenario(s)
			if err != nil {
				continue
			}
			fmt.Printf("  %s - %s\n", scenario.Name, scenario.Description)
		}
		return
	}

	if *runAll {
		scenarios, _ := filepath.Glob(filepath.Join(*scenarioDir, "*.yaml"))
		results := make(map[string]bool)
		for _, s := range scenarios {
			scenario, err := loadScenario(s)
			if err != nil {
				log.Printf("Failed to load %s: %v", s, err)
				continue
			}
			results[scenario.Name] = runScenario(scenario)
		}

		fmt.Println("\n=== Summary ===")
		passed, failed := 0, 0
		for name, success := range results {
			if success {
				fmt.Printf("  ✓ %s\n", name)
				passed++
			} else {
				fmt.Printf("  ✗ %s\n", name)
				failed++
			}
		}
		fmt.Printf("\nPassed: %d, Failed: %d\n", passed, failed)
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	if *scenarioPath == "" {
		*scenarioPath = filepath.Join(*scenarioDir, "grief.yaml")
	}

	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}

	if !runScenario(scenario) {
		os.Exit(1)
	}
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// newPipeline builds a pipeline over a blank in-memory store, configured the
// same way the daemon configures itself.
func newPipeline() (*pipeline.Pipeline, *hebbian.Store, error) {
	thresholdsPath := os.Getenv("THRESHOLDS_PATH")
	if thresholdsPath == "" {
		thresholdsPath = "thresholds.yaml"
	}
	cfg, err := config.Load(thresholdsPath)
	if err != nil {
		return nil, nil, err
	}

	vocabs, err := organ.LoadVocabularies(os.Getenv("VOCABULARIES_PATH"))
	if err != nil {
		return nil, nil, err
	}
	registry, err := organ.DefaultRegistry(vocabs)
	if err != nil {
		return nil, nil, err
	}

	store := hebbian.New(registry.Names(), cfg)
	pipe := pipeline.New(cfg, registry, store, pipeline.Options{ExtractEntities: true})
	return pipe, store, nil
}

func runScenario(scenario *Scenario) bool {
	log.Printf("=== Scenario: %s ===", scenario.Name)
	log.Printf("Description: %s", scenario.Description)

	pipe, store, err := newPipeline()
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	allPassed := true
	for i, turn := range scenario.Turns {
		resp, err := pipe.ProcessTurn(context.Background(), pipeline.Request{
			Text:   turn.Say,
			Source: "synthetic",
		})
		if err != nil {
			log.Printf("✗ turn %d: %v", i+1, err)
			allPassed = false
			continue
		}

		if verbose {
			log.Printf("> %s", turn.Say)
			if resp.Phrase.IsEmpty() {
				log.Printf("  (silent) [%s, %d cycles]", resp.State.State, resp.State.Cycle)
			} else {
				log.Printf("  %s [%s, conf=%.2f, %d cycles]",
					resp.Phrase.Text, resp.Phrase.Strategy, resp.Phrase.Confidence, resp.State.Cycle)
			}
		}

		if turn.Expect != nil {
			if checkExpect(i+1, turn.Expect, resp) {
				if verbose {
					log.Printf("✓ turn %d expectations passed", i+1)
				}
			} else {
				allPassed = false
			}
		}
	}

	if scenario.ShowCoupling {
		log.Println("--- Coupling after run ---")
		for _, p := range store.TopPairs(5) {
			log.Printf("  %s / %s  %.4f", p.OrganA, p.OrganB, p.Weight)
		}
	}

	if allPassed {
		log.Printf("✓ %s passed", scenario.Name)
	} else {
		log.Printf("✗ %s failed", scenario.Name)
	}
	return allPassed
}

func checkExpect(turn int, exp *Expect, resp *pipeline.Response) bool {
	phrase := resp.Phrase
	text := strings.ToLower(phrase.Text)
	passed := true

	fail := func(format string, args ...any) {
		log.Printf("  ✗ turn %d: %s", turn, fmt.Sprintf(format, args...))
		passed = false
	}

	if exp.Silent != nil && phrase.IsEmpty() != *exp.Silent {
		if *exp.Silent {
			fail("expected silence, got %q (%s)", phrase.Text, phrase.Strategy)
		} else {
			fail("expected an emission, got silence")
		}
	}
	if exp.Strategy != "" && string(phrase.Strategy) != exp.Strategy {
		fail("expected strategy %s, got %s", exp.Strategy, phrase.Strategy)
	}
	if exp.Contains != "" && !strings.Contains(text, strings.ToLower(exp.Contains)) {
		fail("expected output to contain %q, got %q", exp.Contains, phrase.Text)
	}
	if len(exp.ContainsAny) > 0 {
		found := false
		for _, want := range exp.ContainsAny {
			if strings.Contains(text, strings.ToLower(want)) {
				found = true
				break
			}
		}
		if !found {
			fail("expected output to contain any of %v, got %q", exp.ContainsAny, phrase.Text)
		}
	}
	if exp.NotContains != "" && strings.Contains(text, strings.ToLower(exp.NotContains)) {
		fail("expected output not to contain %q, got %q", exp.NotContains, phrase.Text)
	}
	if exp.MinConfidence > 0 && phrase.Confidence < exp.MinConfidence {
		fail("expected confidence >= %.2f, got %.2f", exp.MinConfidence, phrase.Confidence)
	}

	return passed
}

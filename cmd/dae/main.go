package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/axo-lotto/dae-gov-sub013/internal/config"
	"github.com/axo-lotto/dae-gov-sub013/internal/effectors"
	"github.com/axo-lotto/dae-gov-sub013/internal/eval"
	"github.com/axo-lotto/dae-gov-sub013/internal/hebbian"
	"github.com/axo-lotto/dae-gov-sub013/internal/journal"
	"github.com/axo-lotto/dae-gov-sub013/internal/organ"
	"github.com/axo-lotto/dae-gov-sub013/internal/pipeline"
	"github.com/axo-lotto/dae-gov-sub013/internal/profiling"
	"github.com/axo-lotto/dae-gov-sub013/internal/senses"
)

func main() {
	log.Println("dae - organ-ensemble response engine")
	log.Println("====================================")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	// Config from environment
	discordToken := os.Getenv("DISCORD_TOKEN")
	discordChannel := os.Getenv("DISCORD_CHANNEL_ID")
	discordOwner := os.Getenv("DISCORD_OWNER_ID")
	ackEmoji := os.Getenv("DISCORD_ACK_EMOJI")
	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}
	thresholdsPath := os.Getenv("THRESHOLDS_PATH")
	if thresholdsPath == "" {
		thresholdsPath = "thresholds.yaml"
	}
	vocabPath := os.Getenv("VOCABULARIES_PATH")

	// Ensure state directory exists
	os.MkdirAll(statePath, 0755)

	// Thresholds (defaults when the file is absent)
	cfg, err := config.Load(thresholdsPath)
	if err != nil {
		log.Fatalf("Failed to load thresholds: %v", err)
	}

	// Organ ensemble
	vocabs, err := organ.LoadVocabularies(vocabPath)
	if err != nil {
		log.Fatalf("Failed to load vocabularies: %v", err)
	}
	registry, err := organ.DefaultRegistry(vocabs)
	if err != nil {
		log.Fatalf("Failed to build organ registry: %v", err)
	}

	// Learning store: persistence failure degrades to in-memory
	store := hebbian.New(registry.Names(), cfg)
	if err := store.Open(statePath); err != nil {
		log.Printf("Warning: learning store persistence unavailable, running in-memory: %v", err)
	}
	store.Start()

	jrnl := journal.New(statePath)

	// Optional quality judge (OLLAMA_URL)
	judge := eval.NewJudgeFromEnv()
	if judge != nil {
		log.Println("[main] Quality judge enabled")
	}

	// Optional turn profiling (PROFILE_LEVEL)
	profiler, err := profiling.New(
		profiling.ParseLevel(os.Getenv("PROFILE_LEVEL")),
		filepath.Join(statePath, "system", "profile.jsonl"),
	)
	if err != nil {
		log.Printf("Warning: profiling disabled: %v", err)
		profiler = nil
	}

	pipe := pipeline.New(cfg, registry, store, pipeline.Options{
		Judge:           judge,
		Journal:         jrnl,
		Profiler:        profiler,
		ExtractEntities: true,
		OrganTimeout:    2 * time.Second,
	})

	done := make(chan struct{})
	var sense *senses.DiscordSense

	if discordToken != "" {
		sense = startDiscord(pipe, senses.DiscordConfig{
			Token:     discordToken,
			ChannelID: discordChannel,
			OwnerID:   discordOwner,
		}, ackEmoji)
		log.Println("[main] All subsystems started. Press Ctrl+C to stop.")
	} else {
		log.Println("[main] No DISCORD_TOKEN set, reading turns from stdin")
		go func() {
			runREPL(pipe)
			close(done)
		}()
	}

	// Wait for shutdown signal (or stdin EOF in REPL mode)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-done:
	}

	log.Println("[main] Shutting down...")

	if sense != nil {
		sense.Stop()
	}
	if err := store.Close(); err != nil {
		log.Printf("Warning: failed to close learning store: %v", err)
	}
	if profiler != nil {
		profiler.Close()
	}

	log.Println("[main] Goodbye!")
}

// startDiscord wires the sense/effector pair around the pipeline. Each
// forwarded message becomes one turn; silence stays silent apart from an
// optional acknowledgment reaction on directly-addressed messages.
func startDiscord(pipe *pipeline.Pipeline, cfg senses.DiscordConfig, ackEmoji string) *senses.DiscordSense {
	var effector *effectors.DiscordEffector

	sense, err := senses.NewDiscordSense(cfg, func(msg senses.Message) {
		effector.Typing(msg.ChannelID)

		resp, err := pipe.ProcessTurn(context.Background(), pipeline.Request{
			Text:    msg.Content,
			Source:  "discord",
			Channel: msg.ChannelID,
		})
		if err != nil {
			log.Printf("[main] Turn failed: %v", err)
			return
		}

		if resp.Phrase.IsEmpty() {
			if ackEmoji != "" && (msg.DM || msg.MentionsBot) {
				if err := effector.React(msg.ChannelID, msg.MessageID, ackEmoji); err != nil {
					log.Printf("[main] Failed to add reaction: %v", err)
				}
			}
			return
		}

		if err := effector.Send(msg.ChannelID, resp.Phrase.Text); err != nil {
			log.Printf("[main] Failed to send reply: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to create Discord sense: %v", err)
	}

	// Effector shares the sense's session; assigned before Start so the
	// message handler never sees it nil
	effector = effectors.NewDiscordEffector(sense.Session())

	if err := sense.Start(); err != nil {
		log.Fatalf("Failed to start Discord sense: %v", err)
	}

	return sense
}

// runREPL processes stdin lines as turns until EOF or "quit". Empty lines are
// real turns: they score nothing and let the coupling matrix decay.
func runREPL(pipe *pipeline.Pipeline) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if line == "quit" || line == "exit" {
			return
		}

		resp, err := pipe.ProcessTurn(context.Background(), pipeline.Request{
			Text:   line,
			Source: "repl",
		})
		if err != nil {
			log.Printf("[main] Turn failed: %v", err)
			continue
		}

		if resp.Phrase.IsEmpty() {
			fmt.Printf("  ... [%s, %d cycles, energy %.3f]\n",
				resp.State.State, resp.State.Cycle, resp.State.Energy)
			continue
		}
		fmt.Printf("  %s\n", resp.Phrase.Text)
		fmt.Printf("  [%s, confidence %.2f, %d cycles, %s]\n",
			resp.Phrase.Strategy, resp.Phrase.Confidence, resp.State.Cycle, resp.State.State)
	}
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/cascada/internal/config"
	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/scenario"
	"github.com/user/cascada/internal/state"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "cascada",
	Short:         "Group-buy negotiation playback",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".cascada", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config, w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// stores is the file-backed journal under the data dir.
type stores struct {
	runs        *state.RunStore
	events      *state.EventStore
	transcripts *state.TranscriptStore
	items       *state.ItemStore
}

func openStores(cfg *config.Config) (*stores, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &stores{
		runs:        state.NewRunStore(cfg.DataDir),
		events:      state.NewEventStore(cfg.DataDir),
		transcripts: state.NewTranscriptStore(cfg.DataDir),
		items:       state.NewItemStore(filepath.Join(cfg.DataDir, "items.json")),
	}, nil
}

// newOrchestrator builds an orchestrator for the configured scenario and
// journals its runs into st.
func newOrchestrator(cfg *config.Config, st *stores) (*orchestrator.Orchestrator, error) {
	scn, err := scenario.Load(cfg.Playback.Scenario)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	o, err := orchestrator.New(orchestrator.Options{
		Scenario:      scn,
		Speed:         cfg.Playback.Speed,
		Seed:          cfg.Playback.Seed,
		MaxConcurrent: cfg.Playback.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	orchestrator.NewRecorder(st.runs, st.events, st.transcripts).Attach(o)
	return o, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/tui"
)

var (
	playPlain    bool
	playSpeed    float64
	playSeed     int64
	playScenario string
)

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().BoolVar(&playPlain, "plain", false, "print messages as lines and exit when the run settles")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 0, "speed factor (overrides playback.speed)")
	playCmd.Flags().Int64Var(&playSeed, "seed", 0, "random seed (overrides playback.seed)")
	playCmd.Flags().StringVar(&playScenario, "scenario", "", "scenario YAML file (overrides playback.scenario)")
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a negotiation run in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cmd.Flags().Changed("speed") {
		cfg.Playback.Speed = playSpeed
	}
	if cmd.Flags().Changed("seed") {
		cfg.Playback.Seed = playSeed
	}
	if playScenario != "" {
		cfg.Playback.Scenario = playScenario
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if playPlain {
		setupLogging(cfg, os.Stderr)
		o, err := newOrchestrator(cfg, st)
		if err != nil {
			return err
		}
		return playPlainRun(ctx, o)
	}

	// The live view owns the terminal, so logs go to a file.
	logPath := filepath.Join(cfg.DataDir, "play.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	setupLogging(cfg, logFile)

	o, err := newOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	return tui.Run(ctx, o)
}

func playPlainRun(ctx context.Context, o *orchestrator.Orchestrator) error {
	printer := tui.NewPlain(os.Stdout, o.Snapshot())
	o.OnUpdate(printer.Handle)
	o.OnSummary(printer.Summary)
	defer o.Stop()

	if _, err := o.Start(ctx); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	err := o.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, orchestrator.ErrRunCancelled) {
		return nil
	}
	return err
}

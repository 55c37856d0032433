package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/cascada/internal/api"
	"github.com/user/cascada/internal/delivery"
	"github.com/user/cascada/internal/items"
	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/scheduler"
	"github.com/user/cascada/internal/telegram"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cascada daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "cascada.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg, os.Stderr)

	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	o, err := newOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	defer o.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("cascada started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"scenario", o.Scenario().Name,
		"threads", len(o.Scenario().Threads),
		"speed", cfg.Playback.Speed,
		"pid_file", pidPath,
	)

	// Delivery registry
	deliveryReg := delivery.NewRegistry()
	var keys []string

	if cfg.Telegram.Token != "" {
		bot, err := telegram.New(cfg.Telegram.Token, o, cfg.Telegram.ChatIDs)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		go bot.Start(ctx)
		slog.Info("telegram bot started", "chats", len(cfg.Telegram.ChatIDs))

		deliveryReg.Register("telegram:", bot.SendTo)
		for _, id := range cfg.Telegram.ChatIDs {
			keys = append(keys, telegram.ChatKey(id))
		}
	} else {
		slog.Warn("telegram bot disabled (no token)")
	}

	notifier := delivery.NewNotifier(deliveryReg, keys)
	defer notifier.Stop()
	if len(keys) > 0 {
		o.OnSummary(func(sum orchestrator.Summary) {
			notifier.Notify(sum.Text())
		})
	}

	// Kiosk replays
	sched := scheduler.New(cfg.Demo.Schedule, func() {
		if _, err := o.Restart(ctx); err != nil {
			slog.Error("scheduled replay failed", "error", err)
		}
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Control API
	if cfg.HTTP.Enabled {
		tracker := items.NewTracker(items.NewFetcher(), st.items)
		srv := api.NewServer(ctx, o, api.Stores{
			Runs:        st.runs,
			Events:      st.events,
			Transcripts: st.transcripts,
		}, tracker)
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: srv,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// The new process image skips deferred cleanup.
			o.Stop()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

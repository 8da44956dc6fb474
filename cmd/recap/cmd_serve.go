package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/recap/internal/config"
	"github.com/user/recap/internal/scheduler"
	"github.com/user/recap/internal/types"
)

var (
	serveArchive string
	serveSince   string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveArchive, "archive", "", "path to the exported activity archive (JSON)")
	serveCmd.Flags().StringVar(&serveSince, "since", "24h", "window each digest covers (e.g. 24h, 7d)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run recurring digests on the configured cron schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Schedule == "" {
		return fmt.Errorf("no schedule configured: set schedule in config (cron syntax)")
	}
	if cfg.TargetUser == "" {
		return fmt.Errorf("no target user: set target_user in config")
	}
	if serveArchive == "" {
		return fmt.Errorf("no activity archive: pass --archive")
	}
	since, err := parseSince(serveSince)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "reports"), 0755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	agg, cache, err := buildPipeline(cfg, serveArchive, cfg.TargetUser)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(cfg.Schedule, func() {
		now := time.Now().UTC()
		report, err := agg.Run(ctx, cfg.TargetUser, types.TimeRange{From: now.Add(-since), To: now})
		if err != nil {
			slog.Error("digest run failed", "error", err)
			return
		}
		path := filepath.Join(cfg.DataDir, "reports", now.Format("2006-01-02T15-04-05")+".json")
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			slog.Error("digest marshal failed", "error", err)
			return
		}
		if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
			slog.Error("digest write failed", "path", path, "error", err)
			return
		}
		slog.Info("digest written", "path", path, "channels", len(report.Channels))
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("recap started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"schedule", cfg.Schedule,
		"target_user", cfg.TargetUser,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)

	// SIGHUP re-reads the config and swaps the cron schedule in place.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			slog.Info("shutting down", "signal", sig)
			return nil
		}
		fresh, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("config reload failed", "error", err)
			continue
		}
		if fresh.Schedule == "" {
			slog.Error("config reload skipped: no schedule configured")
			continue
		}
		if err := sched.Reload(fresh.Schedule); err != nil {
			slog.Error("schedule reload failed", "schedule", fresh.Schedule, "error", err)
			continue
		}
		cfg.Schedule = fresh.Schedule
		slog.Info("schedule reloaded", "schedule", fresh.Schedule)
	}
	return nil
}

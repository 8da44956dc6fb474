package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/recap/internal/boundary"
	"github.com/user/recap/internal/config"
	"github.com/user/recap/internal/consolidate"
	"github.com/user/recap/internal/fetch"
	"github.com/user/recap/internal/narrate"
	"github.com/user/recap/internal/pipeline"
	"github.com/user/recap/internal/store"
	"github.com/user/recap/internal/types"
	"github.com/user/recap/internal/workpool"
	"github.com/user/recap/pkg/llm"
	"github.com/user/recap/pkg/llm/clicmd"
	"github.com/user/recap/pkg/llm/openai"
)

var (
	reportUser    string
	reportSince   string
	reportArchive string
	reportOutput  string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportUser, "user", "", "target user ID (defaults to config target_user)")
	reportCmd.Flags().StringVar(&reportSince, "since", "7d", "how far back to report (e.g. 24h, 7d)")
	reportCmd.Flags().StringVar(&reportArchive, "archive", "", "path to the exported activity archive (JSON)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "write the report to a file instead of stdout")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run one pipeline pass and print the report as JSON",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	user := reportUser
	if user == "" {
		user = cfg.TargetUser
	}
	if user == "" {
		return fmt.Errorf("no target user: pass --user or set target_user in config")
	}
	if reportArchive == "" {
		return fmt.Errorf("no activity archive: pass --archive")
	}

	since, err := parseSince(reportSince)
	if err != nil {
		return err
	}

	agg, cache, err := buildPipeline(cfg, reportArchive, user)
	if err != nil {
		return err
	}
	defer cache.Close()

	now := time.Now().UTC()
	report, err := agg.Run(context.Background(), user, types.TimeRange{From: now.Add(-since), To: now})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	if reportOutput != "" {
		if err := os.WriteFile(reportOutput, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		slog.Info("report written", "path", reportOutput)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

// buildPipeline wires the full stack from config: provider, shared LLM pool,
// SQLite cache, archive-backed fetching, judge, and narrator.
func buildPipeline(cfg *config.Config, archivePath, user string) (*pipeline.Aggregator, *store.SQLiteCache, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	cache, err := store.Open(filepath.Join(cfg.DataDir, "cache.db"))
	if err != nil {
		return nil, nil, err
	}

	export, err := fetch.OpenExport(archivePath)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}
	history := fetch.NewCachedHistory(export, cache, user)
	source := fetch.NewClient(export, history)

	if err := workpool.SetSharedSize(cfg.Pipeline.LLMConcurrency); err != nil {
		cache.Close()
		return nil, nil, err
	}
	pool := workpool.Shared()
	usage := &llm.UsageCounter{}

	narrator, err := narrate.New(provider, pool, usage, cfg.LLM.Model,
		cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}

	deps := pipeline.Deps{
		Source:   source,
		Judge:    boundary.NewLLMJudge(provider, pool, usage),
		Narrator: narrator,
		Fallback: narrate.Fallback,
		Cache:    cache,
		LLMPool:  pool,
		Usage:    usage,
		Progress: func(e types.ProgressEvent) {
			if e.Total > 0 {
				slog.Info("pipeline progress", "stage", e.Stage, "current", e.Current, "total", e.Total)
			} else {
				slog.Info("pipeline progress", "stage", e.Stage, "message", e.Message)
			}
		},
	}
	if cfg.LLM.EmbeddingModel != "" {
		deps.Embedder = provider
	}

	agg, err := pipeline.New(pipeline.Config{
		GapThreshold:       time.Duration(cfg.Pipeline.GapThresholdMinutes) * time.Minute,
		BatchSize:          cfg.Pipeline.BoundaryBatchSize,
		BoundaryConfidence: cfg.Pipeline.BoundaryConfidence,
		ChannelConcurrency: cfg.Pipeline.ChannelConcurrency,
		RefWeight:          cfg.Pipeline.ReferenceWeight,
		EmbWeight:          cfg.Pipeline.EmbeddingWeight,
		EmbeddingModel:     cfg.LLM.EmbeddingModel,
		Consolidation:      consolidate.DefaultConfig(),
	}, deps)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}
	return agg, cache, nil
}

// buildProvider selects the LLM backend: the subprocess CLI when a command is
// configured, otherwise the OpenAI-compatible HTTP client.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "cli" || cfg.LLM.Command != "" {
		if cfg.LLM.Command == "" {
			return nil, fmt.Errorf("llm.provider is cli but llm.command is empty")
		}
		return clicmd.New(cfg.LLM.Command), nil
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no LLM credentials: set llm.api_key or OPENAI_API_KEY, or configure llm.command")
	}
	return openai.New(&llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
	}), nil
}

// parseSince accepts Go durations plus a day suffix: "7d" is 168h.
func parseSince(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid --since %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid --since %q", s)
	}
	return d, nil
}

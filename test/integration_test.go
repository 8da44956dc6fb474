//go:build integration

package test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/recap/internal/boundary"
	"github.com/user/recap/internal/consolidate"
	"github.com/user/recap/internal/fetch"
	"github.com/user/recap/internal/narrate"
	"github.com/user/recap/internal/pipeline"
	"github.com/user/recap/internal/store"
	"github.com/user/recap/internal/types"
	"github.com/user/recap/internal/workpool"
	"github.com/user/recap/pkg/llm"
)

// mockProvider answers both the boundary judge and the narrator with canned
// structured responses, keyed off the system prompt.
type mockProvider struct{}

func (m *mockProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	var content string
	if strings.Contains(req.System, "pair of consecutive messages") {
		content = `[]`
	} else {
		content = `{"narrative": "The team discussed the PROJ-123 rollout and agreed on next steps.", "references": ["PROJ-123"], "outcome": "resolved"}`
	}
	return &llm.Response{
		Content: content,
		Usage:   llm.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}, nil
}

func (m *mockProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func writeArchive(t *testing.T, dir string, base time.Time) string {
	t.Helper()
	ts := func(offset time.Duration) string {
		return types.FormatTS(base.Add(offset))
	}
	archive := map[string]any{
		"channels": []types.ChannelInfo{
			{ID: "C1", Name: "deploys"},
			{ID: "C2", Name: "random"},
		},
		"messages": map[string][]types.Message{
			"C1": {
				{TS: ts(0), UserID: "U1", Text: "Starting the PROJ-123 rollout now"},
				{TS: ts(2 * time.Minute), UserID: "U2", Text: "Watching the dashboards"},
				{TS: ts(4 * time.Minute), UserID: "U1", Text: "Canary looks healthy"},
				{TS: ts(6 * time.Minute), UserID: "U2", Text: "PROJ-123 is fully rolled out"},
				{TS: ts(8 * time.Minute), UserID: "U1", Text: "Closing the ticket"},
			},
			"C2": {
				// Mention-only for U1: the channel is excluded from the report.
				{TS: ts(1 * time.Minute), UserID: "U3", Text: "<@U1> lunch?"},
			},
		},
	}
	data, err := json.Marshal(archive)
	if err != nil {
		t.Fatalf("marshal archive: %v", err)
	}
	path := filepath.Join(dir, "archive.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour)
	archivePath := writeArchive(t, dir, base)

	cache, err := store.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	source, err := fetch.OpenExport(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	history := fetch.NewCachedHistory(source, cache, "U1")
	client := fetch.NewClient(source, history)

	pool, err := workpool.New(4)
	if err != nil {
		t.Fatal(err)
	}
	provider := &mockProvider{}
	usage := &llm.UsageCounter{}

	narrator, err := narrate.New(provider, pool, usage, "gpt-4o-mini", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}

	agg, err := pipeline.New(pipeline.Config{
		GapThreshold:       30 * time.Minute,
		BatchSize:          20,
		BoundaryConfidence: 0.6,
		ChannelConcurrency: 4,
		RefWeight:          0.6,
		EmbWeight:          0.4,
		EmbeddingModel:     "text-embedding-3-small",
		Consolidation:      consolidate.DefaultConfig(),
	}, pipeline.Deps{
		Source:   client,
		Judge:    boundary.NewLLMJudge(provider, pool, usage),
		Narrator: narrator,
		Fallback: narrate.Fallback,
		Embedder: provider,
		Cache:    cache,
		LLMPool:  pool,
		Usage:    usage,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	span := types.TimeRange{From: base.Add(-time.Hour), To: base.Add(24 * time.Hour)}

	report, err := agg.Run(ctx, "U1", span)
	if err != nil {
		t.Fatal(err)
	}

	if report.Summary.ActiveChannels != 1 {
		t.Fatalf("expected 1 active channel (C2 is mention-only), got %d", report.Summary.ActiveChannels)
	}
	channel := report.Channels[0]
	if channel.ChannelID != "C1" || channel.ChannelName != "deploys" {
		t.Errorf("unexpected channel %s (%s)", channel.ChannelID, channel.ChannelName)
	}
	if channel.MessageCount != 5 {
		t.Errorf("expected 5 messages, got %d", channel.MessageCount)
	}
	if len(channel.Topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(channel.Topics))
	}

	topic := channel.Topics[0]
	if topic.Summary.Fallback {
		t.Error("expected a narrated summary, not the fallback")
	}
	if !strings.Contains(topic.Summary.Narrative, "PROJ-123") {
		t.Errorf("unexpected narrative %q", topic.Summary.Narrative)
	}
	if topic.MessageCount != 5 {
		t.Errorf("expected all 5 messages in the topic, got %d", topic.MessageCount)
	}
	found := false
	for _, ref := range topic.SharedReferences {
		if ref == "PROJ-123" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected PROJ-123 in shared references, got %v", topic.SharedReferences)
	}

	if report.Metadata.InputTokens == 0 || report.Metadata.OutputTokens == 0 {
		t.Error("expected token usage recorded in report metadata")
	}

	// A second run over the same span is served from the day-bucket cache and
	// produces the same shape.
	report2, err := agg.Run(ctx, "U1", span)
	if err != nil {
		t.Fatal(err)
	}
	if report2.Summary.TotalMessages != report.Summary.TotalMessages {
		t.Errorf("cached run message count mismatch: %d != %d",
			report2.Summary.TotalMessages, report.Summary.TotalMessages)
	}
	for _, day := range span.Days() {
		dayStart, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
		if !dayStart.AddDate(0, 0, 1).After(time.Now().UTC()) {
			complete, err := cache.DayComplete(ctx, "U1", "C1", day, fetch.DataTypeMessages)
			if err != nil {
				t.Fatal(err)
			}
			if !complete {
				t.Errorf("expected past day %s marked complete", day)
			}
		}
	}
}

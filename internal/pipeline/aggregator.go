// Package pipeline orchestrates a full run: fetch activity, segment and
// consolidate each channel under a bounded pool, narrate every group under
// the shared LLM pool, and assemble the final report.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/recap/internal/boundary"
	"github.com/user/recap/internal/consolidate"
	"github.com/user/recap/internal/segment"
	"github.com/user/recap/internal/similarity"
	"github.com/user/recap/internal/types"
	"github.com/user/recap/internal/workpool"
	"github.com/user/recap/pkg/llm"
)

// DefaultChannelConcurrency bounds the per-channel segmentation pool.
const DefaultChannelConcurrency = 10

// Narrator is the narrative collaborator. *narrate.Narrator satisfies it.
type Narrator interface {
	Narrate(ctx context.Context, group *types.ConversationGroup, channelName string) (*types.NarrativeSummary, error)
}

// FallbackFunc synthesizes a placeholder summary when narration fails.
type FallbackFunc func(group *types.ConversationGroup, channelName string) *types.NarrativeSummary

// Embedder produces vectors for conversation text. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds pipeline tuning. Zero values fall back to defaults.
type Config struct {
	GapThreshold       time.Duration
	BatchSize          int
	BoundaryConfidence float64
	ChannelConcurrency int
	RefWeight          float64
	EmbWeight          float64
	EmbeddingModel     string
	Consolidation      consolidate.Config
}

// Deps are the pipeline's collaborators. Source, Narrator, Fallback, and
// LLMPool are required; Judge, Embedder, Cache, and Progress are optional.
type Deps struct {
	Source   types.ActivitySource
	Judge    boundary.Judge
	Narrator Narrator
	Fallback FallbackFunc
	Embedder Embedder
	Cache    types.Cache
	LLMPool  *workpool.Pool
	Usage    *llm.UsageCounter
	Progress types.ProgressFunc
}

// Aggregator runs the conversation reconstruction pipeline.
type Aggregator struct {
	cfg         Config
	deps        Deps
	scorer      *similarity.Scorer
	segmenter   *segment.Segmenter
	analyzer    *boundary.Analyzer
	channelPool *workpool.Pool

	embedDisabled atomic.Bool
}

// New validates configuration and wires the pipeline. Invalid weights or
// concurrency are programmer errors and fail at construction.
func New(cfg Config, deps Deps) (*Aggregator, error) {
	if deps.Source == nil || deps.Narrator == nil || deps.Fallback == nil || deps.LLMPool == nil {
		return nil, fmt.Errorf("pipeline requires source, narrator, fallback, and llm pool")
	}
	if cfg.ChannelConcurrency == 0 {
		cfg.ChannelConcurrency = DefaultChannelConcurrency
	}
	if cfg.ChannelConcurrency < 0 {
		return nil, fmt.Errorf("channel concurrency must be positive, got %d", cfg.ChannelConcurrency)
	}
	scorer, err := similarity.NewScorer(cfg.RefWeight, cfg.EmbWeight)
	if err != nil {
		return nil, err
	}
	channelPool, err := workpool.New(cfg.ChannelConcurrency)
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		cfg:         cfg,
		deps:        deps,
		scorer:      scorer,
		segmenter:   segment.NewSegmenter(cfg.GapThreshold),
		channelPool: channelPool,
	}
	if deps.Judge != nil {
		a.analyzer = boundary.NewAnalyzer(deps.Judge, cfg.BatchSize, cfg.BoundaryConfidence)
	}
	return a, nil
}

// channelResult carries one channel's consolidated output.
type channelResult struct {
	info         types.ChannelInfo
	groups       []*types.ConversationGroup
	stats        types.ConsolidationTotals
	messageCount int
}

// Run executes one full pipeline pass for the user over the span. The only
// hard failure is the activity fetch; everything downstream degrades to
// partial-but-valid output.
func (a *Aggregator) Run(ctx context.Context, userID string, span types.TimeRange) (*types.Report, error) {
	progress := a.deps.Progress
	progress.Emit(types.ProgressEvent{Stage: types.StageFetching, Message: "fetching activity"})

	activity, err := a.deps.Source.FetchActivity(ctx, userID, span)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}

	channels := a.narratableChannels(userID, activity)
	progress.Emit(types.ProgressEvent{Stage: types.StageSegmenting, Message: "segmenting channels"})

	results := workpool.Map(ctx, a.channelPool, channels, func(ctx context.Context, ch types.ChannelInfo) (channelResult, error) {
		return a.processChannel(ctx, userID, ch, activity.ChannelMessages[ch.ID])
	})

	progress.Emit(types.ProgressEvent{Stage: types.StageConsolidating, Message: "assembling topics"})

	var processed []channelResult
	for i, r := range results {
		if r.Err != nil {
			// Per-channel failures degrade to an absent channel, not a dead run.
			slog.Warn("channel processing failed", "channel_id", channels[i].ID, "error", r.Err)
			continue
		}
		processed = append(processed, r.Value)
	}

	report := a.assemble(ctx, userID, span, processed)
	progress.Emit(types.ProgressEvent{Stage: types.StageComplete, Message: "report complete"})
	return report, nil
}

// narratableChannels drops channels whose only activity is mentions: no
// authored messages and no thread participation means nothing to narrate.
func (a *Aggregator) narratableChannels(userID string, activity *types.Activity) []types.ChannelInfo {
	authored := make(map[string]bool)
	for _, m := range activity.MessagesSent {
		authored[m.ChannelID] = true
	}
	for _, th := range activity.ThreadsParticipated {
		authored[th.ChannelID] = true
	}

	var out []types.ChannelInfo
	for _, ch := range activity.Channels {
		if !authored[ch.ID] {
			slog.Debug("excluding mention-only channel", "channel_id", ch.ID, "user_id", userID)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// processChannel runs segmentation, refinement, enrichment, and
// consolidation for one channel.
func (a *Aggregator) processChannel(ctx context.Context, userID string, ch types.ChannelInfo, stream []types.Message) (channelResult, error) {
	result := channelResult{info: ch, messageCount: len(stream)}
	if len(stream) == 0 {
		return result, nil
	}

	segments := a.segmenter.Split(ch.ID, stream)

	if a.analyzer != nil {
		var refined []*types.Conversation
		for _, seg := range segments {
			refined = append(refined, a.analyzer.Refine(ctx, seg)...)
		}
		segments = refined
	}

	enricher := segment.NewEnricher(userID)
	for _, seg := range segments {
		enricher.Enrich(seg, stream)
	}

	vectors := a.conversationVectors(ctx, segments)
	lookup := consolidate.EmbeddingLookup(nil)
	if vectors != nil {
		lookup = func(id types.ConversationID) []float32 { return vectors[id] }
	}

	consolidator, err := consolidate.New(a.cfg.Consolidation, a.scorer, lookup)
	if err != nil {
		return result, err
	}
	result.groups, result.stats = consolidator.Consolidate(segments, ch.Name)
	return result, nil
}

// conversationVectors resolves an embedding per conversation, preferring the
// content-addressed cache. A missing vector is a data anomaly, not an error:
// the pair simply loses its embedding term.
func (a *Aggregator) conversationVectors(ctx context.Context, convs []*types.Conversation) map[types.ConversationID][]float32 {
	if a.deps.Embedder == nil || a.embedDisabled.Load() {
		return nil
	}

	out := make(map[types.ConversationID][]float32, len(convs))
	for _, conv := range convs {
		text := conv.Text()
		hash := textHash(text)

		if a.deps.Cache != nil {
			if vec, ok, err := a.deps.Cache.GetCachedEmbedding(ctx, conv.ID, hash); err == nil && ok {
				out[conv.ID] = vec
				continue
			}
		}

		vec, err := a.embedOne(ctx, text)
		if errors.Is(err, llm.ErrNoEmbeddings) {
			a.embedDisabled.Store(true)
			return nil
		}
		if err != nil {
			slog.Debug("embedding unavailable", "conversation_id", conv.ID, "error", err)
			continue
		}
		out[conv.ID] = vec

		if a.deps.Cache != nil {
			emb := &types.Embedding{
				ConversationID: conv.ID,
				Vector:         vec,
				TextHash:       hash,
				Model:          a.cfg.EmbeddingModel,
				Dimensions:     len(vec),
			}
			if err := a.deps.Cache.SetCachedEmbedding(ctx, emb); err != nil {
				slog.Warn("embedding cache write failed", "conversation_id", conv.ID, "error", err)
			}
		}
	}
	return out
}

// embedOne holds a shared LLM pool slot for the duration of one embed call.
func (a *Aggregator) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := a.deps.LLMPool.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.deps.LLMPool.Release()
	return a.deps.Embedder.Embed(ctx, text)
}

// groupRef locates one group inside the per-channel results.
type groupRef struct {
	channel int
	topic   int
	group   *types.ConversationGroup
	name    string
}

// assemble narrates every group under the shared LLM pool and builds the
// final report. Narration runs concurrently but summaries land in submission
// order; an individual failure becomes a fallback summary, never an abort.
func (a *Aggregator) assemble(ctx context.Context, userID string, span types.TimeRange, results []channelResult) *types.Report {
	report := &types.Report{
		Metadata: types.ReportMetadata{
			ID:          types.NewReportID(),
			UserID:      userID,
			From:        span.From,
			To:          span.To,
			GeneratedAt: time.Now().UTC(),
		},
	}

	var refs []groupRef
	for ci, r := range results {
		channel := types.ChannelReport{
			ChannelID:    r.info.ID,
			ChannelName:  r.info.Name,
			MessageCount: r.messageCount,
		}
		for _, g := range r.groups {
			channel.Topics = append(channel.Topics, types.Topic{
				GroupID:           g.ID,
				StartTime:         g.StartTime,
				EndTime:           g.EndTime,
				Participants:      g.Participants,
				SharedReferences:  g.SharedReferences,
				MessageCount:      len(g.Messages),
				ConversationCount: len(g.ConversationIDs),
			})
			refs = append(refs, groupRef{channel: ci, topic: len(channel.Topics) - 1, group: g, name: r.info.Name})
		}
		report.Channels = append(report.Channels, channel)
		report.Summary.TotalMessages += r.messageCount
		report.Summary.Consolidation.Add(r.stats)
	}
	report.Summary.ActiveChannels = len(report.Channels)
	report.Summary.Topics = len(refs)

	a.deps.Progress.Emit(types.ProgressEvent{
		Stage: types.StageSummarizing, Message: "summarizing topics", Current: 0, Total: len(refs),
	})

	summaries := make([]*types.NarrativeSummary, len(refs))
	var done atomic.Int64
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref groupRef) {
			defer wg.Done()
			summary, err := a.deps.Narrator.Narrate(ctx, ref.group, ref.name)
			if err != nil {
				slog.Warn("narration failed, using fallback",
					"group_id", ref.group.ID, "channel", ref.name, "error", err)
				summary = a.deps.Fallback(ref.group, ref.name)
			}
			summaries[i] = summary
			a.deps.Progress.Emit(types.ProgressEvent{
				Stage:   types.StageSummarizing,
				Message: fmt.Sprintf("summarized topic in #%s", ref.name),
				Current: int(done.Add(1)),
				Total:   len(refs),
			})
		}(i, ref)
	}
	wg.Wait()

	for i, ref := range refs {
		report.Channels[ref.channel].Topics[ref.topic].Summary = *summaries[i]
	}

	usage := a.deps.Usage.Total()
	report.Metadata.InputTokens = usage.InputTokens
	report.Metadata.OutputTokens = usage.OutputTokens
	return report
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

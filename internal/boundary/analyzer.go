// internal/boundary/analyzer.go
package boundary

import (
	"context"
	"log/slog"

	"github.com/user/recap/internal/types"
)

// Analyzer defaults.
const (
	DefaultBatchSize     = 20
	DefaultMinConfidence = 0.6
)

// Analyzer refines candidate segments with finer, semantically judged splits.
type Analyzer struct {
	judge         Judge
	batchSize     int
	minConfidence float64
}

// NewAnalyzer creates an analyzer. Zero batchSize or minConfidence fall back
// to the defaults.
func NewAnalyzer(judge Judge, batchSize int, minConfidence float64) *Analyzer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Analyzer{judge: judge, batchSize: batchSize, minConfidence: minConfidence}
}

// Refine splits a conversation at judged topic shifts. Segments with fewer
// than two messages pass through untouched, as do threads (a thread is one
// segment by construction). On judge failure the batch degrades to
// time-gap-only segmentation rather than failing the run.
func (a *Analyzer) Refine(ctx context.Context, conv *types.Conversation) []*types.Conversation {
	if conv.IsThread || len(conv.Messages) < 2 {
		return []*types.Conversation{conv}
	}

	pairs := make([]Pair, 0, len(conv.Messages)-1)
	for i := 0; i+1 < len(conv.Messages); i++ {
		pairs = append(pairs, Pair{Index: i, First: conv.Messages[i], Second: conv.Messages[i+1]})
	}

	verdicts := a.judgeAll(ctx, conv, pairs)

	// A boundary after message i means a split between i and i+1.
	var cuts []int
	for i, v := range verdicts {
		if v.TopicShift && v.Confidence >= a.minConfidence {
			cuts = append(cuts, i)
		}
	}
	if len(cuts) == 0 {
		return []*types.Conversation{conv}
	}

	var out []*types.Conversation
	prev := 0
	for _, cut := range cuts {
		out = append(out, types.NewConversation(conv.ChannelID, conv.Messages[prev:cut+1]))
		prev = cut + 1
	}
	out = append(out, types.NewConversation(conv.ChannelID, conv.Messages[prev:]))

	slog.Debug("semantic refinement",
		"channel_id", conv.ChannelID,
		"original_messages", len(conv.Messages),
		"splits", len(cuts),
	)
	return out
}

// judgeAll runs pairs through the judge in batches, substituting safe
// defaults for any failed batch.
func (a *Analyzer) judgeAll(ctx context.Context, conv *types.Conversation, pairs []Pair) []Verdict {
	verdicts := make([]Verdict, 0, len(pairs))
	for start := 0; start < len(pairs); start += a.batchSize {
		end := start + a.batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		vs, err := a.judge.JudgeTopicShifts(ctx, batch)
		if err != nil || len(vs) != len(batch) {
			if err != nil {
				slog.Warn("boundary judgment degraded to time-gap only",
					"channel_id", conv.ChannelID, "batch_start", start, "error", err)
			}
			vs = make([]Verdict, len(batch))
			for i := range vs {
				vs[i] = Verdict{TopicShift: false, Confidence: 0.5}
			}
		}
		verdicts = append(verdicts, vs...)
	}
	return verdicts
}

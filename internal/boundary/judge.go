// Package boundary refines time-gap segments by asking an LLM whether
// adjacent message pairs represent a topic shift. The analyzer only ever adds
// finer splits inside a segment; it never merges across one.
package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/recap/internal/types"
	"github.com/user/recap/internal/workpool"
	"github.com/user/recap/pkg/llm"
)

// Pair is one adjacent message pair presented for judgment.
type Pair struct {
	Index  int
	First  types.Message
	Second types.Message
}

// Verdict is the per-pair judgment. Confidence defaults to 0.5 on failure
// paths so degraded batches never pass the split threshold.
type Verdict struct {
	TopicShift bool
	Confidence float64
}

// Judge decides, per adjacent pair, whether the topic shifted.
type Judge interface {
	JudgeTopicShifts(ctx context.Context, pairs []Pair) ([]Verdict, error)
}

const judgeSystemPrompt = `You analyze chat transcripts. For each numbered pair of consecutive messages, decide whether the second message starts a new topic. Respond with ONLY a JSON array, no prose, one object per pair: [{"pair": 0, "topic_shift": false, "confidence": 0.9}]`

// implicitConfidence is assumed when the model asserts a verdict without one.
const implicitConfidence = 0.7

// LLMJudge implements Judge over an llm.Provider. Every call holds a slot in
// the shared LLM pool so boundary analysis and narration draw from the same
// concurrency budget.
type LLMJudge struct {
	provider llm.Provider
	pool     *workpool.Pool
	usage    *llm.UsageCounter
}

// NewLLMJudge creates a judge. pool is the process-wide LLM pool; usage may
// be nil.
func NewLLMJudge(provider llm.Provider, pool *workpool.Pool, usage *llm.UsageCounter) *LLMJudge {
	return &LLMJudge{provider: provider, pool: pool, usage: usage}
}

// JudgeTopicShifts sends one batch of pairs and parses the structured
// verdicts. Any transport or parse failure returns an error; the analyzer
// converts it to safe defaults.
func (j *LLMJudge) JudgeTopicShifts(ctx context.Context, pairs []Pair) ([]Verdict, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	if err := j.pool.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire llm slot: %w", err)
	}
	defer j.pool.Release()

	resp, err := j.provider.Complete(ctx, llm.Request{
		System:   judgeSystemPrompt,
		Prompt:   buildJudgePrompt(pairs),
		JSONOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("judge batch: %w", err)
	}
	j.usage.Record(resp.Usage)

	return parseVerdicts(resp.Content, len(pairs))
}

func buildJudgePrompt(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "Pair %d:\n  A [%s]: %s\n  B [%s]: %s\n",
			i, p.First.UserID, truncate(p.First.Text, 300),
			p.Second.UserID, truncate(p.Second.Text, 300))
	}
	return b.String()
}

type rawVerdict struct {
	Pair       int     `json:"pair"`
	TopicShift bool    `json:"topic_shift"`
	Confidence float64 `json:"confidence"`
}

// parseVerdicts tolerates code fences and surrounding prose by slicing out
// the outermost JSON array. Pairs the model skipped default to no-boundary.
func parseVerdicts(content string, n int) ([]Verdict, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in judge response")
	}

	var raw []rawVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}

	verdicts := make([]Verdict, n)
	for i := range verdicts {
		verdicts[i] = Verdict{TopicShift: false, Confidence: 0.5}
	}
	for _, r := range raw {
		if r.Pair < 0 || r.Pair >= n {
			continue
		}
		conf := r.Confidence
		if conf == 0 {
			conf = implicitConfidence
		}
		verdicts[r.Pair] = Verdict{TopicShift: r.TopicShift, Confidence: conf}
	}
	return verdicts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

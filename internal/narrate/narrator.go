// Package narrate turns a consolidated conversation group into a narrative
// summary via the LLM, with a deterministic local fallback so one failed
// narration never loses the group.
package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/recap/internal/types"
	"github.com/user/recap/internal/workpool"
	"github.com/user/recap/pkg/llm"
)

const narratorSystemPrompt = `You summarize workplace chat conversations. Given a transcript, respond with ONLY a JSON object:
{"narrative": "what happened, 2-4 sentences", "key_events": [], "references": ["tickets/links discussed"], "participants": [], "outcome": "how it resolved, if it did", "next_actions": [], "timesheet_entry": "one billing-style line"}`

// Narrator builds token-budgeted transcripts and requests structured
// narratives. Calls hold a slot in the shared LLM pool.
type Narrator struct {
	provider  llm.Provider
	pool      *workpool.Pool
	usage     *llm.UsageCounter
	tokenizer *tiktoken.Tiktoken
	budget    int
}

// New creates a narrator. model selects the tokenizer; maxContextTokens and
// outputReserve bound the transcript budget.
func New(provider llm.Provider, pool *workpool.Pool, usage *llm.UsageCounter, model string, maxContextTokens, outputReserve int) (*Narrator, error) {
	if maxContextTokens <= outputReserve {
		return nil, fmt.Errorf("context window %d must exceed output reserve %d", maxContextTokens, outputReserve)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Narrator{
		provider:  provider,
		pool:      pool,
		usage:     usage,
		tokenizer: enc,
		budget:    maxContextTokens - outputReserve,
	}, nil
}

// Narrate summarizes one group. The error path is the caller's cue to use
// Fallback; transient upstream errors were already retried at the provider.
func (n *Narrator) Narrate(ctx context.Context, group *types.ConversationGroup, channelName string) (*types.NarrativeSummary, error) {
	if err := n.pool.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire llm slot: %w", err)
	}
	defer n.pool.Release()

	resp, err := n.provider.Complete(ctx, llm.Request{
		System:   narratorSystemPrompt,
		Prompt:   n.buildTranscript(group, channelName),
		JSONOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("narrate group %s: %w", group.ID, err)
	}
	n.usage.Record(resp.Usage)

	summary, err := parseNarrative(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("narrate group %s: %w", group.ID, err)
	}
	if summary.TimesheetEntry == "" {
		summary.TimesheetEntry = timesheetLine(group, channelName)
	}
	return summary, nil
}

// buildTranscript renders messages oldest-first until the token budget is
// spent. Context messages pulled in by enrichment are marked so the model can
// de-emphasize them.
func (n *Narrator) buildTranscript(group *types.ConversationGroup, channelName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: #%s\nParticipants: %s\n", channelName, strings.Join(group.Participants, ", "))
	if len(group.SharedReferences) > 0 {
		fmt.Fprintf(&b, "References: %s\n", strings.Join(group.SharedReferences, ", "))
	}
	b.WriteString("Transcript:\n")

	used := n.countTokens(b.String())
	for _, m := range group.Messages {
		line := fmt.Sprintf("[%s] %s: %s\n", m.Time().Format("15:04"), m.UserID, m.Text)
		if m.IsContext() {
			line = "(context) " + line
		}
		tokens := n.countTokens(line)
		if used+tokens > n.budget {
			break
		}
		b.WriteString(line)
		used += tokens
	}
	return b.String()
}

func (n *Narrator) countTokens(text string) int {
	return len(n.tokenizer.Encode(text, nil, nil))
}

// parseNarrative tolerates code fences and stray prose around the JSON body.
func parseNarrative(content string) (*types.NarrativeSummary, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in narrator response")
	}
	var summary types.NarrativeSummary
	if err := json.Unmarshal([]byte(content[start:end+1]), &summary); err != nil {
		return nil, fmt.Errorf("parse narrator response: %w", err)
	}
	if strings.TrimSpace(summary.Narrative) == "" {
		return nil, fmt.Errorf("narrator returned empty narrative")
	}
	return &summary, nil
}

// Fallback synthesizes a minimal placeholder summary from the group itself.
func Fallback(group *types.ConversationGroup, channelName string) *types.NarrativeSummary {
	return &types.NarrativeSummary{
		Narrative: fmt.Sprintf("Conversation in #%s with %d message(s) between %s.",
			channelName, len(group.Messages), strings.Join(group.Participants, ", ")),
		References:     group.SharedReferences,
		Participants:   group.Participants,
		TimesheetEntry: timesheetLine(group, channelName),
		Fallback:       true,
	}
}

func timesheetLine(group *types.ConversationGroup, channelName string) string {
	dur := group.EndTime.Sub(group.StartTime).Round(time.Minute)
	if dur < time.Minute {
		dur = time.Minute
	}
	return fmt.Sprintf("#%s discussion (%s)", channelName, dur)
}

// internal/segment/enrich.go
package segment

import (
	"log/slog"
	"time"

	"github.com/user/recap/internal/refs"
	"github.com/user/recap/internal/types"
)

// Enricher defaults.
const (
	DefaultMaxLookback     = 2 * time.Hour
	DefaultMaxLookbackMsgs = 10
	DefaultShortSegmentMax = 2
	DefaultTargetSize      = 5
	DefaultContextGap      = 15 * time.Minute
)

// Enricher expands a segment backward in time to include the messages that
// gave it meaning, using the full per-channel stream as a lookback pool.
type Enricher struct {
	TargetUser string

	// Mention lookback bounds.
	MaxLookback     time.Duration
	MaxLookbackMsgs int

	// Short-segment expansion bounds.
	ShortSegmentMax int
	TargetSize      int
	ContextGap      time.Duration
}

// NewEnricher returns an enricher for the given target user with default bounds.
func NewEnricher(targetUser string) *Enricher {
	return &Enricher{
		TargetUser:      targetUser,
		MaxLookback:     DefaultMaxLookback,
		MaxLookbackMsgs: DefaultMaxLookbackMsgs,
		ShortSegmentMax: DefaultShortSegmentMax,
		TargetSize:      DefaultTargetSize,
		ContextGap:      DefaultContextGap,
	}
}

// Enrich applies mention lookback, then short-segment expansion, mutating the
// conversation in place. channelStream is the full same-channel message
// stream, time-sorted. Re-running on an already-enriched segment adds nothing:
// a segment that already did its lookback skips it, present messages are never
// re-added, and an expanded segment no longer qualifies as short.
func (e *Enricher) Enrich(conv *types.Conversation, channelStream []types.Message) {
	if conv.Enrichment.OriginalMessageCount == 0 {
		conv.Enrichment.OriginalMessageCount = len(conv.Messages)
	}

	if e.applyMentionLookback(conv, channelStream) {
		return
	}
	e.applyShortSegmentExpansion(conv, channelStream)
}

// applyMentionLookback pulls in preceding channel messages when the target
// user was @-mentioned by someone else in a segment they did not initiate.
func (e *Enricher) applyMentionLookback(conv *types.Conversation, channelStream []types.Message) bool {
	// One lookback per segment: Recompute moves StartTime back to the pulled
	// context, so a second pass would re-anchor the walk and pull more.
	if hasReason(conv.Enrichment.Reasons, types.ReasonMentionLookback) {
		return true
	}
	if e.TargetUser == "" || conv.Initiator() == e.TargetUser {
		return false
	}
	mentioned := false
	for _, m := range conv.Messages {
		if m.UserID != e.TargetUser && refs.Mentions(m, e.TargetUser) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return false
	}

	added := e.pullBackward(conv, channelStream, e.MaxLookbackMsgs, e.MaxLookback, 0, types.SubtypeMentionContext)
	if added > 0 {
		conv.Enrichment.ContextMessagesAdded += added
		conv.Enrichment.Reasons = appendReason(conv.Enrichment.Reasons, types.ReasonMentionLookback)
		conv.Recompute()
		slog.Debug("mention lookback", "conversation_id", conv.ID, "added", added)
	}
	return true
}

// applyShortSegmentExpansion pulls in preceding messages for very short,
// non-thread segments until the target size is reached or a time gap is hit.
func (e *Enricher) applyShortSegmentExpansion(conv *types.Conversation, channelStream []types.Message) {
	if conv.IsThread || len(conv.Messages) > e.ShortSegmentMax {
		return
	}
	want := e.TargetSize - len(conv.Messages)
	if want <= 0 {
		return
	}

	added := e.pullBackward(conv, channelStream, want, e.MaxLookback, e.ContextGap, types.SubtypeContext)
	if added > 0 {
		conv.Enrichment.ContextMessagesAdded += added
		conv.Enrichment.Reasons = appendReason(conv.Enrichment.Reasons, types.ReasonShortSegment)
		conv.Recompute()
		slog.Debug("short segment expansion", "conversation_id", conv.ID, "added", added)
	}
}

// pullBackward walks the channel stream backward from the segment start,
// prepending up to maxMsgs messages within window. A non-zero maxStep stops
// the walk at the first gap between consecutive pulled messages larger than
// maxStep. Messages already in the segment are never re-added.
func (e *Enricher) pullBackward(conv *types.Conversation, channelStream []types.Message, maxMsgs int, window, maxStep time.Duration, subtype string) int {
	start := conv.StartTime
	var pulled []types.Message
	prev := start
	for i := len(channelStream) - 1; i >= 0 && len(pulled) < maxMsgs; i-- {
		m := channelStream[i]
		t := m.Time()
		if !t.Before(start) {
			continue
		}
		if start.Sub(t) > window {
			break
		}
		if maxStep > 0 && prev.Sub(t) > maxStep {
			break
		}
		if conv.Contains(m.TS) {
			prev = t
			continue
		}
		m.Subtype = subtype
		pulled = append(pulled, m)
		prev = t
	}
	if len(pulled) == 0 {
		return 0
	}
	// pulled is newest-first; prepend in chronological order.
	merged := make([]types.Message, 0, len(pulled)+len(conv.Messages))
	for i := len(pulled) - 1; i >= 0; i-- {
		merged = append(merged, pulled[i])
	}
	merged = append(merged, conv.Messages...)
	conv.Messages = merged
	return len(pulled)
}

func hasReason(reasons []string, reason string) bool {
	for _, r := range reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func appendReason(reasons []string, reason string) []string {
	if hasReason(reasons, reason) {
		return reasons
	}
	return append(reasons, reason)
}

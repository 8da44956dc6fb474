package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/recap/internal/types"
)

func TestEnrichShortSegmentExpansion(t *testing.T) {
	// A 1-message segment pulls preceding messages until it reaches the
	// target size of 4 total here (1 original + 3 pulled).
	stream := []types.Message{
		at(0, "U2", "context one"),
		at(2*time.Minute, "U2", "context two"),
		at(4*time.Minute, "U3", "context three"),
		at(40*time.Minute, "U1", "short question?"),
	}
	conv := types.NewConversation("C1", stream[3:])

	e := NewEnricher("U1")
	e.TargetSize = 4
	e.ContextGap = time.Hour
	e.Enrich(conv, stream)

	require.Len(t, conv.Messages, 4)
	assert.Equal(t, 3, conv.Enrichment.ContextMessagesAdded)
	assert.Equal(t, 1, conv.Enrichment.OriginalMessageCount)
	assert.Equal(t, []string{types.ReasonShortSegment}, conv.Enrichment.Reasons)

	for _, m := range conv.Messages[:3] {
		assert.Equal(t, types.SubtypeContext, m.Subtype)
	}
	assert.Equal(t, "short question?", conv.Messages[3].Text)
	// Span recomputed over the pulled messages.
	assert.Equal(t, base, conv.StartTime)
}

func TestEnrichIdempotent(t *testing.T) {
	stream := []types.Message{
		at(0, "U2", "context one"),
		at(2*time.Minute, "U2", "context two"),
		at(40*time.Minute, "U1", "short"),
	}
	conv := types.NewConversation("C1", stream[2:])

	e := NewEnricher("U1")
	e.ContextGap = time.Hour
	e.Enrich(conv, stream)
	after := len(conv.Messages)
	added := conv.Enrichment.ContextMessagesAdded

	e.Enrich(conv, stream)
	assert.Len(t, conv.Messages, after)
	assert.Equal(t, added, conv.Enrichment.ContextMessagesAdded)
	assert.Equal(t, 1, conv.Enrichment.OriginalMessageCount)
}

func TestEnrichMentionLookbackIdempotent(t *testing.T) {
	// After the first lookback, Recompute moves the segment start back to the
	// pulled context message. A second pass must not re-anchor the walk there
	// and drag in even earlier traffic.
	stream := []types.Message{
		at(0, "U3", "unrelated earlier chatter"),
		at(10*time.Minute, "U2", "deploy is failing"),
		at(45*time.Minute, "U2", "<@U1> can you take a look?"),
		at(46*time.Minute, "U1", "on it"),
	}
	conv := types.NewConversation("C1", stream[2:])

	e := NewEnricher("U1")
	e.MaxLookbackMsgs = 1
	e.Enrich(conv, stream)

	require.Len(t, conv.Messages, 3)
	require.Equal(t, 1, conv.Enrichment.ContextMessagesAdded)

	e.Enrich(conv, stream)
	assert.Len(t, conv.Messages, 3)
	assert.Equal(t, 1, conv.Enrichment.ContextMessagesAdded)
	assert.Equal(t, []string{types.ReasonMentionLookback}, conv.Enrichment.Reasons)
}

func TestEnrichContextGapStopsExpansion(t *testing.T) {
	stream := []types.Message{
		at(0, "U2", "way before"),
		at(50*time.Minute, "U2", "nearby context"),
		at(time.Hour, "U1", "short"),
	}
	conv := types.NewConversation("C1", stream[2:])

	e := NewEnricher("U1")
	e.Enrich(conv, stream)

	// The 50m step to "way before" exceeds the 15m context gap.
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "nearby context", conv.Messages[0].Text)
}

func TestEnrichMentionLookback(t *testing.T) {
	stream := []types.Message{
		at(0, "U2", "we broke the deploy"),
		at(5*time.Minute, "U3", "rolling back now"),
		at(10*time.Minute, "U2", "still failing"),
		at(45*time.Minute, "U2", "<@U1> can you take a look?"),
		at(46*time.Minute, "U1", "on it"),
	}
	conv := types.NewConversation("C1", stream[3:])

	e := NewEnricher("U1")
	e.Enrich(conv, stream)

	require.Len(t, conv.Messages, 5)
	assert.Equal(t, []string{types.ReasonMentionLookback}, conv.Enrichment.Reasons)
	for _, m := range conv.Messages[:3] {
		assert.Equal(t, types.SubtypeMentionContext, m.Subtype)
	}
}

func TestEnrichMentionLookbackSkippedWhenUserInitiated(t *testing.T) {
	stream := []types.Message{
		at(0, "U2", "earlier"),
		at(30*time.Minute, "U1", "starting fresh"),
		at(31*time.Minute, "U2", "<@U1> sure"),
		at(32*time.Minute, "U1", "ok"),
	}
	conv := types.NewConversation("C1", stream[1:])

	e := NewEnricher("U1")
	e.Enrich(conv, stream)

	// User initiated the segment, and at 3 messages it is not short either.
	assert.Len(t, conv.Messages, 3)
	assert.Empty(t, conv.Enrichment.Reasons)
}

func TestEnrichThreadNeverExpanded(t *testing.T) {
	stream := []types.Message{
		at(0, "U2", "mainline before"),
		at(10*time.Minute, "U2", "thread msg"),
	}
	conv := types.NewConversation("C1", stream[1:])
	conv.IsThread = true

	e := NewEnricher("U1")
	e.Enrich(conv, stream)
	assert.Len(t, conv.Messages, 1)
}

func TestEnrichMentionLookbackBlocksShortExpansion(t *testing.T) {
	// Mention lookback applies (and wins) even when it pulls nothing,
	// so the short-segment rule does not run afterwards.
	stream := []types.Message{
		at(0, "U2", "<@U1> ping"),
	}
	conv := types.NewConversation("C1", stream)

	e := NewEnricher("U1")
	e.Enrich(conv, stream)
	assert.Len(t, conv.Messages, 1)
	assert.Empty(t, conv.Enrichment.Reasons)
}

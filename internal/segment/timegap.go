// Package segment turns a channel's flat message stream into candidate
// conversations: a time-gap split pass plus backward context enrichment.
package segment

import (
	"log/slog"
	"sort"
	"time"

	"github.com/user/recap/internal/types"
)

// DefaultGapThreshold is the elapsed-time split point between consecutive
// messages in the same channel.
const DefaultGapThreshold = 30 * time.Minute

// Segmenter splits a time-sorted message stream wherever the gap between
// consecutive messages exceeds the threshold. Thread replies are pulled out
// into their own single segments regardless of gap.
type Segmenter struct {
	gap time.Duration
}

// NewSegmenter returns a segmenter with the given gap threshold; zero or
// negative means DefaultGapThreshold.
func NewSegmenter(gap time.Duration) *Segmenter {
	if gap <= 0 {
		gap = DefaultGapThreshold
	}
	return &Segmenter{gap: gap}
}

// Split partitions the channel stream into conversations: one per thread,
// plus mainline runs broken at time gaps. Output is time-sorted and
// non-overlapping.
func (s *Segmenter) Split(channelID string, msgs []types.Message) []*types.Conversation {
	if len(msgs) == 0 {
		return nil
	}
	sorted := make([]types.Message, len(msgs))
	copy(sorted, msgs)
	types.SortMessages(sorted)

	// A message belongs to a thread when other messages in the window share
	// its thread root. A root with no fetched replies stays in the mainline.
	threadSize := make(map[string]int)
	for _, m := range sorted {
		if m.ThreadTS != "" {
			threadSize[m.ThreadTS]++
		}
	}

	threads := make(map[string][]types.Message)
	var mainline []types.Message
	for _, m := range sorted {
		if m.ThreadTS != "" && (threadSize[m.ThreadTS] > 1 || m.ThreadTS != m.TS) {
			threads[m.ThreadTS] = append(threads[m.ThreadTS], m)
			continue
		}
		mainline = append(mainline, m)
	}

	var out []*types.Conversation

	for root, tmsgs := range threads {
		conv := types.NewConversation(channelID, tmsgs)
		conv.IsThread = true
		out = append(out, conv)
		slog.Debug("thread segment", "channel_id", channelID, "thread_ts", root, "messages", len(tmsgs))
	}

	var run []types.Message
	flush := func() {
		if len(run) > 0 {
			out = append(out, types.NewConversation(channelID, run))
			run = nil
		}
	}
	for _, m := range mainline {
		if len(run) > 0 && m.Time().Sub(run[len(run)-1].Time()) > s.gap {
			flush()
		}
		run = append(run, m)
	}
	flush()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

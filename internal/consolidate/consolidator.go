// internal/consolidate/consolidator.go
package consolidate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/user/recap/internal/refs"
	"github.com/user/recap/internal/similarity"
	"github.com/user/recap/internal/types"
)

// Config holds the merge-policy thresholds. The policy order itself is fixed:
// bot, trivial, adjacent, proximity, same-author, similarity.
type Config struct {
	// AdjacentGap merges strictly adjacent segments separated by a gap much
	// tighter than the segmentation threshold, when they share a participant.
	AdjacentGap time.Duration

	// ProximityWindow and ProximityThreshold merge segments near in time that
	// also score similar enough.
	ProximityWindow    time.Duration
	ProximityThreshold float64

	// SameAuthorWindow and SameAuthorShare merge segments dominated by the
	// same single participant (continuation heuristic).
	SameAuthorWindow time.Duration
	SameAuthorShare  float64

	// SimilarityThreshold is the final transitive reference/embedding merge.
	SimilarityThreshold float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		AdjacentGap:         5 * time.Minute,
		ProximityWindow:     2 * time.Hour,
		ProximityThreshold:  0.3,
		SameAuthorWindow:    3 * time.Hour,
		SameAuthorShare:     0.8,
		SimilarityThreshold: 0.5,
	}
}

// EmbeddingLookup resolves a conversation's cached vector; nil vectors
// disable the embedding term for that conversation's pairs.
type EmbeddingLookup func(types.ConversationID) []float32

// Consolidator merges enriched conversations into final topic groups.
type Consolidator struct {
	cfg        Config
	scorer     *similarity.Scorer
	embeddings EmbeddingLookup
}

// New validates the config and creates a consolidator. embeddings may be nil.
func New(cfg Config, scorer *similarity.Scorer, embeddings EmbeddingLookup) (*Consolidator, error) {
	if cfg.ProximityThreshold < 0 || cfg.SimilarityThreshold < 0 {
		return nil, fmt.Errorf("similarity thresholds must be non-negative")
	}
	if cfg.SameAuthorShare <= 0 || cfg.SameAuthorShare > 1 {
		return nil, fmt.Errorf("same-author share must be in (0, 1], got %v", cfg.SameAuthorShare)
	}
	return &Consolidator{cfg: cfg, scorer: scorer, embeddings: embeddings}, nil
}

// Consolidate applies the merge-policy chain and builds the final groups.
// Every input message lands in exactly one group except messages of isolated
// bot/trivial segments, which are explicitly dropped and logged. The returned
// stats counters are a required output surfaced by downstream reporting.
func (c *Consolidator) Consolidate(convs []*types.Conversation, channelName string) ([]*types.ConversationGroup, types.ConsolidationTotals) {
	stats := types.ConsolidationTotals{OriginalSegments: len(convs)}
	if len(convs) == 0 {
		return nil, stats
	}

	ordered := make([]*types.Conversation, len(convs))
	copy(ordered, convs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	n := len(ordered)
	refValues := make([][]string, n)
	vectors := make([][]float32, n)
	for i, conv := range ordered {
		refValues[i] = refs.Values(refs.ExtractConversation(conv), false)
		if c.embeddings != nil {
			vectors[i] = c.embeddings(conv.ID)
		}
	}

	uf := NewUnionFind(n)
	dropped := make([]bool, n)

	c.mergeBots(ordered, uf, dropped, &stats, channelName)
	c.mergeTrivial(ordered, uf, dropped, &stats, channelName)
	c.mergeAdjacent(ordered, uf, dropped, &stats)
	c.mergeProximity(ordered, uf, dropped, refValues, vectors, &stats)
	c.mergeSameAuthor(ordered, uf, dropped, &stats)
	c.mergeSimilar(ordered, uf, dropped, refValues, vectors, &stats)

	groups := c.buildGroups(ordered, uf, dropped)
	stats.ConsolidatedTopics = len(groups)
	return groups, stats
}

// mergeBots folds bot-authored segments into the nearest human segment, or
// drops them when no human segment exists.
func (c *Consolidator) mergeBots(convs []*types.Conversation, uf *UnionFind, dropped []bool, stats *types.ConsolidationTotals, channelName string) {
	for i, conv := range convs {
		if !isBotSegment(conv) {
			continue
		}
		j := nearestWhere(convs, i, func(k int) bool { return !isBotSegment(convs[k]) })
		if j < 0 {
			dropped[i] = true
			slog.Debug("dropping isolated bot segment",
				"channel", channelName, "conversation_id", conv.ID, "messages", len(conv.Messages))
			continue
		}
		if uf.Union(i, j) {
			stats.BotMessagesMerged += len(conv.Messages)
		}
	}
}

// mergeTrivial folds single short reaction-style segments into a neighbor
// within the proximity window, discarding isolated ones.
func (c *Consolidator) mergeTrivial(convs []*types.Conversation, uf *UnionFind, dropped []bool, stats *types.ConsolidationTotals, channelName string) {
	for i, conv := range convs {
		if dropped[i] || isBotSegment(conv) || !isTrivialSegment(conv) {
			continue
		}
		j := nearestWhere(convs, i, func(k int) bool {
			return !dropped[k] && !isTrivialSegment(convs[k]) && spanGap(convs[i], convs[k]) <= c.cfg.ProximityWindow
		})
		if j < 0 {
			dropped[i] = true
			slog.Debug("dropping isolated trivial segment",
				"channel", channelName, "conversation_id", conv.ID, "messages", len(conv.Messages))
			continue
		}
		if uf.Union(i, j) {
			stats.TrivialMessagesMerged += len(conv.Messages)
		}
	}
}

// mergeAdjacent unions consecutive segments separated by a very small gap
// that share at least one participant.
func (c *Consolidator) mergeAdjacent(convs []*types.Conversation, uf *UnionFind, dropped []bool, stats *types.ConsolidationTotals) {
	for i := 0; i+1 < len(convs); i++ {
		if dropped[i] || dropped[i+1] {
			continue
		}
		gap := convs[i+1].StartTime.Sub(convs[i].EndTime)
		if gap > c.cfg.AdjacentGap {
			continue
		}
		if !shareParticipant(convs[i], convs[i+1]) {
			continue
		}
		if uf.Union(i, i+1) {
			stats.AdjacentMerged++
		}
	}
}

// mergeProximity unions pairs near in time that also pass the similarity bar.
func (c *Consolidator) mergeProximity(convs []*types.Conversation, uf *UnionFind, dropped []bool, refValues [][]string, vectors [][]float32, stats *types.ConsolidationTotals) {
	for i := 0; i < len(convs); i++ {
		for j := i + 1; j < len(convs); j++ {
			if dropped[i] || dropped[j] {
				continue
			}
			if spanGap(convs[i], convs[j]) > c.cfg.ProximityWindow {
				break
			}
			score := c.scorer.Hybrid(refValues[i], refValues[j], vectors[i], vectors[j])
			if score < c.cfg.ProximityThreshold {
				continue
			}
			if uf.Union(i, j) {
				stats.ProximityMerged++
			}
		}
	}
}

// mergeSameAuthor unions segments dominated by the same single participant
// within the wider continuation window.
func (c *Consolidator) mergeSameAuthor(convs []*types.Conversation, uf *UnionFind, dropped []bool, stats *types.ConsolidationTotals) {
	for i := 0; i < len(convs); i++ {
		if dropped[i] {
			continue
		}
		authorI, shareI := dominantAuthor(convs[i])
		if authorI == "" || shareI < c.cfg.SameAuthorShare {
			continue
		}
		for j := i + 1; j < len(convs); j++ {
			if dropped[j] {
				continue
			}
			if spanGap(convs[i], convs[j]) > c.cfg.SameAuthorWindow {
				break
			}
			authorJ, shareJ := dominantAuthor(convs[j])
			if authorJ != authorI || shareJ < c.cfg.SameAuthorShare {
				continue
			}
			if uf.Union(i, j) {
				stats.SameAuthorMerged++
			}
		}
	}
}

// mergeSimilar is the final transitive pass: any remaining pair over the
// similarity threshold merges, regardless of time distance.
func (c *Consolidator) mergeSimilar(convs []*types.Conversation, uf *UnionFind, dropped []bool, refValues [][]string, vectors [][]float32, stats *types.ConsolidationTotals) {
	for i := 0; i < len(convs); i++ {
		for j := i + 1; j < len(convs); j++ {
			if dropped[i] || dropped[j] || uf.Same(i, j) {
				continue
			}
			score := c.scorer.Hybrid(refValues[i], refValues[j], vectors[i], vectors[j])
			if score < c.cfg.SimilarityThreshold {
				continue
			}
			if uf.Union(i, j) {
				stats.SimilarMerged++
			}
		}
	}
}

// buildGroups materializes one ConversationGroup per disjoint-set root.
func (c *Consolidator) buildGroups(convs []*types.Conversation, uf *UnionFind, dropped []bool) []*types.ConversationGroup {
	members := make(map[int][]int)
	for i := range convs {
		if dropped[i] {
			continue
		}
		root := uf.Find(i)
		members[root] = append(members[root], i)
	}

	var groups []*types.ConversationGroup
	for _, idxs := range members {
		sort.Ints(idxs)
		group := &types.ConversationGroup{
			ID:        types.NewGroupID(),
			ChannelID: convs[idxs[0]].ChannelID,
		}

		seenTS := make(map[string]bool)
		seenRef := make(map[string]bool)
		participants := make(map[string]bool)
		for _, i := range idxs {
			conv := convs[i]
			group.ConversationIDs = append(group.ConversationIDs, conv.ID)
			for _, m := range conv.Messages {
				if seenTS[m.TS] {
					continue
				}
				seenTS[m.TS] = true
				group.Messages = append(group.Messages, m)
			}
			for _, v := range refs.Values(refs.ExtractConversation(conv), false) {
				if !seenRef[v] {
					seenRef[v] = true
					group.SharedReferences = append(group.SharedReferences, v)
				}
			}
			for _, p := range conv.Participants {
				participants[p] = true
			}
		}

		types.SortMessages(group.Messages)
		group.StartTime = group.Messages[0].Time()
		group.EndTime = group.Messages[len(group.Messages)-1].Time()
		for p := range participants {
			group.Participants = append(group.Participants, p)
		}
		sort.Strings(group.Participants)
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].StartTime.Before(groups[j].StartTime)
	})
	return groups
}

// isBotSegment reports whether every authored message in the segment is
// bot-posted (context messages pulled in by enrichment don't count).
func isBotSegment(c *types.Conversation) bool {
	authored := 0
	for _, m := range c.Messages {
		if m.IsContext() {
			continue
		}
		authored++
		if !m.IsBot() {
			return false
		}
	}
	return authored > 0
}

// isTrivialSegment reports whether the segment is a single short or
// empty-text message (a reaction, a join notice, a bare emoji).
func isTrivialSegment(c *types.Conversation) bool {
	if c.IsThread || len(c.Messages) != 1 {
		return false
	}
	text := strings.TrimSpace(c.Messages[0].Text)
	if text == "" {
		return true
	}
	return len(strings.Fields(text)) < 3 && !strings.ContainsAny(text, "?!")
}

// nearestWhere returns the index nearest in time to i satisfying ok, or -1.
func nearestWhere(convs []*types.Conversation, i int, ok func(int) bool) int {
	best := -1
	var bestGap time.Duration
	for k := range convs {
		if k == i || !ok(k) {
			continue
		}
		gap := spanGap(convs[i], convs[k])
		if best < 0 || gap < bestGap {
			best, bestGap = k, gap
		}
	}
	return best
}

// spanGap returns the time distance between two segment spans, zero if they
// overlap.
func spanGap(a, b *types.Conversation) time.Duration {
	if a.StartTime.After(b.EndTime) {
		return a.StartTime.Sub(b.EndTime)
	}
	if b.StartTime.After(a.EndTime) {
		return b.StartTime.Sub(a.EndTime)
	}
	return 0
}

func shareParticipant(a, b *types.Conversation) bool {
	set := make(map[string]bool, len(a.Participants))
	for _, p := range a.Participants {
		set[p] = true
	}
	for _, p := range b.Participants {
		if set[p] {
			return true
		}
	}
	return false
}

// dominantAuthor returns the author of most user messages and their share.
func dominantAuthor(c *types.Conversation) (string, float64) {
	counts := make(map[string]int)
	total := 0
	for _, m := range c.Messages {
		if m.UserID == "" || m.IsBot() || m.IsContext() {
			continue
		}
		counts[m.UserID]++
		total++
	}
	if total == 0 {
		return "", 0
	}
	best, bestN := "", 0
	for u, n := range counts {
		if n > bestN || (n == bestN && u < best) {
			best, bestN = u, n
		}
	}
	return best, float64(bestN) / float64(total)
}

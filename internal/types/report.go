// internal/types/report.go
package types

import "time"

// NarrativeSummary is one topic's narrated output. Fallback marks summaries
// synthesized locally after a narrator failure.
type NarrativeSummary struct {
	Narrative      string   `json:"narrative"`
	KeyEvents      []string `json:"key_events,omitempty"`
	References     []string `json:"references,omitempty"`
	Participants   []string `json:"participants,omitempty"`
	Outcome        string   `json:"outcome,omitempty"`
	NextActions    []string `json:"next_actions,omitempty"`
	TimesheetEntry string   `json:"timesheet_entry,omitempty"`
	Fallback       bool     `json:"fallback,omitempty"`
}

// Topic is one consolidated conversation group plus its narrative.
type Topic struct {
	GroupID           GroupID          `json:"group_id"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	Participants      []string         `json:"participants"`
	SharedReferences  []string         `json:"shared_references,omitempty"`
	MessageCount      int              `json:"message_count"`
	ConversationCount int              `json:"conversation_count"`
	Summary           NarrativeSummary `json:"summary"`
}

// ChannelReport is one channel's topics, ordered by start time.
type ChannelReport struct {
	ChannelID    string  `json:"channel_id"`
	ChannelName  string  `json:"channel_name"`
	MessageCount int     `json:"message_count"`
	Topics       []Topic `json:"topics"`
}

// ConsolidationTotals aggregates per-channel consolidation stats across the run.
type ConsolidationTotals struct {
	OriginalSegments      int `json:"original_segments"`
	ConsolidatedTopics    int `json:"consolidated_topics"`
	BotMessagesMerged     int `json:"bot_messages_merged"`
	TrivialMessagesMerged int `json:"trivial_messages_merged"`
	AdjacentMerged        int `json:"adjacent_merged"`
	ProximityMerged       int `json:"proximity_merged"`
	SameAuthorMerged      int `json:"same_author_merged"`
	SimilarMerged         int `json:"similar_merged"`
}

// Add accumulates another stats block into the totals.
func (t *ConsolidationTotals) Add(o ConsolidationTotals) {
	t.OriginalSegments += o.OriginalSegments
	t.ConsolidatedTopics += o.ConsolidatedTopics
	t.BotMessagesMerged += o.BotMessagesMerged
	t.TrivialMessagesMerged += o.TrivialMessagesMerged
	t.AdjacentMerged += o.AdjacentMerged
	t.ProximityMerged += o.ProximityMerged
	t.SameAuthorMerged += o.SameAuthorMerged
	t.SimilarMerged += o.SimilarMerged
}

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	ID           ReportID  `json:"id"`
	UserID       string    `json:"user_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	GeneratedAt  time.Time `json:"generated_at"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

// ReportSummary is the run's roll-up totals.
type ReportSummary struct {
	TotalMessages  int                 `json:"total_messages"`
	ActiveChannels int                 `json:"active_channels"`
	Topics         int                 `json:"topics"`
	Consolidation  ConsolidationTotals `json:"consolidation"`
}

// Report is the final artifact and the sole contract with downstream
// formatters.
type Report struct {
	Metadata ReportMetadata  `json:"metadata"`
	Summary  ReportSummary   `json:"summary"`
	Channels []ChannelReport `json:"channels"`
}

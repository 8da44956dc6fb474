// internal/types/models.go
package types

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Message subtypes. Platform subtypes (bot_message, channel_join, ...) are
// passed through as-is; the two context subtypes are attached by the enricher.
const (
	SubtypeBot            = "bot_message"
	SubtypeChannelJoin    = "channel_join"
	SubtypeMentionContext = "mention_context"
	SubtypeContext        = "context"
)

// Message is a single chat message. Immutable once fetched. TS is the
// platform timestamp, Unix seconds with a fractional part
// (e.g. "1726000000.000100"), and is the per-channel ordering key.
type Message struct {
	TS        string `json:"ts"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	Subtype   string `json:"subtype,omitempty"`
}

// Time parses the message timestamp. Returns the zero time if TS is malformed.
func (m Message) Time() time.Time {
	return ParseTS(m.TS)
}

// IsBot reports whether the message was authored by a bot.
func (m Message) IsBot() bool {
	return m.Subtype == SubtypeBot
}

// IsContext reports whether the message was pulled in by the context
// enricher rather than belonging to the segment originally.
func (m Message) IsContext() bool {
	return m.Subtype == SubtypeMentionContext || m.Subtype == SubtypeContext
}

// ParseTS parses a platform timestamp string into a time.Time with
// microsecond precision.
func ParseTS(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if frac != "" {
		// Right-pad to microseconds so "1726000000.5" means 500000us.
		for len(frac) < 6 {
			frac += "0"
		}
		micros, _ = strconv.ParseInt(frac[:6], 10, 64)
	}
	return time.Unix(s, micros*1000).UTC()
}

// FormatTS renders a time as a platform timestamp string.
func FormatTS(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + "." + padMicros(t)
}

func padMicros(t time.Time) string {
	us := t.Nanosecond() / 1000
	s := strconv.Itoa(us)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// LessTS compares two platform timestamps chronologically.
func LessTS(a, b string) bool {
	return ParseTS(a).Before(ParseTS(b))
}

// SortMessages sorts messages chronologically in place.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return LessTS(msgs[i].TS, msgs[j].TS)
	})
}

// RefKind classifies an extracted reference.
type RefKind string

const (
	RefUserMention  RefKind = "user_mention"
	RefTicket       RefKind = "ticket"
	RefIssue        RefKind = "issue"
	RefDocLink      RefKind = "doc_link"
	RefCrossLink    RefKind = "cross_conversation_link"
	RefErrorPattern RefKind = "error_pattern"
)

// Reference is a structured token extracted from message text. Derived data,
// recomputed on demand, never persisted independent of its source text.
type Reference struct {
	Kind     RefKind `json:"kind"`
	Value    string  `json:"value"`
	Raw      string  `json:"raw"`
	SourceTS string  `json:"source_ts"`
}

// Enrichment reasons reported by the context enricher.
const (
	ReasonMentionLookback = "mention_lookback"
	ReasonShortSegment    = "short_segment"
)

// EnrichmentMeta records what the context enricher did to a conversation.
type EnrichmentMeta struct {
	ContextMessagesAdded int      `json:"context_messages_added"`
	Reasons              []string `json:"reasons,omitempty"`
	OriginalMessageCount int      `json:"original_message_count"`
}

// Conversation is a contiguous run of messages judged to belong to one
// topic. Created by segmentation, mutated only by the context enricher, and
// immutable once handed to consolidation.
type Conversation struct {
	ID               ConversationID `json:"id"`
	ChannelID        string         `json:"channel_id"`
	Messages         []Message      `json:"messages"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	Participants     []string       `json:"participants"`
	IsThread         bool           `json:"is_thread"`
	UserMessageCount int            `json:"user_message_count"`
	Enrichment       EnrichmentMeta `json:"enrichment"`
}

// NewConversation builds a conversation from time-sorted messages and derives
// its aggregate fields.
func NewConversation(channelID string, msgs []Message) *Conversation {
	c := &Conversation{
		ID:        NewConversationID(),
		ChannelID: channelID,
		Messages:  msgs,
	}
	c.Recompute()
	return c
}

// Recompute rederives start/end times, participants, and the user message
// count from the message list. Call after mutating Messages.
func (c *Conversation) Recompute() {
	if len(c.Messages) == 0 {
		c.StartTime, c.EndTime = time.Time{}, time.Time{}
		c.Participants = nil
		c.UserMessageCount = 0
		return
	}
	c.StartTime = c.Messages[0].Time()
	c.EndTime = c.Messages[len(c.Messages)-1].Time()
	seen := make(map[string]bool)
	count := 0
	for _, m := range c.Messages {
		if m.Time().Before(c.StartTime) {
			c.StartTime = m.Time()
		}
		if m.Time().After(c.EndTime) {
			c.EndTime = m.Time()
		}
		if m.UserID != "" && !m.IsBot() {
			seen[m.UserID] = true
		}
		if !m.IsBot() && m.Text != "" {
			count++
		}
	}
	c.Participants = sortedKeys(seen)
	c.UserMessageCount = count
}

// Contains reports whether the conversation already holds a message with the
// given timestamp.
func (c *Conversation) Contains(ts string) bool {
	for _, m := range c.Messages {
		if m.TS == ts {
			return true
		}
	}
	return false
}

// Text joins all message text in order. Used as embedding input and as the
// content-hash source for cache invalidation.
func (c *Conversation) Text() string {
	parts := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

// Initiator returns the author of the earliest message, or "".
func (c *Conversation) Initiator() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].UserID
}

// ConversationGroup is the final, possibly multi-segment topic unit. Created
// once by the consolidator and never split again.
type ConversationGroup struct {
	ID               GroupID          `json:"id"`
	ChannelID        string           `json:"channel_id"`
	ConversationIDs  []ConversationID `json:"conversation_ids"`
	Messages         []Message        `json:"messages"`
	SharedReferences []string         `json:"shared_references,omitempty"`
	Participants     []string         `json:"participants"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
}

// Embedding is a cached vector for a conversation's text, content-addressed
// by hash so a changed transcript invalidates the cached vector.
type Embedding struct {
	ConversationID ConversationID `json:"conversation_id"`
	Vector         []float32      `json:"vector"`
	TextHash       string         `json:"text_hash"`
	Model          string         `json:"model"`
	Dimensions     int            `json:"dimensions"`
}

// TimeRange is a half-open [From, To) window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Days returns the UTC day-bucket keys (YYYY-MM-DD) the range touches, in order.
func (r TimeRange) Days() []string {
	var days []string
	day := time.Date(r.From.UTC().Year(), r.From.UTC().Month(), r.From.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(r.To) {
		days = append(days, day.Format("2006-01-02"))
		day = day.AddDate(0, 0, 1)
	}
	return days
}

// ChannelInfo names a channel the user was active in.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reaction is an emoji reaction the user gave.
type Reaction struct {
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	Emoji     string `json:"emoji"`
}

// ThreadActivity is one thread the user participated in.
type ThreadActivity struct {
	ChannelID string    `json:"channel_id"`
	RootTS    string    `json:"root_ts"`
	Messages  []Message `json:"messages"`
}

// Activity is everything fetched for one user over one time range.
type Activity struct {
	MessagesSent        []Message            `json:"messages_sent"`
	MentionsReceived    []Message            `json:"mentions_received"`
	ThreadsParticipated []ThreadActivity     `json:"threads_participated"`
	ReactionsGiven      []Reaction           `json:"reactions_given"`
	Channels            []ChannelInfo        `json:"channels"`
	ChannelMessages     map[string][]Message `json:"channel_messages"`
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package types

import (
	"testing"
	"time"
)

func TestParseTS(t *testing.T) {
	got := ParseTS("1726000000.000100")
	want := time.Unix(1726000000, 100*1000).UTC()
	if !got.Equal(want) {
		t.Errorf("ParseTS = %v, want %v", got, want)
	}

	// Short fractional part is right-padded, not left-padded.
	got = ParseTS("1726000000.5")
	want = time.Unix(1726000000, 500000*1000).UTC()
	if !got.Equal(want) {
		t.Errorf("ParseTS with short frac = %v, want %v", got, want)
	}

	if !ParseTS("1726000000").Equal(time.Unix(1726000000, 0).UTC()) {
		t.Error("ParseTS without frac should parse whole seconds")
	}

	if !ParseTS("garbage").IsZero() {
		t.Error("malformed timestamp should parse to zero time")
	}
}

func TestFormatTSRoundTrip(t *testing.T) {
	for _, ts := range []string{"1726000000.000100", "1726000000.500000", "1726000000.000000"} {
		if got := FormatTS(ParseTS(ts)); got != ts {
			t.Errorf("FormatTS(ParseTS(%q)) = %q", ts, got)
		}
	}
}

func TestLessTS(t *testing.T) {
	if !LessTS("1726000000.000100", "1726000000.000200") {
		t.Error("expected microsecond ordering")
	}
	if LessTS("1726000000.000200", "1726000000.000100") {
		t.Error("ordering should not be symmetric")
	}
	// Numeric comparison, not lexicographic: 999... < 1726...
	if !LessTS("999999999.000000", "1726000000.000000") {
		t.Error("expected numeric comparison across digit counts")
	}
}

func TestSortMessages(t *testing.T) {
	msgs := []Message{
		{TS: "1726000300.000000", Text: "third"},
		{TS: "1726000100.000000", Text: "first"},
		{TS: "1726000200.000000", Text: "second"},
	}
	SortMessages(msgs)
	if msgs[0].Text != "first" || msgs[1].Text != "second" || msgs[2].Text != "third" {
		t.Errorf("unexpected order: %v, %v, %v", msgs[0].Text, msgs[1].Text, msgs[2].Text)
	}
}

func TestMessagePredicates(t *testing.T) {
	if !(Message{Subtype: SubtypeBot}).IsBot() {
		t.Error("bot_message subtype should be a bot")
	}
	if (Message{UserID: "U1"}).IsBot() {
		t.Error("plain message should not be a bot")
	}
	if !(Message{Subtype: SubtypeContext}).IsContext() {
		t.Error("context subtype should be context")
	}
	if !(Message{Subtype: SubtypeMentionContext}).IsContext() {
		t.Error("mention_context subtype should be context")
	}
	if (Message{Subtype: SubtypeChannelJoin}).IsContext() {
		t.Error("channel_join should not be context")
	}
}

func TestNewConversation(t *testing.T) {
	msgs := []Message{
		{TS: "1726000100.000000", UserID: "U2", Text: "hello"},
		{TS: "1726000200.000000", UserID: "U1", Text: "hi"},
		{TS: "1726000300.000000", UserID: "B1", Text: "build passed", Subtype: SubtypeBot},
	}
	c := NewConversation("C1", msgs)

	if c.ID == "" {
		t.Error("expected non-empty conversation ID")
	}
	if c.ChannelID != "C1" {
		t.Errorf("unexpected channel %q", c.ChannelID)
	}
	if !c.StartTime.Equal(ParseTS("1726000100.000000")) {
		t.Errorf("unexpected start time %v", c.StartTime)
	}
	if !c.EndTime.Equal(ParseTS("1726000300.000000")) {
		t.Errorf("unexpected end time %v", c.EndTime)
	}
	// Bot author excluded, participants sorted.
	if len(c.Participants) != 2 || c.Participants[0] != "U1" || c.Participants[1] != "U2" {
		t.Errorf("unexpected participants %v", c.Participants)
	}
	// Bot messages excluded from the user message count.
	if c.UserMessageCount != 2 {
		t.Errorf("expected 2 user messages, got %d", c.UserMessageCount)
	}
	if c.Initiator() != "U2" {
		t.Errorf("unexpected initiator %q", c.Initiator())
	}
}

func TestConversationRecomputeAfterMutation(t *testing.T) {
	c := NewConversation("C1", []Message{
		{TS: "1726000200.000000", UserID: "U1", Text: "hi"},
	})
	c.Messages = append([]Message{
		{TS: "1726000100.000000", UserID: "U2", Text: "earlier", Subtype: SubtypeContext},
	}, c.Messages...)
	c.Recompute()

	if !c.StartTime.Equal(ParseTS("1726000100.000000")) {
		t.Errorf("start time not recomputed: %v", c.StartTime)
	}
	if len(c.Participants) != 2 {
		t.Errorf("participants not recomputed: %v", c.Participants)
	}
}

func TestConversationRecomputeEmpty(t *testing.T) {
	c := NewConversation("C1", []Message{{TS: "1726000100.000000", UserID: "U1", Text: "hi"}})
	c.Messages = nil
	c.Recompute()

	if !c.StartTime.IsZero() || !c.EndTime.IsZero() {
		t.Error("empty conversation should have zero times")
	}
	if c.Participants != nil || c.UserMessageCount != 0 {
		t.Error("empty conversation should have no participants or messages")
	}
}

func TestConversationContains(t *testing.T) {
	c := NewConversation("C1", []Message{{TS: "1726000100.000000", UserID: "U1", Text: "hi"}})
	if !c.Contains("1726000100.000000") {
		t.Error("expected Contains to find existing timestamp")
	}
	if c.Contains("1726000200.000000") {
		t.Error("Contains should not match missing timestamp")
	}
}

func TestConversationText(t *testing.T) {
	c := NewConversation("C1", []Message{
		{TS: "1726000100.000000", UserID: "U1", Text: "line one"},
		{TS: "1726000200.000000", UserID: "U2", Text: "line two"},
	})
	if got := c.Text(); got != "line one\nline two" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestTimeRangeContains(t *testing.T) {
	r := TimeRange{
		From: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
	}
	if !r.Contains(r.From) {
		t.Error("range should include From")
	}
	if r.Contains(r.To) {
		t.Error("range should exclude To")
	}
	if r.Contains(r.From.Add(-time.Second)) {
		t.Error("range should exclude times before From")
	}
	if !r.Contains(r.From.Add(12 * time.Hour)) {
		t.Error("range should include interior times")
	}
}

func TestTimeRangeDays(t *testing.T) {
	r := TimeRange{
		From: time.Date(2025, 8, 30, 15, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
	}
	days := r.Days()
	want := []string{"2025-08-30", "2025-08-31", "2025-09-01"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %v", len(want), days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("day %d = %q, want %q", i, days[i], want[i])
		}
	}
}

func TestTimeRangeDaysSingleDay(t *testing.T) {
	r := TimeRange{
		From: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 9, 1, 17, 0, 0, 0, time.UTC),
	}
	days := r.Days()
	if len(days) != 1 || days[0] != "2025-09-01" {
		t.Errorf("expected single day bucket, got %v", days)
	}
}

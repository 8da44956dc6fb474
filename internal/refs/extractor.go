// Package refs extracts structured reference tokens from message text.
// Extraction is deterministic: identical input always yields identical,
// order-stable output.
package refs

import (
	"regexp"
	"strings"

	"github.com/user/recap/internal/types"
)

var (
	mentionRe    = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	ticketRe     = regexp.MustCompile(`\b([A-Z][A-Z0-9]{1,9}-[0-9]+)\b`)
	issueURLRe   = regexp.MustCompile(`https?://github\.com/([\w.-]+)/([\w.-]+)/(?:issues|pull)/([0-9]+)`)
	issueShortRe = regexp.MustCompile(`\b([\w-]+/[\w.-]+#[0-9]+)\b`)
	docLinkRe    = regexp.MustCompile(`https?://(?:docs\.google\.com|drive\.google\.com|[\w-]+\.notion\.so|www\.notion\.so|[\w-]+\.atlassian\.net)/[^\s<>|]+`)
	crossLinkRe  = regexp.MustCompile(`https?://[\w-]+\.slack\.com/archives/([A-Z0-9]+)/p([0-9]+)`)
	errorRe      = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:Error|Exception))\b`)
	panicRe      = regexp.MustCompile(`\bpanic: [^\n]+`)
)

// ExtractMessage scans one message and returns its references in a fixed
// kind order (mentions, tickets, issues, doc links, cross-links, errors),
// each kind in text order.
func ExtractMessage(m types.Message) []types.Reference {
	var out []types.Reference
	add := func(kind types.RefKind, value, raw string) {
		out = append(out, types.Reference{Kind: kind, Value: value, Raw: raw, SourceTS: m.TS})
	}

	for _, g := range mentionRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefUserMention, g[1], g[0])
	}
	for _, g := range ticketRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefTicket, strings.ToUpper(g[1]), g[0])
	}
	for _, g := range issueURLRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefIssue, g[1]+"/"+g[2]+"#"+g[3], g[0])
	}
	for _, g := range issueShortRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefIssue, g[1], g[0])
	}
	for _, raw := range docLinkRe.FindAllString(m.Text, -1) {
		add(types.RefDocLink, normalizeURL(raw), raw)
	}
	for _, g := range crossLinkRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefCrossLink, g[1]+"/p"+g[2], g[0])
	}
	for _, g := range errorRe.FindAllStringSubmatch(m.Text, -1) {
		add(types.RefErrorPattern, g[1], g[0])
	}
	for _, raw := range panicRe.FindAllString(m.Text, -1) {
		add(types.RefErrorPattern, "panic", raw)
	}
	return out
}

// ExtractConversation scans every message of a conversation in order.
func ExtractConversation(c *types.Conversation) []types.Reference {
	var out []types.Reference
	for _, m := range c.Messages {
		out = append(out, ExtractMessage(m)...)
	}
	return out
}

// Values returns deduplicated normalized values in first-seen order. User
// mentions are excluded unless includeMentions is set: mentioning the same
// person is not evidence of topical relatedness, so similarity scoring
// always calls this with includeMentions=false.
func Values(references []types.Reference, includeMentions bool) []string {
	seen := make(map[string]bool, len(references))
	var out []string
	for _, r := range references {
		if r.Kind == types.RefUserMention && !includeMentions {
			continue
		}
		key := string(r.Kind) + ":" + r.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.Value)
	}
	return out
}

// Mentions reports whether the message @-mentions the given user.
func Mentions(m types.Message, userID string) bool {
	return strings.Contains(m.Text, "<@"+userID+">")
}

// normalizeURL strips the query and fragment so the same document linked with
// different tracking parameters normalizes to one value.
func normalizeURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/.,)")
}

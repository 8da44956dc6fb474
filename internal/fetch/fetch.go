// Package fetch assembles a user's activity from an upstream chat source,
// with per-channel message history cached locally in day buckets.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/recap/internal/types"
)

// DataTypeMessages is the fetch-status data type for channel history.
const DataTypeMessages = "messages"

// Source fetches user-level activity: sent messages, mentions, threads,
// reactions, and the active channel list. ChannelMessages may be left empty;
// the Client fills it through the history source.
type Source interface {
	FetchUserActivity(ctx context.Context, userID string, span types.TimeRange) (*types.Activity, error)
}

// HistorySource fetches one channel's full message stream for a time range.
type HistorySource interface {
	FetchChannelMessages(ctx context.Context, channelID string, span types.TimeRange) ([]types.Message, error)
}

// Client composes a Source and a HistorySource into a types.ActivitySource.
type Client struct {
	base    Source
	history HistorySource
}

var _ types.ActivitySource = (*Client)(nil)

// NewClient wires the user-activity source with the (typically cached)
// channel history source.
func NewClient(base Source, history HistorySource) *Client {
	return &Client{base: base, history: history}
}

// FetchActivity fetches user activity and fills in the per-channel streams.
// Failure here is the pipeline's one hard failure mode.
func (c *Client) FetchActivity(ctx context.Context, userID string, span types.TimeRange) (*types.Activity, error) {
	activity, err := c.base.FetchUserActivity(ctx, userID, span)
	if err != nil {
		return nil, fmt.Errorf("fetch user activity: %w", err)
	}
	if activity.ChannelMessages == nil {
		activity.ChannelMessages = make(map[string][]types.Message)
	}
	for _, ch := range activity.Channels {
		if _, ok := activity.ChannelMessages[ch.ID]; ok {
			continue
		}
		msgs, err := c.history.FetchChannelMessages(ctx, ch.ID, span)
		if err != nil {
			return nil, fmt.Errorf("fetch channel %s history: %w", ch.ID, err)
		}
		activity.ChannelMessages[ch.ID] = msgs
	}
	return activity, nil
}

// CachedHistory decorates a HistorySource with the day-bucket cache: past
// days marked complete are served locally and never re-fetched; the current
// day is always re-fetched and never marked complete.
type CachedHistory struct {
	upstream HistorySource
	cache    types.Cache
	userID   string
	now      func() time.Time
}

var _ HistorySource = (*CachedHistory)(nil)

// NewCachedHistory creates the caching decorator for one user's run.
func NewCachedHistory(upstream HistorySource, cache types.Cache, userID string) *CachedHistory {
	return &CachedHistory{upstream: upstream, cache: cache, userID: userID, now: time.Now}
}

// FetchChannelMessages serves each day bucket from cache when complete,
// otherwise fetches it upstream, persists the batch in one transaction, and
// marks fully past days complete.
func (h *CachedHistory) FetchChannelMessages(ctx context.Context, channelID string, span types.TimeRange) ([]types.Message, error) {
	var out []types.Message
	for _, day := range span.Days() {
		dayStart, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
		dayEnd := dayStart.AddDate(0, 0, 1)
		bucket := intersect(span, types.TimeRange{From: dayStart, To: dayEnd})

		complete, err := h.cache.DayComplete(ctx, h.userID, channelID, day, DataTypeMessages)
		if err != nil {
			slog.Warn("fetch status read failed, treating day as incomplete",
				"channel_id", channelID, "day", day, "error", err)
		}
		if complete {
			cached, err := h.cache.MessagesInRange(ctx, channelID, bucket)
			if err == nil {
				out = append(out, cached...)
				continue
			}
			slog.Warn("cache read failed, re-fetching day",
				"channel_id", channelID, "day", day, "error", err)
		}

		fetched, err := h.upstream.FetchChannelMessages(ctx, channelID, bucket)
		if err != nil {
			return nil, fmt.Errorf("fetch %s day %s: %w", channelID, day, err)
		}
		if err := h.cache.SaveMessages(ctx, channelID, fetched); err != nil {
			slog.Warn("cache write failed", "channel_id", channelID, "day", day, "error", err)
		} else if !dayEnd.After(h.now().UTC()) {
			// Only fully past days are immutable.
			if err := h.cache.MarkDayComplete(ctx, h.userID, channelID, day, DataTypeMessages); err != nil {
				slog.Warn("fetch status write failed", "channel_id", channelID, "day", day, "error", err)
			}
		}
		out = append(out, fetched...)
	}
	types.SortMessages(out)
	return out, nil
}

func intersect(a, b types.TimeRange) types.TimeRange {
	out := b
	if a.From.After(out.From) {
		out.From = a.From
	}
	if a.To.Before(out.To) {
		out.To = a.To
	}
	return out
}

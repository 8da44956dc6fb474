package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/user/recap/internal/refs"
	"github.com/user/recap/internal/types"
)

// ExportSource serves a chat archive exported to a local JSON file as both
// the user-activity source and the channel history source. The archive holds
// the channel list and the full message stream per channel; user activity is
// derived by scanning the streams.
type ExportSource struct {
	channels []types.ChannelInfo
	messages map[string][]types.Message
}

var (
	_ Source        = (*ExportSource)(nil)
	_ HistorySource = (*ExportSource)(nil)
)

type exportFile struct {
	Channels []types.ChannelInfo        `json:"channels"`
	Messages map[string][]types.Message `json:"messages"`
}

// OpenExport reads and indexes an archive file.
func OpenExport(path string) (*ExportSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	var file exportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse archive %s: %w", path, err)
	}
	src := &ExportSource{
		channels: file.Channels,
		messages: make(map[string][]types.Message, len(file.Messages)),
	}
	for channelID, msgs := range file.Messages {
		for i := range msgs {
			msgs[i].ChannelID = channelID
		}
		types.SortMessages(msgs)
		src.messages[channelID] = msgs
	}
	return src, nil
}

// FetchUserActivity scans the archive for the user's sent messages, received
// mentions, and thread participation within the range.
func (s *ExportSource) FetchUserActivity(ctx context.Context, userID string, span types.TimeRange) (*types.Activity, error) {
	activity := &types.Activity{
		Channels:        s.channels,
		ChannelMessages: make(map[string][]types.Message),
	}
	participated := make(map[string]bool)
	for _, ch := range s.channels {
		for _, m := range s.messages[ch.ID] {
			if !span.Contains(m.Time()) {
				continue
			}
			if m.UserID == userID {
				activity.MessagesSent = append(activity.MessagesSent, m)
				if m.ThreadTS != "" {
					participated[ch.ID+":"+m.ThreadTS] = true
				}
			} else if refs.Mentions(m, userID) {
				activity.MentionsReceived = append(activity.MentionsReceived, m)
			}
		}
	}
	// Second pass collects the full message set of each thread the user
	// participated in.
	for _, ch := range s.channels {
		for root := range participated {
			rootTS, ok := strings.CutPrefix(root, ch.ID+":")
			if !ok {
				continue
			}
			thread := types.ThreadActivity{ChannelID: ch.ID, RootTS: rootTS}
			for _, m := range s.messages[ch.ID] {
				if m.ThreadTS == rootTS || m.TS == rootTS {
					thread.Messages = append(thread.Messages, m)
				}
			}
			activity.ThreadsParticipated = append(activity.ThreadsParticipated, thread)
		}
	}
	return activity, nil
}

// FetchChannelMessages returns the archived stream for a channel within the
// range.
func (s *ExportSource) FetchChannelMessages(ctx context.Context, channelID string, span types.TimeRange) ([]types.Message, error) {
	var out []types.Message
	for _, m := range s.messages[channelID] {
		if span.Contains(m.Time()) {
			out = append(out, m)
		}
	}
	return out, nil
}

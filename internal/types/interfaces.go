// internal/types/interfaces.go
package types

import "context"

// ActivitySource fetches a user's activity over a time range. Total
// unavailability here is the only hard failure the pipeline propagates.
type ActivitySource interface {
	FetchActivity(ctx context.Context, userID string, span TimeRange) (*Activity, error)
}

// Cache is the local message/embedding cache. Embeddings are content-addressed
// by text hash; message history is keyed by channel and day-bucket, where past
// days marked complete are immutable and today is always re-fetched.
type Cache interface {
	GetCachedEmbedding(ctx context.Context, id ConversationID, textHash string) ([]float32, bool, error)
	SetCachedEmbedding(ctx context.Context, emb *Embedding) error

	MessagesInRange(ctx context.Context, channelID string, span TimeRange) ([]Message, error)
	SaveMessages(ctx context.Context, channelID string, msgs []Message) error

	DayComplete(ctx context.Context, userID, channelID, day, dataType string) (bool, error)
	MarkDayComplete(ctx context.Context, userID, channelID, day, dataType string) error

	Close() error
}

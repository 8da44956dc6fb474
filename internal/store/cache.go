// Package store provides the local SQLite cache for fetched messages,
// conversation embeddings, and day-bucket fetch status.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/recap/internal/types"
)

// SQLiteCache implements types.Cache on a single-file SQLite database.
// One row per message keyed by (channel_id, ts), one row per cached embedding
// keyed by conversation id with a content hash for invalidation, and a
// fetch-status row per (user, channel, day, data-type).
type SQLiteCache struct {
	db *sql.DB
}

var _ types.Cache = (*SQLiteCache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	channel_id TEXT NOT NULL,
	ts         TEXT NOT NULL,
	user_id    TEXT,
	text       TEXT NOT NULL,
	thread_ts  TEXT,
	subtype    TEXT,
	PRIMARY KEY (channel_id, ts)
);
CREATE TABLE IF NOT EXISTS embeddings (
	conversation_id TEXT PRIMARY KEY,
	text_hash       TEXT NOT NULL,
	model           TEXT NOT NULL,
	dimensions      INTEGER NOT NULL,
	vector          BLOB NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fetch_status (
	user_id    TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	day        TEXT NOT NULL,
	data_type  TEXT NOT NULL,
	complete   INTEGER NOT NULL DEFAULT 0,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (user_id, channel_id, day, data_type)
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_ts ON messages(channel_id, ts);
`

// Open initializes the cache database at the given path, creating the
// directory and schema as needed.
func Open(path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// GetCachedEmbedding returns the cached vector for the conversation if the
// content hash still matches. A changed hash means the transcript changed, so
// the stale vector is treated as absent.
func (c *SQLiteCache) GetCachedEmbedding(ctx context.Context, id types.ConversationID, textHash string) ([]float32, bool, error) {
	var storedHash string
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT text_hash, vector FROM embeddings WHERE conversation_id = ?", string(id),
	).Scan(&storedHash, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read embedding: %w", err)
	}
	if storedHash != textHash {
		return nil, false, nil
	}
	return decodeVector(blob), true, nil
}

// SetCachedEmbedding upserts the vector for a conversation.
func (c *SQLiteCache) SetCachedEmbedding(ctx context.Context, emb *types.Embedding) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embeddings (conversation_id, text_hash, model, dimensions, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			text_hash = excluded.text_hash,
			model = excluded.model,
			dimensions = excluded.dimensions,
			vector = excluded.vector,
			updated_at = excluded.updated_at`,
		string(emb.ConversationID), emb.TextHash, emb.Model, emb.Dimensions,
		encodeVector(emb.Vector), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write embedding: %w", err)
	}
	return nil
}

// MessagesInRange returns cached messages for a channel within the range,
// ordered by timestamp.
func (c *SQLiteCache) MessagesInRange(ctx context.Context, channelID string, span types.TimeRange) ([]types.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT ts, user_id, text, thread_ts, subtype
		FROM messages
		WHERE channel_id = ? AND CAST(ts AS REAL) >= ? AND CAST(ts AS REAL) < ?
		ORDER BY CAST(ts AS REAL)`,
		channelID, float64(span.From.UnixMicro())/1e6, float64(span.To.UnixMicro())/1e6,
	)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		m := types.Message{ChannelID: channelID}
		var userID, threadTS, subtype sql.NullString
		if err := rows.Scan(&m.TS, &userID, &m.Text, &threadTS, &subtype); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.UserID = userID.String
		m.ThreadTS = threadTS.String
		m.Subtype = subtype.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveMessages writes a batch of messages in one transaction. Existing rows
// are replaced, so re-fetching today's bucket converges on the latest data.
func (c *SQLiteCache) SaveMessages(ctx context.Context, channelID string, msgs []types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO messages (channel_id, ts, user_id, text, thread_ts, subtype)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, channelID, m.TS, m.UserID, m.Text, m.ThreadTS, m.Subtype); err != nil {
			return fmt.Errorf("insert message %s: %w", m.TS, err)
		}
	}
	return tx.Commit()
}

// DayComplete reports whether the day-bucket was fully fetched before.
func (c *SQLiteCache) DayComplete(ctx context.Context, userID, channelID, day, dataType string) (bool, error) {
	var complete int
	err := c.db.QueryRowContext(ctx,
		"SELECT complete FROM fetch_status WHERE user_id = ? AND channel_id = ? AND day = ? AND data_type = ?",
		userID, channelID, day, dataType,
	).Scan(&complete)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read fetch status: %w", err)
	}
	return complete == 1, nil
}

// MarkDayComplete records a day-bucket as fully fetched. Callers must never
// mark the current day: today is always re-fetched.
func (c *SQLiteCache) MarkDayComplete(ctx context.Context, userID, channelID, day, dataType string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO fetch_status (user_id, channel_id, day, data_type, complete, fetched_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id, channel_id, day, data_type) DO UPDATE SET
			complete = 1, fetched_at = excluded.fetched_at`,
		userID, channelID, day, dataType, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("write fetch status: %w", err)
	}
	return nil
}

// encodeVector packs float32s little-endian into a blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

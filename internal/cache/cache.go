// Package cache keeps a local sqlite copy of archive messages the reader
// has already fetched and bridged. The list archive stays authoritative:
// deleting the cache only costs a re-fetch on the next pass.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MessageCache records which archive messages have been seen and which have
// already been bridged onto the forge.
type MessageCache struct {
	db *sql.DB
}

// Open creates or opens the cache at the given path. Use ":memory:" for an
// in-memory database in tests.
func Open(path string) (*MessageCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c := &MessageCache{db: db}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return c, nil
}

func (c *MessageCache) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		list TEXT NOT NULL,
		seen_at INTEGER NOT NULL,
		bridged INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_list ON messages(list);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Seen reports whether the message id has been recorded for the list.
func (c *MessageCache) Seen(ctx context.Context, list, messageID string) (bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE message_id = ? AND list = ?`, messageID, list)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query cache: %w", err)
	}
	return true, nil
}

// MarkSeen records a message id. Marking an already-seen message keeps its
// first seen time and only ever raises its bridged flag.
func (c *MessageCache) MarkSeen(ctx context.Context, list, messageID string, bridged bool) error {
	flag := 0
	if bridged {
		flag = 1
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, list, seen_at, bridged)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET bridged = MAX(bridged, excluded.bridged)`,
		messageID, list, time.Now().Unix(), flag)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// Prune removes entries older than the retention window.
func (c *MessageCache) Prune(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention).Unix()
	_, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE seen_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (c *MessageCache) Close() error {
	return c.db.Close()
}

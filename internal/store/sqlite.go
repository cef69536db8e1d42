package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/recap/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	sequence_id INTEGER NOT NULL,
	author_id TEXT,
	author_name TEXT,
	body TEXT NOT NULL,
	occurred_at INTEGER NOT NULL,
	arrived_at INTEGER NOT NULL,
	UNIQUE(conversation_id, sequence_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_time
	ON messages(conversation_id, occurred_at);`

// SQLite is the durable tier: unbounded retention, idempotent insert via the
// identity uniqueness constraint. Timestamps are stored as unix nanoseconds
// so range scans compare correctly.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and ensures the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", "file:"+dsn+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	logger.L.Info("sqlite message store initialized", "dsn", dsn)
	return &SQLite{db: db}, nil
}

// Append inserts the message; a duplicate identity pair is silently accepted.
func (s *SQLite) Append(ctx context.Context, msg Message) error {
	msg = msg.normalized()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sequence_id, author_id, author_name, body, occurred_at, arrived_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(conversation_id, sequence_id) DO NOTHING;`,
		msg.ConversationID, msg.SequenceID, msg.AuthorID, msg.AuthorName, msg.Text,
		msg.OccurredAt.UnixNano(), msg.ArrivedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite append: %w", err)
	}
	return nil
}

// Retrieve returns the selected messages in chronological order.
func (s *SQLite) Retrieve(ctx context.Context, req RetrievalRequest) ([]Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	if req.Window != nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT conversation_id, sequence_id, author_id, author_name, body, occurred_at, arrived_at
			 FROM messages
			 WHERE conversation_id = ? AND occurred_at >= ? AND occurred_at < ?
			 ORDER BY occurred_at ASC, sequence_id ASC;`,
			req.ConversationID, req.Window.Start.UnixNano(), req.Window.End.UnixNano())
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT conversation_id, sequence_id, author_id, author_name, body, occurred_at, arrived_at
			 FROM messages
			 WHERE conversation_id = ?
			 ORDER BY occurred_at DESC, sequence_id DESC
			 LIMIT ?;`,
			req.ConversationID, req.LastN)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite retrieve: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var occurred, arrived int64
		if err := rows.Scan(&m.ConversationID, &m.SequenceID, &m.AuthorID, &m.AuthorName, &m.Text, &occurred, &arrived); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		m.OccurredAt = time.Unix(0, occurred).UTC()
		m.ArrivedAt = time.Unix(0, arrived).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite retrieve: %w", err)
	}

	if req.LastN > 0 {
		// The count query reads newest-first; flip back to chronological.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Purge deletes the conversation's messages that occurred before olderThan
// and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context, conversationID string, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND occurred_at < ?;`,
		conversationID, olderThan.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Package store persists conversation messages. Two tiers implement the
// same contract: a durable SQLite-backed log and a bounded in-memory buffer.
// Tier selection happens once at startup; a response is always served from
// exactly one tier.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/comigor/recap/internal/timeframe"
)

var (
	// ErrDegradedStorage reports that a durable write failed and the
	// message was stored in the volatile tier instead. It is raised at
	// most once per process so callers can surface a single notice.
	ErrDegradedStorage = errors.New("durable storage degraded, using in-memory tier")
	// ErrBadRequest reports a retrieval request with no selector, or both.
	ErrBadRequest = errors.New("retrieval request must carry exactly one selector")
)

// Message is one recorded utterance. (ConversationID, SequenceID) is the
// identity pair; re-appending the same pair is a no-op.
type Message struct {
	ConversationID string
	SequenceID     int64
	AuthorID       string
	AuthorName     string
	Text           string
	OccurredAt     time.Time
	ArrivedAt      time.Time
}

// normalized returns a copy with UTC timestamps and ArrivedAt defaulted to
// the occurrence time.
func (m Message) normalized() Message {
	m.OccurredAt = m.OccurredAt.UTC()
	if m.ArrivedAt.IsZero() {
		m.ArrivedAt = m.OccurredAt
	} else {
		m.ArrivedAt = m.ArrivedAt.UTC()
	}
	return m
}

// before orders messages by occurrence time, ties broken by sequence id.
func (m Message) before(o Message) bool {
	if !m.OccurredAt.Equal(o.OccurredAt) {
		return m.OccurredAt.Before(o.OccurredAt)
	}
	return m.SequenceID < o.SequenceID
}

// RetrievalRequest selects messages from one conversation, either the last
// LastN messages or everything inside Window. Exactly one selector is set.
type RetrievalRequest struct {
	ConversationID string
	LastN          int
	Window         *timeframe.Range
}

// Validate checks that exactly one selector is active.
func (r RetrievalRequest) Validate() error {
	byCount := r.LastN > 0
	byWindow := r.Window != nil
	if byCount == byWindow {
		return ErrBadRequest
	}
	return nil
}

// Store is the retrieval contract shared by both tiers. Retrieve returns
// messages ordered by occurrence time ascending, ties by sequence id.
type Store interface {
	Append(ctx context.Context, msg Message) error
	Retrieve(ctx context.Context, req RetrievalRequest) ([]Message, error)
	Purge(ctx context.Context, conversationID string, olderThan time.Time) (int64, error)
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/recap/internal/timeframe"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func msg(conv string, seq int64, text string, at time.Time) Message {
	return Message{ConversationID: conv, SequenceID: seq, AuthorName: "user", Text: text, OccurredAt: at}
}

func TestSQLite_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	times := []time.Time{
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC),
	}
	for i, at := range times {
		require.NoError(t, db.Append(ctx, msg("c1", int64(i+1), "hello", at)))
	}

	window, err := timeframe.Resolve("on 2024-01-15", times[0])
	require.NoError(t, err)

	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", Window: &window})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		require.Equal(t, int64(i+1), m.SequenceID)
		require.True(t, m.OccurredAt.Equal(times[i]))
	}
}

// Re-appending the same identity pair is a no-op, not an error.
func TestSQLite_IdempotentAppend(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Append(ctx, msg("c1", 7, "first", at)))
	require.NoError(t, db.Append(ctx, msg("c1", 7, "duplicate", at)))

	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].Text)
}

func TestSQLite_LastN(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, db.Append(ctx, msg("c1", i, "m", base.Add(time.Duration(i)*time.Minute))))
	}
	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Chronological order, newest three.
	require.Equal(t, int64(8), got[0].SequenceID)
	require.Equal(t, int64(10), got[2].SequenceID)
}

// Equal occurrence timestamps are ordered by sequence id.
func TestSQLite_TieBreakBySequence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Append(ctx, msg("c1", 2, "second", at)))
	require.NoError(t, db.Append(ctx, msg("c1", 1, "first", at)))

	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].SequenceID)
	require.Equal(t, int64(2), got[1].SequenceID)
}

func TestSQLite_ConversationsAreIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Append(ctx, msg("c1", 1, "one", at)))
	require.NoError(t, db.Append(ctx, msg("c2", 1, "two", at)))

	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "one", got[0].Text)
}

func TestSQLite_Purge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := int64(0); i < 5; i++ {
		require.NoError(t, db.Append(ctx, msg("c1", i, "m", base.AddDate(0, 0, int(i)))))
	}
	removed, err := db.Purge(ctx, "c1", base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)

	got, err := db.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRetrievalRequest_Validate(t *testing.T) {
	window, err := timeframe.NewRange(time.Unix(0, 0).UTC(), time.Unix(1000, 0).UTC(), "w")
	require.NoError(t, err)

	require.ErrorIs(t, RetrievalRequest{ConversationID: "c"}.Validate(), ErrBadRequest)
	require.ErrorIs(t, RetrievalRequest{ConversationID: "c", LastN: 1, Window: &window}.Validate(), ErrBadRequest)
	require.NoError(t, RetrievalRequest{ConversationID: "c", LastN: 1}.Validate())
	require.NoError(t, RetrievalRequest{ConversationID: "c", Window: &window}.Validate())
}

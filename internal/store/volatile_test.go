package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/recap/internal/timeframe"
)

func TestVolatile_CapacityEviction(t *testing.T) {
	v := NewVolatile(3, 0)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, v.Append(ctx, msg("c1", i, "m", base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Oldest two were evicted.
	require.Equal(t, int64(3), got[0].SequenceID)
	require.Equal(t, int64(5), got[2].SequenceID)
}

func TestVolatile_IdempotentAppend(t *testing.T) {
	v := NewVolatile(10, 0)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, v.Append(ctx, msg("c1", 1, "first", at)))
	require.NoError(t, v.Append(ctx, msg("c1", 1, "duplicate", at)))

	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].Text)
}

func TestVolatile_AgeCap(t *testing.T) {
	v := NewVolatile(10, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, v.Append(ctx, msg("c1", 1, "stale", now.Add(-2*time.Hour))))
	require.NoError(t, v.Append(ctx, msg("c1", 2, "fresh", now.Add(-time.Minute))))

	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "fresh", got[0].Text)
}

func TestVolatile_WindowRetrieval(t *testing.T) {
	v := NewVolatile(10, 0)
	ctx := context.Background()
	base := time.Now().UTC().Add(-3 * time.Hour)

	for i := int64(0); i < 6; i++ {
		require.NoError(t, v.Append(ctx, msg("c1", i, "m", base.Add(time.Duration(i)*30*time.Minute))))
	}
	window, err := timeframe.NewRange(base.Add(time.Hour), base.Add(2*time.Hour), "window")
	require.NoError(t, err)

	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", Window: &window})
	require.NoError(t, err)
	// Closed-open: offsets 60m and 90m qualify, 120m does not.
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].SequenceID)
	require.Equal(t, int64(3), got[1].SequenceID)
}

func TestVolatile_Purge(t *testing.T) {
	v := NewVolatile(10, 0)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := int64(0); i < 4; i++ {
		require.NoError(t, v.Append(ctx, msg("c1", i, "m", base.Add(time.Duration(i)*time.Minute))))
	}
	removed, err := v.Purge(ctx, "c1", base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

type failingStore struct {
	err error
}

func (f *failingStore) Append(context.Context, Message) error { return f.err }
func (f *failingStore) Retrieve(context.Context, RetrievalRequest) ([]Message, error) {
	return nil, f.err
}
func (f *failingStore) Purge(context.Context, string, time.Time) (int64, error) { return 0, f.err }

// A failed durable write lands in the volatile tier; the degradation notice
// is returned once, not per message.
func TestTiered_DegradedWriteNoticeOnce(t *testing.T) {
	v := NewVolatile(10, 0)
	tiered := NewTiered(&failingStore{err: errors.New("connection refused")}, v)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Minute)

	err := tiered.Append(ctx, msg("c1", 1, "one", at))
	require.ErrorIs(t, err, ErrDegradedStorage)

	require.NoError(t, tiered.Append(ctx, msg("c1", 2, "two", at.Add(time.Second))))

	// Both messages survived in the volatile tier.
	got, err := v.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestTiered_SelectsVolatileWithoutDurable(t *testing.T) {
	v := NewVolatile(10, 0)
	tiered := NewTiered(nil, v)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Minute)

	require.False(t, tiered.Durable())
	require.NoError(t, tiered.Append(ctx, msg("c1", 1, "one", at)))

	got, err := tiered.Retrieve(ctx, RetrievalRequest{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

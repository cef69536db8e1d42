package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/recap/internal/budget"
	"github.com/comigor/recap/internal/config"
	"github.com/comigor/recap/internal/sampler"
	"github.com/comigor/recap/internal/store"
	"github.com/comigor/recap/internal/timeframe"
)

// mockStore mirrors the store.Store interface with overridable behavior.
type mockStore struct {
	RetrieveFunc func(ctx context.Context, req store.RetrievalRequest) ([]store.Message, error)
}

func (m *mockStore) Append(context.Context, store.Message) error { return nil }
func (m *mockStore) Retrieve(ctx context.Context, req store.RetrievalRequest) ([]store.Message, error) {
	return m.RetrieveFunc(ctx, req)
}
func (m *mockStore) Purge(context.Context, string, time.Time) (int64, error) { return 0, nil }

func testPipeline(t *testing.T, st store.Store, limit float64) *Pipeline {
	t.Helper()
	ledger := budget.NewLedger(config.BudgetConfig{
		MonthlyLimit: limit,
		InputRate:    1.0,
		OutputRate:   0,
		SnapshotPath: filepath.Join(t.TempDir(), "cost_data.json"),
	})
	return New(st, ledger, sampler.Limits{Soft: 500, Hard: 1000}, 50*time.Millisecond, time.Millisecond)
}

func conversationFixture(n int) []store.Message {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	msgs := make([]store.Message, n)
	for i := range msgs {
		msgs[i] = store.Message{
			ConversationID: "c1",
			SequenceID:     int64(i + 1),
			AuthorName:     "user",
			Text:           "message body",
			OccurredAt:     base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestPrepare_TimeframeFlow(t *testing.T) {
	fixture := conversationFixture(3)
	st := &mockStore{RetrieveFunc: func(_ context.Context, req store.RetrievalRequest) ([]store.Message, error) {
		require.NotNil(t, req.Window)
		require.Zero(t, req.LastN)
		var out []store.Message
		for _, m := range fixture {
			if req.Window.Contains(m.OccurredAt) {
				out = append(out, m)
			}
		}
		return out, nil
	}}
	p := testPipeline(t, st, 1000)

	res, err := p.Prepare(context.Background(), Request{
		ConversationID: "c1",
		Timeframe:      "on 2024-01-15",
		Now:            time.Date(2024, 1, 16, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RequestID)
	require.Equal(t, "on 2024-01-15", res.RangeLabel)
	require.Equal(t, 3, res.OriginalCount)
	require.Equal(t, 3, res.KeptCount)
	require.True(t, res.Decision.Approved)
	require.Equal(t, sampler.CountOK, res.Advisory)
}

func TestPrepare_LastNFlow(t *testing.T) {
	st := &mockStore{RetrieveFunc: func(_ context.Context, req store.RetrievalRequest) ([]store.Message, error) {
		require.Equal(t, 75, req.LastN)
		require.Nil(t, req.Window)
		return conversationFixture(10), nil
	}}
	p := testPipeline(t, st, 1000)

	res, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 75})
	require.NoError(t, err)
	require.Equal(t, "last 75 messages", res.RangeLabel)
	require.Equal(t, 10, res.KeptCount)
}

func TestPrepare_UnrecognizedTimeframeSurfacesVerbatim(t *testing.T) {
	p := testPipeline(t, &mockStore{}, 1000)
	_, err := p.Prepare(context.Background(), Request{ConversationID: "c1", Timeframe: "whenever"})
	require.ErrorIs(t, err, timeframe.ErrUnrecognized)
}

func TestPrepare_SamplesAboveHardLimit(t *testing.T) {
	st := &mockStore{RetrieveFunc: func(context.Context, store.RetrievalRequest) ([]store.Message, error) {
		return conversationFixture(1200), nil
	}}
	p := testPipeline(t, st, 1e9)

	res, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 2000})
	require.NoError(t, err)
	require.Equal(t, 1200, res.OriginalCount)
	require.Equal(t, 1000, res.KeptCount)
	require.Equal(t, sampler.CountRequireSampling, res.Advisory)
}

// A denied preparation carries the decision; no ledger state has changed,
// so abandoning the request needs no cleanup.
func TestPrepare_BudgetDenied(t *testing.T) {
	st := &mockStore{RetrieveFunc: func(context.Context, store.RetrievalRequest) ([]store.Message, error) {
		return conversationFixture(10), nil
	}}
	// Limit far below the estimate for any non-empty set.
	p := testPipeline(t, st, 0.0001)

	res, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.False(t, res.Decision.Approved)
	require.NotEmpty(t, res.Decision.Reason)

	// Preparing again gives the same denial: nothing accumulated.
	res2, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.False(t, res2.Decision.Approved)
}

func TestPrepare_StoreTimeoutAfterRetry(t *testing.T) {
	attempts := 0
	st := &mockStore{RetrieveFunc: func(ctx context.Context, _ store.RetrievalRequest) ([]store.Message, error) {
		attempts++
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := testPipeline(t, st, 1000)

	_, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 10})
	require.ErrorIs(t, err, ErrStoreTimeout)
	require.Equal(t, 2, attempts)
}

func TestPrepare_RetrySucceeds(t *testing.T) {
	attempts := 0
	st := &mockStore{RetrieveFunc: func(ctx context.Context, _ store.RetrievalRequest) ([]store.Message, error) {
		attempts++
		if attempts == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return conversationFixture(2), nil
	}}
	p := testPipeline(t, st, 1000)

	res, err := p.Prepare(context.Background(), Request{ConversationID: "c1", LastN: 10})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 2, res.KeptCount)
}

func TestCommit_ReportsCrossing(t *testing.T) {
	p := testPipeline(t, &mockStore{}, 10)
	require.Equal(t, budget.Threshold50, p.Commit(5, 0).Crossed)
	require.Equal(t, budget.ThresholdNone, p.Commit(1, 0).Crossed)
}

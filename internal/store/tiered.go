package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/comigor/recap/internal/logger"
)

// Tiered routes every operation to one tier. The durable tier wins when it
// was reachable at startup; a durable write failure degrades that single
// call to the volatile tier and reports ErrDegradedStorage exactly once.
// Reads are never mixed across tiers in one response.
type Tiered struct {
	durable  Store
	volatile *Volatile
	noticed  atomic.Bool
}

// NewTiered wires the selection wrapper. durable may be nil when no durable
// tier is configured; volatile is always required.
func NewTiered(durable Store, volatile *Volatile) *Tiered {
	return &Tiered{durable: durable, volatile: volatile}
}

// Append writes to the selected tier. When the durable write fails the
// message is kept in the volatile tier instead; the first such degradation
// returns ErrDegradedStorage so the caller can surface one notice, later
// ones return nil.
func (t *Tiered) Append(ctx context.Context, msg Message) error {
	if t.durable == nil {
		return t.volatile.Append(ctx, msg)
	}
	if err := t.durable.Append(ctx, msg); err != nil {
		logger.L.Warn("durable append failed, degrading to volatile tier", "conversation", msg.ConversationID, "error", err)
		if verr := t.volatile.Append(ctx, msg); verr != nil {
			return verr
		}
		if t.noticed.CompareAndSwap(false, true) {
			return ErrDegradedStorage
		}
	}
	return nil
}

// Retrieve reads from the selected tier only.
func (t *Tiered) Retrieve(ctx context.Context, req RetrievalRequest) ([]Message, error) {
	if t.durable != nil {
		return t.durable.Retrieve(ctx, req)
	}
	return t.volatile.Retrieve(ctx, req)
}

// Purge sweeps the selected tier.
func (t *Tiered) Purge(ctx context.Context, conversationID string, olderThan time.Time) (int64, error) {
	if t.durable != nil {
		return t.durable.Purge(ctx, conversationID, olderThan)
	}
	return t.volatile.Purge(ctx, conversationID, olderThan)
}

// Durable reports whether the durable tier is active.
func (t *Tiered) Durable() bool {
	return t.durable != nil
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Volatile is the in-memory tier: a bounded per-conversation buffer with a
// fixed capacity and a maximum message age. Contents are lost on restart.
type Volatile struct {
	capacity int
	maxAge   time.Duration

	mu    sync.Mutex
	convs map[string][]Message
}

// NewVolatile creates the in-memory tier. capacity must be positive; maxAge
// of zero disables the age cap.
func NewVolatile(capacity int, maxAge time.Duration) *Volatile {
	if capacity <= 0 {
		capacity = 100
	}
	return &Volatile{
		capacity: capacity,
		maxAge:   maxAge,
		convs:    make(map[string][]Message),
	}
}

// Append inserts the message, evicting the oldest entry once the
// conversation's buffer exceeds capacity. Duplicate identity pairs are
// silently accepted.
func (v *Volatile) Append(_ context.Context, msg Message) error {
	msg = msg.normalized()

	v.mu.Lock()
	defer v.mu.Unlock()

	buf := v.expireLocked(msg.ConversationID, time.Now())
	for _, existing := range buf {
		if existing.SequenceID == msg.SequenceID {
			return nil
		}
	}

	// Insert keeping chronological order so eviction always removes the
	// oldest message.
	i := sort.Search(len(buf), func(i int) bool { return msg.before(buf[i]) })
	buf = append(buf, Message{})
	copy(buf[i+1:], buf[i:])
	buf[i] = msg

	if len(buf) > v.capacity {
		buf = buf[len(buf)-v.capacity:]
	}
	v.convs[msg.ConversationID] = buf
	return nil
}

// Retrieve returns the selected messages in chronological order.
func (v *Volatile) Retrieve(_ context.Context, req RetrievalRequest) ([]Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	buf := v.expireLocked(req.ConversationID, time.Now())
	var out []Message
	if req.Window != nil {
		for _, m := range buf {
			if req.Window.Contains(m.OccurredAt) {
				out = append(out, m)
			}
		}
		return out, nil
	}
	if req.LastN < len(buf) {
		buf = buf[len(buf)-req.LastN:]
	}
	out = append(out, buf...)
	return out, nil
}

// Purge removes the conversation's messages older than olderThan.
func (v *Volatile) Purge(_ context.Context, conversationID string, olderThan time.Time) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	buf := v.convs[conversationID]
	kept := buf[:0]
	var removed int64
	for _, m := range buf {
		if m.OccurredAt.Before(olderThan.UTC()) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		delete(v.convs, conversationID)
	} else {
		v.convs[conversationID] = kept
	}
	return removed, nil
}

// expireLocked drops entries older than the age cap. Caller holds v.mu.
func (v *Volatile) expireLocked(conversationID string, now time.Time) []Message {
	buf := v.convs[conversationID]
	if v.maxAge <= 0 || len(buf) == 0 {
		return buf
	}
	cutoff := now.UTC().Add(-v.maxAge)
	i := 0
	for i < len(buf) && buf[i].OccurredAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		buf = buf[i:]
		if len(buf) == 0 {
			delete(v.convs, conversationID)
		} else {
			v.convs[conversationID] = buf
		}
	}
	return buf
}

// Package pipeline orchestrates one summarize request: resolve the
// timeframe, retrieve the message set, sample it down to the configured
// bound, estimate the cost and consult the budget ledger. The expensive
// external call happens only after an approved preparation; its actual
// token counts come back through Commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/recap/internal/budget"
	"github.com/comigor/recap/internal/logger"
	"github.com/comigor/recap/internal/sampler"
	"github.com/comigor/recap/internal/store"
	"github.com/comigor/recap/internal/timeframe"
)

// ErrStoreTimeout reports that retrieval exhausted its timeout budget, after
// one retry. Retryable by the caller.
var ErrStoreTimeout = errors.New("message store timed out")

// outputReserve is the worst-case output token count assumed when estimating
// a request's cost before the call is made.
const outputReserve = 500

// Request is one parsed summarize command from the transport adapter.
// Timeframe and LastN are mutually exclusive; Now is the reference time for
// timeframe resolution (zero means the wall clock).
type Request struct {
	ConversationID string
	Timeframe      string
	LastN          int
	Now            time.Time
}

// Result is everything the caller needs to run the external summarization
// and render the answer. When Decision.Approved is false the request is
// terminal and Messages must not be sent anywhere.
type Result struct {
	RequestID      string
	Messages       []store.Message
	OriginalCount  int
	KeptCount      int
	RangeLabel     string
	Advisory       sampler.Advisory
	EstimatedCost  float64
	Decision       budget.Decision
}

// Pipeline wires the four core components. All dependencies are injected;
// the ledger in particular is a single shared instance, never an ambient
// global.
type Pipeline struct {
	store  store.Store
	ledger *budget.Ledger
	limits sampler.Limits

	retrieveTimeout time.Duration
	retryBackoff    time.Duration
}

// New builds a pipeline. retrieveTimeout bounds each retrieval attempt;
// retryBackoff is the pause before the single retry.
func New(st store.Store, ledger *budget.Ledger, limits sampler.Limits, retrieveTimeout, retryBackoff time.Duration) *Pipeline {
	if retrieveTimeout <= 0 {
		retrieveTimeout = 5 * time.Second
	}
	return &Pipeline{
		store:           st,
		ledger:          ledger,
		limits:          limits,
		retrieveTimeout: retrieveTimeout,
		retryBackoff:    retryBackoff,
	}
}

// Prepare runs the request up to (and including) the budget decision. No
// ledger state has been mutated when it returns, so an abandoned request
// needs no cleanup.
func (p *Pipeline) Prepare(ctx context.Context, req Request) (Result, error) {
	requestsTotal.Inc()
	res := Result{RequestID: uuid.NewString()}
	log := logger.With("request_id", res.RequestID, "conversation", req.ConversationID)

	retrieval := store.RetrievalRequest{ConversationID: req.ConversationID, LastN: req.LastN}
	if req.Timeframe != "" {
		now := req.Now
		if now.IsZero() {
			now = time.Now()
		}
		window, err := timeframe.Resolve(req.Timeframe, now)
		if err != nil {
			return res, err
		}
		retrieval.LastN = 0
		retrieval.Window = &window
		res.RangeLabel = window.Label
	} else {
		res.RangeLabel = fmt.Sprintf("last %d messages", req.LastN)
	}

	msgs, err := p.retrieve(ctx, retrieval)
	if err != nil {
		return res, err
	}
	res.OriginalCount = len(msgs)

	advisory, bound := p.limits.Check(len(msgs))
	res.Advisory = advisory
	sampled := sampler.Sample(msgs, bound)
	res.Messages = sampled.Kept
	res.KeptCount = sampled.KeptCount
	if sampled.Sampled() {
		sampledTotal.Inc()
		log.Info("sampled message set", "original", sampled.OriginalCount, "kept", sampled.KeptCount)
	}

	res.EstimatedCost = p.ledger.Estimate(estimateInputUnits(sampled.Kept), outputReserve)
	res.Decision = p.ledger.Authorize(res.EstimatedCost)
	if !res.Decision.Approved {
		deniedTotal.Inc()
		log.Warn("request denied by budget ledger", "reason", res.Decision.Reason)
	} else {
		log.Debug("request approved", "estimated_cost", res.EstimatedCost, "messages", res.KeptCount)
	}
	return res, nil
}

// Commit records the actual token usage after the external call completed,
// returning any newly crossed budget threshold for the caller to surface.
func (p *Pipeline) Commit(actualInputUnits, actualOutputUnits int64) budget.CommitResult {
	return p.ledger.Commit(actualInputUnits, actualOutputUnits)
}

// retrieve enforces the timeout budget and retries once with backoff before
// giving up with ErrStoreTimeout.
func (p *Pipeline) retrieve(ctx context.Context, req store.RetrievalRequest) ([]store.Message, error) {
	msgs, err := p.attempt(ctx, req)
	if err == nil || !errors.Is(err, ErrStoreTimeout) {
		return msgs, err
	}
	storeTimeoutsTotal.Inc()
	logger.L.Warn("store retrieval timed out, retrying once", "conversation", req.ConversationID)

	select {
	case <-time.After(p.retryBackoff):
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStoreTimeout, ctx.Err())
	}

	msgs, err = p.attempt(ctx, req)
	if errors.Is(err, ErrStoreTimeout) {
		storeTimeoutsTotal.Inc()
	}
	return msgs, err
}

func (p *Pipeline) attempt(ctx context.Context, req store.RetrievalRequest) ([]store.Message, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.retrieveTimeout)
	defer cancel()

	msgs, err := p.store.Retrieve(attemptCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrStoreTimeout, p.retrieveTimeout)
		}
		return nil, err
	}
	return msgs, nil
}

// estimateInputUnits approximates token usage of the prompt from the text
// volume, at roughly four bytes per token.
func estimateInputUnits(msgs []store.Message) int64 {
	var chars int64
	for _, m := range msgs {
		chars += int64(len(m.Text) + len(m.AuthorName) + 16)
	}
	return chars / 4
}

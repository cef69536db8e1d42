// Package budget tracks cumulative summarization spend per calendar month
// (UTC) and enforces a hard monthly ceiling. Threshold crossings move a
// small state machine forward; each level is reported exactly once per
// period.
package budget

import (
	"fmt"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/recap/internal/config"
	"github.com/comigor/recap/internal/logger"
)

// Decision is the outcome of an authorization check. Authorize never
// mutates the ledger and never fails; a denial carries the reason and the
// time left until the period resets.
type Decision struct {
	Approved       bool
	Reason         string
	Remaining      float64
	DaysUntilReset int
}

// CommitResult reports the cost of one committed request and any threshold
// newly crossed by it.
type CommitResult struct {
	Cost    float64
	Total   float64
	Crossed Threshold
}

// Status is a read-only view of the current period.
type Status struct {
	PeriodKey      string
	Spent          float64
	Limit          float64
	Remaining      float64
	InputUnits     int64
	OutputUnits    int64
	RequestCount   int64
	LastThreshold  Threshold
	DaysUntilReset int
}

// Ledger is the process-wide budget state. One mutex serializes Authorize
// and Commit so two concurrent requests cannot both pass a check only one
// of them fits under.
type Ledger struct {
	limit        float64
	inputRate    float64
	outputRate   float64
	snapshotPath string
	now          func() time.Time

	mu      sync.Mutex
	fsm     *stateless.StateMachine
	cur     Usage
	history []Usage
}

// Option tweaks ledger construction.
type Option func(*Ledger)

// WithClock overrides the time source, used by tests to pin the period.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger loads the snapshot (if any), rolls the period over when the
// month has changed since the snapshot was written, and positions the
// threshold machine to match the loaded spend.
func NewLedger(cfg config.BudgetConfig, opts ...Option) *Ledger {
	l := &Ledger{
		limit:        cfg.MonthlyLimit,
		inputRate:    cfg.InputRate,
		outputRate:   cfg.OutputRate,
		snapshotPath: cfg.SnapshotPath,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	snap := loadSnapshot(l.snapshotPath)
	l.cur = snap.Current
	l.history = snap.History
	if l.cur.PeriodKey == "" {
		l.cur.PeriodKey = periodKey(l.now())
	}
	l.rolloverLocked()

	// Startup is the reconciliation point: the machine is positioned from
	// persisted spend, without re-emitting crossing events.
	l.fsm = newFSM(stateFor(thresholdFor(l.cur.Spent, l.limit)))

	logger.L.Info("budget ledger initialized",
		"period", l.cur.PeriodKey, "spent", l.cur.Spent, "limit", l.limit)
	return l
}

// Estimate is the pure pricing function.
func (l *Ledger) Estimate(inputUnits, outputUnits int64) float64 {
	return float64(inputUnits)*l.inputRate + float64(outputUnits)*l.outputRate
}

// Authorize decides whether a request with the given estimated cost fits
// under the remaining budget. It performs no I/O and records nothing.
func (l *Ledger) Authorize(estimatedCost float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	days := daysUntilReset(l.now())
	remaining := l.limit - l.cur.Spent
	if l.cur.Spent+estimatedCost > l.limit {
		return Decision{
			Reason: fmt.Sprintf("monthly budget limit reached: spent %.4f of %.2f, resets in %d day(s)",
				l.cur.Spent, l.limit, days),
			Remaining:      remaining,
			DaysUntilReset: days,
		}
	}
	return Decision{Approved: true, Remaining: remaining, DaysUntilReset: days}
}

// Commit records one completed request with its actual token counts. It is
// the only mutator; the caller is trusted to call it once per operation.
// The snapshot is rewritten best-effort: on write failure the in-memory
// state stays authoritative.
func (l *Ledger) Commit(inputUnits, outputUnits int64) CommitResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	cost := l.Estimate(inputUnits, outputUnits)
	l.cur.Spent += cost
	l.cur.InputUnits += inputUnits
	l.cur.OutputUnits += outputUnits
	l.cur.RequestCount++

	res := CommitResult{Cost: cost, Total: l.cur.Spent}
	prev := l.thresholdLocked()
	next := thresholdFor(l.cur.Spent, l.limit)
	if next > prev {
		if err := l.fsm.Fire(triggerFor(next)); err != nil {
			logger.L.Error("budget state transition rejected", "from", prev, "to", next, "error", err)
		} else {
			res.Crossed = next
		}
	}

	l.saveLocked()
	logger.L.Info("tracked request",
		"input_units", inputUnits, "output_units", outputUnits,
		"cost", cost, "total", l.cur.Spent, "period", l.cur.PeriodKey)
	return res
}

// Reset zeroes the current period on administrator request, archiving the
// usage so far. All threshold warnings re-arm.
func (l *Ledger) Reset() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.cur
	l.archiveLocked(previous)
	l.cur = Usage{PeriodKey: periodKey(l.now())}
	if err := l.fsm.Fire(TriggerReset); err != nil {
		logger.L.Error("budget reset transition rejected", "error", err)
	}
	l.saveLocked()
	logger.L.Warn("budget usage manually reset", "previous_spent", previous.Spent)
	return previous
}

// Usage returns a read-only view of the current period.
func (l *Ledger) Usage() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	return Status{
		PeriodKey:      l.cur.PeriodKey,
		Spent:          l.cur.Spent,
		Limit:          l.limit,
		Remaining:      l.limit - l.cur.Spent,
		InputUnits:     l.cur.InputUnits,
		OutputUnits:    l.cur.OutputUnits,
		RequestCount:   l.cur.RequestCount,
		LastThreshold:  l.thresholdLocked(),
		DaysUntilReset: daysUntilReset(l.now()),
	}
}

// rolloverLocked starts a fresh period when the UTC month has changed,
// archiving the finished one. Caller holds l.mu (or is still constructing).
func (l *Ledger) rolloverLocked() {
	key := periodKey(l.now())
	if l.cur.PeriodKey == key {
		return
	}
	logger.L.Info("budget period rollover", "from", l.cur.PeriodKey, "to", key)
	l.archiveLocked(l.cur)
	l.cur = Usage{PeriodKey: key}
	if l.fsm != nil {
		if err := l.fsm.Fire(TriggerReset); err != nil {
			logger.L.Error("budget rollover transition rejected", "error", err)
		}
	}
	l.saveLocked()
}

func (l *Ledger) archiveLocked(u Usage) {
	if u.PeriodKey == "" {
		return
	}
	l.history = append(l.history, u)
	if len(l.history) > maxHistory {
		l.history = l.history[len(l.history)-maxHistory:]
	}
}

func (l *Ledger) saveLocked() {
	if l.snapshotPath == "" {
		return
	}
	if err := saveSnapshot(l.snapshotPath, snapshotFile{Current: l.cur, History: l.history}); err != nil {
		logger.L.Error("budget snapshot not persisted, in-memory state remains authoritative", "error", err)
	}
}

func (l *Ledger) thresholdLocked() Threshold {
	switch l.fsm.MustState() {
	case StateWarning50:
		return Threshold50
	case StateWarning75:
		return Threshold75
	case StateWarning90:
		return Threshold90
	case StateExhausted:
		return ThresholdExhausted
	default:
		return ThresholdNone
	}
}

func periodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// daysUntilReset counts days until the first of the next month, never less
// than one.
func daysUntilReset(now time.Time) int {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	days := int(next.Sub(now).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

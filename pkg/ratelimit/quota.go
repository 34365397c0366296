package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Period is the granularity of a quota budget.
type Period int

const (
	PeriodDaily Period = iota
	PeriodMonthly
)

func (p Period) String() string {
	switch p {
	case PeriodDaily:
		return "daily"
	case PeriodMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// ParsePeriod converts a configuration string into a Period.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "daily", "day", "":
		return PeriodDaily, nil
	case "monthly", "month":
		return PeriodMonthly, nil
	default:
		return PeriodDaily, fmt.Errorf("unknown quota period %q", s)
	}
}

// QuotaStatus is a point-in-time snapshot of a tracker.
type QuotaStatus struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	ResetsAt  time.Time `json:"resets_at"`
}

// QuotaTracker counts requests against a coarse period budget (daily or
// monthly). The check-then-reserve sequence in TryReserve is atomic under
// the tracker's mutex, so two concurrent callers can never both spend the
// last remaining unit.
type QuotaTracker struct {
	mu          sync.Mutex
	clock       Clock
	limit       int // 0 = unlimited
	period      Period
	used        int
	periodStart time.Time
}

// QuotaOption customizes a QuotaTracker.
type QuotaOption func(*QuotaTracker)

// WithQuotaClock replaces the wall clock, for tests.
func WithQuotaClock(c Clock) QuotaOption {
	return func(q *QuotaTracker) {
		q.clock = c
	}
}

// NewQuotaTracker builds a tracker with the given period limit.
// A zero limit means unlimited.
func NewQuotaTracker(limit int, period Period, opts ...QuotaOption) *QuotaTracker {
	q := &QuotaTracker{
		clock:  time.Now,
		limit:  limit,
		period: period,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.periodStart = periodStart(q.clock(), period)
	return q
}

// TryReserve atomically checks remaining budget and spends one unit.
// Returns false when the period budget is exhausted. Units spent before a
// caller cancels are never rolled back; a dispatched upstream call counts
// even if its response is discarded.
func (q *QuotaTracker) TryReserve() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.limit > 0 && q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// Remaining returns the units left in the current period. Unlimited trackers
// report a negative value; use Status for structured output.
func (q *QuotaTracker) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.limit == 0 {
		return -1
	}
	return q.limit - q.used
}

// Exhausted reports whether the budget for the current period is spent.
func (q *QuotaTracker) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	return q.limit > 0 && q.used >= q.limit
}

// Status returns a snapshot of the current period.
func (q *QuotaTracker) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	s := QuotaStatus{
		Limit:    q.limit,
		Used:     q.used,
		ResetsAt: periodEnd(q.periodStart, q.period),
	}
	if q.limit == 0 {
		s.Unlimited = true
	} else {
		s.Remaining = q.limit - q.used
	}
	return s
}

// rollover starts a fresh period when the boundary has passed.
// Caller holds the lock.
func (q *QuotaTracker) rollover() {
	now := q.clock()
	if !now.Before(periodEnd(q.periodStart, q.period)) {
		q.used = 0
		q.periodStart = periodStart(now, q.period)
	}
}

func periodStart(now time.Time, p Period) time.Time {
	switch p {
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}

func periodEnd(start time.Time, p Period) time.Time {
	switch p {
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

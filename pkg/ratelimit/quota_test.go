package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketflow/marketflow/pkg/domain"
)

func TestQuotaTrackerReserve(t *testing.T) {
	clock := newFakeClock()
	q := NewQuotaTracker(2, PeriodDaily, WithQuotaClock(clock.Now))

	assert.Equal(t, 2, q.Remaining())
	require.True(t, q.TryReserve())
	require.True(t, q.TryReserve())
	assert.False(t, q.TryReserve())
	assert.True(t, q.Exhausted())
	assert.Zero(t, q.Remaining())
}

func TestQuotaTrackerUnlimited(t *testing.T) {
	q := NewQuotaTracker(0, PeriodDaily)
	for i := 0; i < 100; i++ {
		require.True(t, q.TryReserve())
	}
	assert.Equal(t, -1, q.Remaining())
	assert.False(t, q.Exhausted())
	assert.True(t, q.Status().Unlimited)
}

func TestQuotaTrackerDailyRollover(t *testing.T) {
	clock := newFakeClock()
	q := NewQuotaTracker(1, PeriodDaily, WithQuotaClock(clock.Now))

	require.True(t, q.TryReserve())
	assert.True(t, q.Exhausted())

	// Crossing midnight resets the budget.
	clock.Advance(24 * time.Hour)
	assert.False(t, q.Exhausted())
	assert.True(t, q.TryReserve())
}

func TestQuotaTrackerMonthlyRollover(t *testing.T) {
	clock := newFakeClock()
	q := NewQuotaTracker(1, PeriodMonthly, WithQuotaClock(clock.Now))

	require.True(t, q.TryReserve())
	clock.Advance(20 * 24 * time.Hour)
	assert.True(t, q.Exhausted(), "still inside the month")

	clock.Advance(15 * 24 * time.Hour)
	assert.False(t, q.Exhausted())
}

func TestQuotaTrackerStatus(t *testing.T) {
	clock := newFakeClock()
	q := NewQuotaTracker(10, PeriodDaily, WithQuotaClock(clock.Now))
	require.True(t, q.TryReserve())

	s := q.Status()
	assert.Equal(t, 10, s.Limit)
	assert.Equal(t, 1, s.Used)
	assert.Equal(t, 9, s.Remaining)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), s.ResetsAt)
}

// No double-spend: N concurrent reservations against N-1 remaining units
// yield exactly N-1 successes.
func TestQuotaTrackerNoDoubleSpend(t *testing.T) {
	const n = 32
	q := NewQuotaTracker(n-1, PeriodDaily)

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.TryReserve() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n-1), granted.Load())
	assert.True(t, q.Exhausted())
}

func TestBudgetAcquire(t *testing.T) {
	clock := newFakeClock()
	b := NewBudget(BudgetSpec{
		Window:      time.Minute,
		MaxCalls:    2,
		QuotaLimit:  3,
		QuotaPeriod: PeriodDaily,
	}, clock.Now)

	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())

	// Window full before quota runs out.
	err := b.Acquire()
	require.ErrorIs(t, err, domain.ErrRateLimited)
	// A refused call spends no quota.
	assert.Equal(t, 1, b.QuotaRemaining())

	clock.Advance(time.Minute + time.Second)
	require.NoError(t, b.Acquire())
	assert.Zero(t, b.QuotaRemaining())

	clock.Advance(time.Minute + time.Second)
	require.ErrorIs(t, b.Acquire(), domain.ErrQuotaExceeded)
}

func TestRegistryPartitionsBudgets(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(WithRegistryClock(clock.Now))
	spec := BudgetSpec{Window: time.Minute, MaxCalls: 1, QuotaLimit: 1, QuotaPeriod: PeriodDaily}

	a := reg.Budget("sec-edgar", spec)
	b := reg.Budget("fred", spec)
	require.NotSame(t, a, b)

	// Same ID returns the same budget; the spec is not replaced.
	again := reg.Budget("sec-edgar", BudgetSpec{Window: time.Second, MaxCalls: 100})
	assert.Same(t, a, again)

	// Spending one collector's budget leaves the other untouched.
	require.NoError(t, a.Acquire())
	assert.True(t, b.CanMakeCall())
	assert.Equal(t, 1, b.QuotaRemaining())

	_, ok := reg.Lookup("polygon")
	assert.False(t, ok)
}

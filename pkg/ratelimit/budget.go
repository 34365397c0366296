package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/marketflow/marketflow/pkg/domain"
)

// BudgetSpec describes how to build one collector's admission state.
type BudgetSpec struct {
	// Window length and call cap for the sliding window.
	Window   time.Duration
	MaxCalls int

	// QuotaLimit per period; zero means unlimited.
	QuotaLimit  int
	QuotaPeriod Period
}

// Budget couples a collector's sliding window with its period quota.
// Acquire is the single admission point used by CollectData.
type Budget struct {
	window *SlidingWindow
	quota  *QuotaTracker
}

// NewBudget builds a budget from a spec.
func NewBudget(spec BudgetSpec, clock Clock) *Budget {
	if clock == nil {
		clock = time.Now
	}
	return &Budget{
		window: NewSlidingWindow(spec.Window, spec.MaxCalls, WithClock(clock)),
		quota:  NewQuotaTracker(spec.QuotaLimit, spec.QuotaPeriod, WithQuotaClock(clock)),
	}
}

// Acquire reserves one rate-limit unit and one quota unit, or reports why it
// cannot. The window is checked first; a call refused by the window spends
// no quota. Reserved units are not returned on caller cancellation.
func (b *Budget) Acquire() error {
	if !b.window.TryRecord() {
		return fmt.Errorf("%w: retry in %s", domain.ErrRateLimited, b.window.TimeUntilNextCall())
	}
	if !b.quota.TryReserve() {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// CanMakeCall reports whether the window admits a call right now.
func (b *Budget) CanMakeCall() bool {
	return b.window.CanMakeCall()
}

// TimeUntilNextCall is the window's retry hint.
func (b *Budget) TimeUntilNextCall() time.Duration {
	return b.window.TimeUntilNextCall()
}

// QuotaRemaining returns remaining period units (-1 when unlimited).
func (b *Budget) QuotaRemaining() int {
	return b.quota.Remaining()
}

// QuotaExhausted reports whether the period budget is spent.
func (b *Budget) QuotaExhausted() bool {
	return b.quota.Exhausted()
}

// QuotaStatus returns the structured quota snapshot.
func (b *Budget) QuotaStatus() QuotaStatus {
	return b.quota.Status()
}

// Registry hands out per-collector budgets, created lazily on first use and
// kept for the process lifetime. Budgets are partitioned by collector ID;
// one collector's limiter never blocks another.
type Registry struct {
	mu      sync.Mutex
	clock   Clock
	budgets map[string]*Budget
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock replaces the wall clock used by every budget the
// registry creates, for tests.
func WithRegistryClock(c Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// NewRegistry builds an empty budget registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clock:   time.Now,
		budgets: make(map[string]*Budget),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Budget returns the collector's budget, creating it from spec on first use.
// The spec of an existing budget is never replaced.
func (r *Registry) Budget(id string, spec BudgetSpec) *Budget {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.budgets[id]; ok {
		return b
	}
	b := NewBudget(spec, r.clock)
	r.budgets[id] = b
	return b
}

// Lookup returns an existing budget without creating one.
func (r *Registry) Lookup(id string) (*Budget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.budgets[id]
	return b, ok
}

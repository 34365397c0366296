package collectors

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketflow/marketflow/pkg/domain"
)

// ExecutionResult is one collector's outcome from an Execute run.
type ExecutionResult struct {
	CollectorID string
	Result      *domain.CollectionResult
	Err         error
	Attempts    int
}

// Executor applies the advisory execution policy on the caller's side of the
// router boundary: planned collectors run concurrently (ranking order is a
// preference, not an execution-order requirement), a rate-limited collector
// is retried after its limiter's hint, and quota, authentication, and
// upstream failures are surfaced without blacklisting anything.
type Executor struct {
	logger      *zap.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts caps per-collector attempts (default 3).
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithSleep replaces the retry delay, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// NewExecutor builds an executor.
func NewExecutor(logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:      logger,
		maxAttempts: 3,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every planned collector concurrently and returns results in
// plan order.
func (e *Executor) Execute(ctx context.Context, plan *RoutePlan, filters domain.Filters) []ExecutionResult {
	results := make([]ExecutionResult, len(plan.Collectors))

	var wg sync.WaitGroup
	for i, pc := range plan.Collectors {
		wg.Add(1)
		go func(i int, pc PlannedCollector) {
			defer wg.Done()
			results[i] = e.runOne(ctx, pc, filters)
		}(i, pc)
	}
	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, pc PlannedCollector, filters domain.Filters) ExecutionResult {
	res := ExecutionResult{CollectorID: pc.Collector.Name()}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res.Attempts = attempt
		res.Result, res.Err = pc.Collector.CollectData(ctx, filters)
		if res.Err == nil {
			return res
		}
		if !errors.Is(res.Err, domain.ErrRateLimited) || attempt == e.maxAttempts {
			e.logger.Warn("collection failed",
				zap.String("collector", res.CollectorID),
				zap.Int("attempt", attempt),
				zap.Error(res.Err))
			return res
		}

		delay := pc.RetryAfter()
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		e.logger.Debug("rate limited, retrying after hint",
			zap.String("collector", res.CollectorID),
			zap.Duration("delay", delay))
		if err := e.sleep(ctx, delay); err != nil {
			res.Err = err
			return res
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

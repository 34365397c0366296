// Package ratelimit holds per-collector admission state: a fine-grained
// sliding-window call counter and a coarse period quota. State is partitioned
// by collector ID; nothing in this package is shared across collectors.
package ratelimit

import (
	"sync"
	"time"
)

// Clock supplies the current time. Injectable so window and quota behavior
// is testable without sleeping.
type Clock func() time.Time

// SlidingWindow counts calls inside a trailing window and refuses admission
// once the tier's cap is reached. Timestamps are kept in a monotonically
// trimmed queue, so RecordCall is amortized O(1).
type SlidingWindow struct {
	mu       sync.Mutex
	clock    Clock
	window   time.Duration
	maxCalls int
	calls    []time.Time
}

// WindowOption customizes a SlidingWindow.
type WindowOption func(*SlidingWindow)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) WindowOption {
	return func(w *SlidingWindow) {
		w.clock = c
	}
}

// NewSlidingWindow builds a limiter admitting at most maxCalls per window.
func NewSlidingWindow(window time.Duration, maxCalls int, opts ...WindowOption) *SlidingWindow {
	w := &SlidingWindow{
		clock:    time.Now,
		window:   window,
		maxCalls: maxCalls,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CanMakeCall reports whether one more call fits in the current window.
func (w *SlidingWindow) CanMakeCall() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trim(w.clock())
	return len(w.calls) < w.maxCalls
}

// RecordCall stamps one call. It does not check admission; pair it with
// CanMakeCall, or use TryRecord for the atomic form.
func (w *SlidingWindow) RecordCall() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	w.trim(now)
	w.calls = append(w.calls, now)
}

// TryRecord atomically checks the window and records the call when it fits.
func (w *SlidingWindow) TryRecord() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	w.trim(now)
	if len(w.calls) >= w.maxCalls {
		return false
	}
	w.calls = append(w.calls, now)
	return true
}

// TimeUntilNextCall returns how long until the oldest in-window call expires.
// Zero when a call can be made immediately; lets callers schedule a retry
// without polling.
func (w *SlidingWindow) TimeUntilNextCall() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock()
	w.trim(now)
	if len(w.calls) < w.maxCalls {
		return 0
	}
	return w.calls[0].Add(w.window).Sub(now)
}

// InWindow returns the number of calls currently inside the window.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trim(w.clock())
	return len(w.calls)
}

// trim drops timestamps older than the window. Caller holds the lock.
func (w *SlidingWindow) trim(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for limiter tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestSlidingWindowAdmission(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(60*time.Second, 3, WithClock(clock.Now))

	// Empty window admits.
	assert.True(t, w.CanMakeCall())
	assert.Zero(t, w.TimeUntilNextCall())

	// Fill to exactly the cap.
	for i := 0; i < 3; i++ {
		require.True(t, w.TryRecord(), "call %d should be admitted", i)
	}
	assert.False(t, w.CanMakeCall())
	assert.False(t, w.TryRecord())
	assert.Equal(t, 3, w.InWindow())
}

func TestSlidingWindowExpiry(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(60*time.Second, 2, WithClock(clock.Now))

	require.True(t, w.TryRecord())
	clock.Advance(20 * time.Second)
	require.True(t, w.TryRecord())
	require.False(t, w.CanMakeCall())

	// Oldest call expires 60s after it was recorded: 40s from now.
	assert.Equal(t, 40*time.Second, w.TimeUntilNextCall())

	clock.Advance(40 * time.Second)
	assert.True(t, w.CanMakeCall())
	assert.Equal(t, 1, w.InWindow())

	// Whole window elapses; everything is pruned.
	clock.Advance(61 * time.Second)
	assert.Zero(t, w.InWindow())
	assert.True(t, w.CanMakeCall())
}

func TestSlidingWindowRecordDoesNotCheck(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(time.Second, 1, WithClock(clock.Now))

	// RecordCall is unconditional; the limiter still reports over-cap.
	w.RecordCall()
	w.RecordCall()
	assert.Equal(t, 2, w.InWindow())
	assert.False(t, w.CanMakeCall())
}

func TestSlidingWindowConcurrentTryRecord(t *testing.T) {
	clock := newFakeClock()
	const maxCalls = 16
	w := NewSlidingWindow(time.Minute, maxCalls, WithClock(clock.Now))

	var wg sync.WaitGroup
	var admitted sync.Map
	for i := 0; i < maxCalls*2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if w.TryRecord() {
				admitted.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	admitted.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, maxCalls, count)
}

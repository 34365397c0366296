package collectors

import (
	"sync/atomic"
	"time"
)

// HealthSnapshot is a point-in-time view of one collector's call history,
// exposed through the router's observability query.
type HealthSnapshot struct {
	Healthy             bool          `json:"healthy"`
	RequestsServed      int64         `json:"requests_served"`
	ErrorCount          int64         `json:"error_count"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	Uptime              time.Duration `json:"uptime"`
}

// HealthReporter is implemented by collectors that track call health.
// Optional; the router includes snapshots where available.
type HealthReporter interface {
	HealthSnapshot() HealthSnapshot
}

// HealthTracker gives provider implementations atomic success/error counters.
// Embed it to satisfy HealthReporter.
type HealthTracker struct {
	startTime           time.Time
	requestsServed      atomic.Int64
	errorCount          atomic.Int64
	consecutiveFailures atomic.Int64
	lastSuccess         atomic.Value // time.Time
	lastError           atomic.Value // string
}

// NewHealthTracker starts tracking from now.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{startTime: time.Now()}
}

// RecordSuccess notes a completed upstream call.
func (h *HealthTracker) RecordSuccess() {
	h.requestsServed.Add(1)
	h.consecutiveFailures.Store(0)
	h.lastSuccess.Store(time.Now())
}

// RecordError notes a failed upstream call.
func (h *HealthTracker) RecordError(err error) {
	h.errorCount.Add(1)
	h.consecutiveFailures.Add(1)
	if err != nil {
		h.lastError.Store(err.Error())
	}
}

// Healthy reports false after three consecutive failures. Health never
// blocks routing; it is diagnostics only.
func (h *HealthTracker) Healthy() bool {
	return h.consecutiveFailures.Load() < 3
}

// HealthSnapshot implements HealthReporter.
func (h *HealthTracker) HealthSnapshot() HealthSnapshot {
	s := HealthSnapshot{
		Healthy:             h.Healthy(),
		RequestsServed:      h.requestsServed.Load(),
		ErrorCount:          h.errorCount.Load(),
		ConsecutiveFailures: h.consecutiveFailures.Load(),
		Uptime:              time.Since(h.startTime),
	}
	if t, ok := h.lastSuccess.Load().(time.Time); ok {
		s.LastSuccess = t
	}
	if e, ok := h.lastError.Load().(string); ok {
		s.LastError = e
	}
	return s
}

package domain

import "errors"

// Routing and collection error taxonomy. Callers match with errors.Is; the
// concrete wrapping carries upstream detail.
var (
	// ErrDuplicateCollector is a programmer error: two registrations with
	// the same capability ID. Fatal at startup.
	ErrDuplicateCollector = errors.New("collector already registered")

	// ErrCollectorNotFound is returned for lookups of unregistered IDs.
	ErrCollectorNotFound = errors.New("collector not registered")

	// ErrRateLimited means the sliding window is full. Transient; retry
	// after the limiter's hint.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrQuotaExceeded means the period budget is spent. Transient at a
	// coarser granularity; the next route naturally promotes a fallback.
	ErrQuotaExceeded = errors.New("quota exhausted")

	// ErrAuthenticationFailed means the collector is misconfigured
	// (bad or missing credentials). Surfaced, never blacklists.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUpstreamUnavailable covers network and 5xx failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse means the upstream replied with something the
	// collector could not decode.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

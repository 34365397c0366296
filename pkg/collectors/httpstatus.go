package collectors

import (
	"fmt"
	"net/http"

	"github.com/marketflow/marketflow/pkg/domain"
)

// ErrorFromStatus maps an upstream HTTP status to the collection error
// taxonomy. Nil for success statuses. Shared by every provider package so
// callers can rely on errors.Is regardless of quadrant.
func ErrorFromStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: upstream returned %d", domain.ErrAuthenticationFailed, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: upstream returned 429", domain.ErrRateLimited)
	case code == http.StatusPaymentRequired:
		return fmt.Errorf("%w: upstream returned 402", domain.ErrQuotaExceeded)
	case code >= 500:
		return fmt.Errorf("%w: upstream returned %d", domain.ErrUpstreamUnavailable, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", domain.ErrMalformedResponse, code)
	}
}

// Package collectors holds the routing core: the Collector contract, the
// capability registry, and the Router that turns a request into an ordered
// activation plan under rate-limit and quota budgets.
package collectors

import (
	"context"

	"github.com/marketflow/marketflow/pkg/domain"
)

// Collector is the contract every provider implements, regardless of
// quadrant. ShouldActivate and ActivationPriority are pure functions of the
// criteria and the collector's static capability; they never consult budget
// state and never fail. All mutation happens inside CollectData.
type Collector interface {
	// Name returns the collector's unique ID (matches Capability().ID).
	Name() string

	// Capability returns the static metadata describing this collector.
	Capability() domain.CollectorCapability

	// ShouldActivate reports whether this collector is relevant to the
	// request. Total and side-effect free.
	ShouldActivate(criteria domain.RequestCriteria) bool

	// ActivationPriority ranks this collector for the request in [0,100].
	// Zero iff ShouldActivate is false.
	ActivationPriority(criteria domain.RequestCriteria) int

	// CollectData performs the upstream call(s). Each call reserves one
	// rate-limit unit and one quota unit before touching the network.
	CollectData(ctx context.Context, filters domain.Filters) (*domain.CollectionResult, error)
}

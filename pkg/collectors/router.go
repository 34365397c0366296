package collectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketflow/marketflow/pkg/domain"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

// TieBreak selects the comparator applied between collectors with equal
// priority. Reliability-then-registration matches observed upstream
// behavior; registration-only is available for deployments that want strict
// insertion ordering.
type TieBreak int

const (
	TieBreakReliability TieBreak = iota
	TieBreakRegistration
)

// BudgetDefaults fill the gaps when a collector is registered without an
// explicit budget spec.
type BudgetDefaults struct {
	Window      time.Duration
	QuotaLimit  int
	QuotaPeriod ratelimit.Period
}

// SkipReason explains why a ranked collector was excluded by the budget
// filter. Skipped collectors are always reported, never silently dropped.
type SkipReason string

const (
	SkipQuotaExhausted SkipReason = "quota_exhausted"
	SkipRateLimited    SkipReason = "rate_limited"
)

// SkippedCollector is one budget-filter exclusion in a route plan.
type SkippedCollector struct {
	CollectorID string        `json:"collector_id"`
	Reason      SkipReason    `json:"reason"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
}

// ProtocolFallback records one in-place MCP-to-REST substitution.
type ProtocolFallback struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

// PlannedCollector is one activated collector in ranked order.
type PlannedCollector struct {
	Collector Collector
	Decision  domain.ActivationDecision

	budget *ratelimit.Budget
}

// RetryAfter is the rate-limit hint for scheduling a retry of this
// collector without polling.
func (pc PlannedCollector) RetryAfter() time.Duration {
	if pc.budget == nil {
		return 0
	}
	return pc.budget.TimeUntilNextCall()
}

// RoutePlan is the ordered outcome of RouteRequest. An empty Collectors
// slice is a valid outcome, not an error.
type RoutePlan struct {
	RequestID  string
	Collectors []PlannedCollector
	Skipped    []SkippedCollector
	Fallbacks  []ProtocolFallback
}

// CollectorIDs returns the activated IDs in ranked order.
func (p *RoutePlan) CollectorIDs() []string {
	ids := make([]string, len(p.Collectors))
	for i, pc := range p.Collectors {
		ids[i] = pc.Collector.Name()
	}
	return ids
}

// ValidationReport is the dry-run diagnostic for a request.
type ValidationReport struct {
	IsValid            bool     `json:"is_valid"`
	Warnings           []string `json:"warnings,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
	ExpectedCollectors []string `json:"expected_collectors,omitempty"`
}

// CollectorInfo is the read-only observability view of one collector.
type CollectorInfo struct {
	Capability domain.CollectorCapability `json:"capability"`
	Quota      ratelimit.QuotaStatus      `json:"quota"`
	CanCall    bool                       `json:"can_call"`
	Health     *HealthSnapshot            `json:"health,omitempty"`
}

// Router orchestrates collector selection. It is a long-lived shared
// component: RouteRequest and ValidateRequest are pure computations over the
// immutable registry plus reads of budget state, safe for unsynchronized
// concurrent use.
type Router struct {
	registry *Registry
	budgets  *ratelimit.Registry
	defaults BudgetDefaults
	tieBreak TieBreak
	logger   *zap.Logger

	tracer        trace.Tracer
	routedTotal   metric.Int64Counter
	skippedTotal  metric.Int64Counter
	fallbackTotal metric.Int64Counter
	routeDuration metric.Float64Histogram
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithTieBreak selects the equal-priority comparator.
func WithTieBreak(tb TieBreak) RouterOption {
	return func(r *Router) {
		r.tieBreak = tb
	}
}

// WithBudgetDefaults replaces the defaults applied by Register.
func WithBudgetDefaults(d BudgetDefaults) RouterOption {
	return func(r *Router) {
		r.defaults = d
	}
}

// NewRouter builds a router over a fresh registry.
func NewRouter(logger *zap.Logger, budgets *ratelimit.Registry, opts ...RouterOption) (*Router, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if budgets == nil {
		return nil, fmt.Errorf("budget registry cannot be nil")
	}

	r := &Router{
		registry: NewRegistry(),
		budgets:  budgets,
		defaults: BudgetDefaults{
			Window:      time.Minute,
			QuotaPeriod: ratelimit.PeriodDaily,
		},
		logger: logger,
		tracer: otel.Tracer("collectors.router"),
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter("collectors.router")
	var err error
	r.routedTotal, err = meter.Int64Counter("router_collectors_routed_total",
		metric.WithDescription("Collectors included in route plans"))
	if err != nil {
		return nil, fmt.Errorf("failed to create routed counter: %w", err)
	}
	r.skippedTotal, err = meter.Int64Counter("router_collectors_skipped_total",
		metric.WithDescription("Collectors excluded by the budget filter"))
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}
	r.fallbackTotal, err = meter.Int64Counter("router_protocol_fallbacks_total",
		metric.WithDescription("MCP to REST substitutions applied during ranking"))
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback counter: %w", err)
	}
	r.routeDuration, err = meter.Float64Histogram("router_route_duration_ms",
		metric.WithDescription("RouteRequest latency in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return r, nil
}

// Register adds a collector with a budget derived from its capability and
// the router defaults: the window cap is RateLimitPerSecond spread over the
// default window, the quota limit is the default period budget.
func (r *Router) Register(c Collector, capability domain.CollectorCapability) error {
	return r.RegisterWithBudget(c, capability, ratelimit.BudgetSpec{
		Window:      r.defaults.Window,
		MaxCalls:    int(math.Ceil(capability.RateLimitPerSecond * r.defaults.Window.Seconds())),
		QuotaLimit:  r.defaults.QuotaLimit,
		QuotaPeriod: r.defaults.QuotaPeriod,
	})
}

// RegisterWithBudget adds a collector with an explicit budget spec.
func (r *Router) RegisterWithBudget(c Collector, capability domain.CollectorCapability, spec ratelimit.BudgetSpec) error {
	if err := r.registry.Register(c, capability); err != nil {
		return err
	}
	r.budgets.Budget(capability.ID, spec)
	r.logger.Info("collector registered",
		zap.String("collector", capability.ID),
		zap.String("quadrant", capability.Quadrant.String()),
		zap.String("protocol", capability.ProtocolPreference.String()),
		zap.Int("reliability", capability.ReliabilityScore),
		zap.Int("registered", r.registry.Len()))
	return nil
}

// Budget exposes a collector's admission state to its implementation and to
// operational tooling.
func (r *Router) Budget(id string) (*ratelimit.Budget, error) {
	b, ok := r.budgets.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectorNotFound, id)
	}
	return b, nil
}

// RouteRequest selects and orders the collectors for a request:
// activation filter, stable rank, in-place protocol fallback, budget filter.
func (r *Router) RouteRequest(ctx context.Context, criteria domain.RequestCriteria) *RoutePlan {
	start := time.Now()
	_, span := r.tracer.Start(ctx, "router.route_request")
	defer span.End()

	criteria = criteria.Normalize()
	span.SetAttributes(
		attribute.String("request.id", criteria.RequestID),
		attribute.Int("request.symbols", len(criteria.Symbols)),
	)

	ranked := r.rank(criteria)
	plan := &RoutePlan{RequestID: criteria.RequestID}

	// Protocol fallback: an MCP-preferring collector whose quota is spent
	// yields its slot to a lower-ranked REST-capable collector serving an
	// overlapping use case. The substitution is an in-place swap so the
	// REST alternative inherits the ranking position. A swapped-down
	// collector is not reconsidered at its new position; one exhausted
	// collector yields exactly one fallback record.
	substituted := make(map[string]bool)
	for i := range ranked {
		cap := ranked[i].Capability
		if cap.ProtocolPreference != domain.ProtocolMCP || substituted[cap.ID] {
			continue
		}
		if !r.quotaExhausted(cap.ID) {
			continue
		}
		for j := i + 1; j < len(ranked); j++ {
			alt := ranked[j].Capability
			if alt.ProtocolPreference == domain.ProtocolMCP {
				continue
			}
			if !alt.OverlapsWith(cap) || r.quotaExhausted(alt.ID) {
				continue
			}
			ranked[i], ranked[j] = ranked[j], ranked[i]
			substituted[cap.ID] = true
			plan.Fallbacks = append(plan.Fallbacks, ProtocolFallback{FromID: cap.ID, ToID: alt.ID})
			r.fallbackTotal.Add(ctx, 1)
			r.logger.Debug("protocol fallback applied",
				zap.String("request_id", criteria.RequestID),
				zap.String("from", cap.ID),
				zap.String("to", alt.ID))
			break
		}
	}

	// Budget filter: exhausted quota or a full window excludes the
	// collector, with the reason surfaced in the plan.
	for _, e := range ranked {
		budget, ok := r.budgets.Lookup(e.Capability.ID)
		if ok && budget.QuotaExhausted() {
			plan.Skipped = append(plan.Skipped, SkippedCollector{
				CollectorID: e.Capability.ID,
				Reason:      SkipQuotaExhausted,
			})
			r.skippedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(SkipQuotaExhausted))))
			continue
		}
		if ok && !budget.CanMakeCall() {
			plan.Skipped = append(plan.Skipped, SkippedCollector{
				CollectorID: e.Capability.ID,
				Reason:      SkipRateLimited,
				RetryAfter:  budget.TimeUntilNextCall(),
			})
			r.skippedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(SkipRateLimited))))
			continue
		}
		plan.Collectors = append(plan.Collectors, PlannedCollector{
			Collector: e.Collector,
			Decision: domain.ActivationDecision{
				CollectorID: e.Capability.ID,
				Activate:    true,
				Priority:    e.priority,
				Reliability: e.Capability.ReliabilityScore,
			},
			budget: budget,
		})
	}

	r.routedTotal.Add(ctx, int64(len(plan.Collectors)))
	r.routeDuration.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	r.logger.Debug("request routed",
		zap.String("request_id", criteria.RequestID),
		zap.Strings("activated", plan.CollectorIDs()),
		zap.Int("skipped", len(plan.Skipped)))
	return plan
}

// ValidateRequest sanity-checks criteria and reports which collectors a
// real route would consider, using content eligibility only — no quota or
// network access.
func (r *Router) ValidateRequest(criteria domain.RequestCriteria) *ValidationReport {
	report := &ValidationReport{IsValid: true}
	criteria = criteria.Normalize()

	if criteria.IsEmpty() {
		report.IsValid = false
		report.Warnings = append(report.Warnings,
			"criteria carries no symbols, sector, or data types; nothing to route on")
		report.Recommendations = append(report.Recommendations,
			"provide at least one symbol or data type")
		return report
	}

	if len(criteria.Symbols) == 0 && len(criteria.DataTypes) == 0 {
		report.Warnings = append(report.Warnings,
			"sector-only criteria activates no per-company collectors")
		report.Recommendations = append(report.Recommendations,
			"add symbols or data types to reach per-company sources")
	}

	for _, dt := range criteria.DataTypes {
		if !knownUseCase(dt) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("unknown data type %q; no registered collector advertises it", dt))
		}
	}

	// Flag per-company collectors that would serve the data types but are
	// priced out by the symbol count.
	n := len(criteria.Symbols)
	for _, e := range r.registry.Snapshot() {
		max := e.Capability.MaxCompanies
		if max > 0 && n > max && (len(criteria.DataTypes) == 0 || e.Capability.ServesAny(criteria.DataTypes)) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d symbols exceeds max_companies=%d of collector %s", n, max, e.Capability.ID))
		}
	}

	ranked := r.rank(criteria)
	for _, e := range ranked {
		report.ExpectedCollectors = append(report.ExpectedCollectors, e.Capability.ID)
	}
	if len(ranked) == 0 {
		report.Warnings = append(report.Warnings, "no registered collector matches the criteria")
		if n > 0 {
			report.Recommendations = append(report.Recommendations,
				"reduce the symbol count or broaden the requested data types")
		}
	}
	return report
}

// CollectorInfo returns the read-only capability, budget, and health view
// for observability dashboards.
func (r *Router) CollectorInfo() []CollectorInfo {
	entries := r.registry.Snapshot()
	infos := make([]CollectorInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, r.infoFor(e))
	}
	return infos
}

// CollectorInfoByID returns the view for one collector, or
// domain.ErrCollectorNotFound.
func (r *Router) CollectorInfoByID(id string) (CollectorInfo, error) {
	e, err := r.registry.Get(id)
	if err != nil {
		return CollectorInfo{}, err
	}
	return r.infoFor(e), nil
}

func (r *Router) infoFor(e Entry) CollectorInfo {
	info := CollectorInfo{Capability: e.Capability, CanCall: true}
	if b, ok := r.budgets.Lookup(e.Capability.ID); ok {
		info.Quota = b.QuotaStatus()
		info.CanCall = b.CanMakeCall() && !b.QuotaExhausted()
	}
	if hr, ok := e.Collector.(HealthReporter); ok {
		snap := hr.HealthSnapshot()
		info.Health = &snap
	}
	return info
}

// rankedEntry carries a survivor of the activation filter through ranking.
type rankedEntry struct {
	Entry
	priority int
}

// rank runs the pure selection: activation filter plus stable sort by
// (priority desc, tie-break). Never touches budget state.
func (r *Router) rank(criteria domain.RequestCriteria) []rankedEntry {
	var survivors []rankedEntry
	for _, e := range r.registry.Snapshot() {
		if !e.Collector.ShouldActivate(criteria) {
			continue
		}
		prio := e.Collector.ActivationPriority(criteria)
		if prio < 0 {
			prio = 0
		} else if prio > 100 {
			prio = 100
		}
		survivors = append(survivors, rankedEntry{Entry: e, priority: prio})
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if r.tieBreak == TieBreakReliability &&
			a.Capability.ReliabilityScore != b.Capability.ReliabilityScore {
			return a.Capability.ReliabilityScore > b.Capability.ReliabilityScore
		}
		return a.Order < b.Order
	})
	return survivors
}

func (r *Router) quotaExhausted(id string) bool {
	b, ok := r.budgets.Lookup(id)
	return ok && b.QuotaExhausted()
}

func knownUseCase(uc domain.UseCase) bool {
	for _, known := range domain.KnownUseCases {
		if uc == known {
			return true
		}
	}
	return false
}

package collectors

import "github.com/marketflow/marketflow/pkg/domain"

// CapabilityGate implements the shared activation rules every provider
// variant starts from. Embed it and override where a quadrant deviates
// (government macro sources accept symbol-less requests, for example).
//
// Rules:
//   - empty criteria never activates;
//   - sector-only criteria (no symbols, no data types) never activates —
//     broad screens route elsewhere;
//   - when data types are requested, at least one must be served;
//   - per-company collectors (MaxCompanies > 0) require between 1 and
//     MaxCompanies symbols, inclusive.
type CapabilityGate struct {
	capability domain.CollectorCapability

	// requireSymbols forces symbol-bearing requests even when the
	// capability has no MaxCompanies bound.
	requireSymbols bool
}

// NewCapabilityGate builds a gate for the capability. Commercial per-company
// providers pass requireSymbols=true.
func NewCapabilityGate(capability domain.CollectorCapability, requireSymbols bool) CapabilityGate {
	return CapabilityGate{capability: capability, requireSymbols: requireSymbols}
}

// Capability returns the static metadata the gate was built with.
func (g CapabilityGate) Capability() domain.CollectorCapability {
	return g.capability
}

// ShouldActivate applies the shared activation rules.
func (g CapabilityGate) ShouldActivate(criteria domain.RequestCriteria) bool {
	c := criteria.Normalize()
	if c.IsEmpty() {
		return false
	}
	if len(c.Symbols) == 0 && len(c.DataTypes) == 0 {
		// Sector-only.
		return false
	}
	if len(c.DataTypes) > 0 && !g.capability.ServesAny(c.DataTypes) {
		return false
	}
	if g.requireSymbols || g.capability.MaxCompanies > 0 {
		n := len(c.Symbols)
		if n == 0 {
			return false
		}
		if g.capability.MaxCompanies > 0 && n > g.capability.MaxCompanies {
			return false
		}
	}
	return true
}

// ActivationPriority scores an active collector by data-type coverage:
// full coverage (or an unconstrained request) scores 100, partial coverage
// scales down toward 60. Zero when inactive.
func (g CapabilityGate) ActivationPriority(criteria domain.RequestCriteria) int {
	if !g.ShouldActivate(criteria) {
		return 0
	}
	c := criteria.Normalize()
	if len(c.DataTypes) == 0 {
		return 100
	}
	served := 0
	for _, dt := range c.DataTypes {
		if g.capability.Serves(dt) {
			served++
		}
	}
	return 60 + (40*served)/len(c.DataTypes)
}

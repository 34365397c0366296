package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AnalysisType hints what the caller intends to do with the collected data.
// Optional; collectors may use it to adjust activation priority.
type AnalysisType string

const (
	AnalysisFundamental AnalysisType = "fundamental"
	AnalysisTechnical   AnalysisType = "technical"
	AnalysisSmartMoney  AnalysisType = "smart_money"
	AnalysisSentiment   AnalysisType = "sentiment"
)

// RequestCriteria describes one analysis request. Treated as an immutable
// value by the router; activation predicates receive it by value and must
// not retain references to its slices.
type RequestCriteria struct {
	// RequestID correlates routing decisions, collection results, and
	// published events. Assigned by Normalize when empty.
	RequestID string

	// Symbols the caller wants data for. May be empty for broad or
	// macro-only requests.
	Symbols []string

	// DataTypes the caller asks for. Empty means "whatever the matching
	// collectors serve".
	DataTypes []UseCase

	// Sector restricts broad screens. A sector with no symbols and no
	// data types activates nothing (broad screens route elsewhere).
	Sector string

	AnalysisType AnalysisType
}

// Normalize returns a copy with a RequestID assigned, symbols upper-cased
// and de-duplicated. The receiver is not modified.
func (rc RequestCriteria) Normalize() RequestCriteria {
	out := rc
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}
	if len(rc.Symbols) > 0 {
		seen := make(map[string]struct{}, len(rc.Symbols))
		symbols := make([]string, 0, len(rc.Symbols))
		for _, s := range rc.Symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			symbols = append(symbols, s)
		}
		out.Symbols = symbols
	}
	return out
}

// IsEmpty reports whether the criteria carries nothing to route on.
func (rc RequestCriteria) IsEmpty() bool {
	return len(rc.Symbols) == 0 && len(rc.DataTypes) == 0 && rc.Sector == ""
}

// SymbolCount returns the number of distinct symbols after normalization.
func (rc RequestCriteria) SymbolCount() int {
	return len(rc.Normalize().Symbols)
}

// Filters is what the caller hands to CollectData after routing. It is a
// narrowed view of the criteria plus provider-specific parameters.
type Filters struct {
	RequestID string
	Symbols   []string
	DataTypes []UseCase
	Sector    string

	// Params carries provider-specific knobs (date ranges, form types)
	// that the router does not interpret.
	Params map[string]string
}

// FiltersFrom builds collection filters from normalized criteria.
func FiltersFrom(rc RequestCriteria) Filters {
	n := rc.Normalize()
	return Filters{
		RequestID: n.RequestID,
		Symbols:   n.Symbols,
		DataTypes: n.DataTypes,
		Sector:    n.Sector,
	}
}

package domain

import (
	"fmt"
	"strings"
)

// Quadrant categorizes a collector by who operates the upstream and how it
// charges for access.
type Quadrant int

const (
	QuadrantUnknown Quadrant = iota
	// QuadrantGovernmentFree covers government statistical agencies with
	// free, unauthenticated access (SEC EDGAR, FRED, Treasury).
	QuadrantGovernmentFree
	// QuadrantCommercialMCP covers commercial providers exposing an MCP
	// tool-calling interface.
	QuadrantCommercialMCP
	// QuadrantCommercialAPI covers commercial providers with a plain REST
	// API and a paid per-request quota.
	QuadrantCommercialAPI
)

func (q Quadrant) String() string {
	switch q {
	case QuadrantGovernmentFree:
		return "government_free"
	case QuadrantCommercialMCP:
		return "commercial_mcp"
	case QuadrantCommercialAPI:
		return "commercial_api"
	default:
		return "unknown"
	}
}

// ParseQuadrant converts a configuration string into a Quadrant.
func ParseQuadrant(s string) (Quadrant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "government_free", "government":
		return QuadrantGovernmentFree, nil
	case "commercial_mcp", "mcp":
		return QuadrantCommercialMCP, nil
	case "commercial_api", "api", "commercial_rest":
		return QuadrantCommercialAPI, nil
	default:
		return QuadrantUnknown, fmt.Errorf("unknown quadrant %q", s)
	}
}

// ProtocolPreference declares which transport a collector prefers when both
// are available upstream.
type ProtocolPreference int

const (
	ProtocolUnknown ProtocolPreference = iota
	ProtocolMCP
	ProtocolREST
	// ProtocolHybrid providers speak both and have no strong preference.
	ProtocolHybrid
)

func (p ProtocolPreference) String() string {
	switch p {
	case ProtocolMCP:
		return "mcp"
	case ProtocolREST:
		return "rest"
	case ProtocolHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseProtocol converts a configuration string into a ProtocolPreference.
func ParseProtocol(s string) (ProtocolPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mcp":
		return ProtocolMCP, nil
	case "rest":
		return ProtocolREST, nil
	case "hybrid":
		return ProtocolHybrid, nil
	default:
		return ProtocolUnknown, fmt.Errorf("unknown protocol %q", s)
	}
}

// UseCase tags the kind of data a collector serves or a request asks for.
type UseCase string

const (
	UseCaseFilings        UseCase = "filings"
	UseCaseFundamentals   UseCase = "fundamentals"
	UseCaseInsiderTrading UseCase = "insider_trading"
	UseCaseScreening      UseCase = "screening"
	UseCaseMacro          UseCase = "macro"
	UseCasePrices         UseCase = "prices"
	UseCaseSentiment      UseCase = "sentiment"
)

// KnownUseCases lists every use case the router understands. Validation
// warnings reference this set; unknown tags still route (forward
// compatibility) but are flagged.
var KnownUseCases = []UseCase{
	UseCaseFilings,
	UseCaseFundamentals,
	UseCaseInsiderTrading,
	UseCaseScreening,
	UseCaseMacro,
	UseCasePrices,
	UseCaseSentiment,
}

// CollectorCapability is the static, read-only metadata describing one
// collector. Built once at startup and never mutated afterwards; the router
// relies on that immutability to stay lock-free.
type CollectorCapability struct {
	// ID uniquely identifies the collector across the registry.
	ID string

	Quadrant        Quadrant
	PrimaryUseCases []UseCase

	// CostPerRequest in USD. Zero for government sources.
	CostPerRequest float64

	ProtocolPreference ProtocolPreference
	SupportsMCP        bool

	// RateLimitPerSecond is the upstream's fine-grained cap.
	RateLimitPerSecond float64

	// ReliabilityScore in [0,100], used as the ranking tie-breaker.
	ReliabilityScore int

	// MaxCompanies bounds how many symbols a single request may carry.
	// Zero means unbounded (broad/macro sources).
	MaxCompanies int

	// MCPToolCount is the number of tools the MCP surface exposes.
	// Zero for plain REST collectors.
	MCPToolCount int
}

// Validate reports the first structural problem with the capability.
func (c CollectorCapability) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("capability: id is required")
	}
	if c.Quadrant == QuadrantUnknown {
		return fmt.Errorf("capability %s: quadrant is required", c.ID)
	}
	if len(c.PrimaryUseCases) == 0 {
		return fmt.Errorf("capability %s: at least one use case is required", c.ID)
	}
	if c.CostPerRequest < 0 {
		return fmt.Errorf("capability %s: cost per request must be non-negative", c.ID)
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("capability %s: rate limit per second must be positive", c.ID)
	}
	if c.ReliabilityScore < 0 || c.ReliabilityScore > 100 {
		return fmt.Errorf("capability %s: reliability score %d out of range [0,100]", c.ID, c.ReliabilityScore)
	}
	if c.MaxCompanies < 0 {
		return fmt.Errorf("capability %s: max companies must be non-negative", c.ID)
	}
	if c.MCPToolCount < 0 {
		return fmt.Errorf("capability %s: mcp tool count must be non-negative", c.ID)
	}
	if c.ProtocolPreference == ProtocolMCP && !c.SupportsMCP {
		return fmt.Errorf("capability %s: prefers MCP but does not support it", c.ID)
	}
	return nil
}

// Serves reports whether the collector covers the given use case.
func (c CollectorCapability) Serves(uc UseCase) bool {
	for _, have := range c.PrimaryUseCases {
		if have == uc {
			return true
		}
	}
	return false
}

// ServesAny reports whether the collector covers at least one of the given
// use cases.
func (c CollectorCapability) ServesAny(ucs []UseCase) bool {
	for _, uc := range ucs {
		if c.Serves(uc) {
			return true
		}
	}
	return false
}

// OverlapsWith reports whether two capabilities serve at least one common
// use case. The router uses this for protocol fallback substitution.
func (c CollectorCapability) OverlapsWith(other CollectorCapability) bool {
	return c.ServesAny(other.PrimaryUseCases)
}

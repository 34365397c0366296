// Package mcp implements the commercial MCP collector. It speaks JSON-RPC
// 2.0 tools/call over HTTP: richer than plain REST, but metered by the same
// budget, so the router can substitute a REST alternative when the period
// quota runs out.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketflow/marketflow/pkg/collectors"
	"github.com/marketflow/marketflow/pkg/domain"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

const maxResponseBytes = 8 << 20

// JSON-RPC error code some MCP providers return when the account budget is
// spent server-side.
const rpcCodeQuotaExceeded = -32001

// Config for the MCP collector.
type Config struct {
	Capability domain.CollectorCapability
	// Endpoint is the full tools/call URL of the MCP server.
	Endpoint string
	APIKey   string
	// Tools maps a use case to the MCP tool serving it. Unmapped use
	// cases fall back to the generic "fetch_market_data" tool.
	Tools      map[domain.UseCase]string
	HTTPClient *http.Client
	Budget     *ratelimit.Budget
	Logger     *zap.Logger
}

// Collector calls one commercial MCP server.
type Collector struct {
	collectors.CapabilityGate
	*collectors.HealthTracker

	endpoint string
	apiKey   string
	tools    map[domain.UseCase]string
	client   *http.Client
	budget   *ratelimit.Budget
	limiter  *rate.Limiter
	logger   *zap.Logger
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New builds an MCP collector. MCP providers are per-company services:
// requests without symbols never activate.
func New(cfg Config) (*Collector, error) {
	if err := cfg.Capability.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capability.Quadrant != domain.QuadrantCommercialMCP {
		return nil, fmt.Errorf("collector %s: quadrant must be commercial_mcp", cfg.Capability.ID)
	}
	if !cfg.Capability.SupportsMCP {
		return nil, fmt.Errorf("collector %s: capability must support MCP", cfg.Capability.ID)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("collector %s: endpoint is required", cfg.Capability.ID)
	}
	if cfg.Budget == nil {
		return nil, fmt.Errorf("collector %s: budget is required", cfg.Capability.ID)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("collector %s: logger is required", cfg.Capability.ID)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Collector{
		CapabilityGate: collectors.NewCapabilityGate(cfg.Capability, true),
		HealthTracker:  collectors.NewHealthTracker(),
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		tools:          cfg.Tools,
		client:         cfg.HTTPClient,
		budget:         cfg.Budget,
		limiter:        rate.NewLimiter(rate.Limit(cfg.Capability.RateLimitPerSecond), 1),
		logger:         cfg.Logger.Named(cfg.Capability.ID),
	}, nil
}

// Name returns the capability ID.
func (c *Collector) Name() string {
	return c.Capability().ID
}

// CollectData reserves budget and issues one tools/call.
func (c *Collector) CollectData(ctx context.Context, filters domain.Filters) (*domain.CollectionResult, error) {
	if err := c.budget.Acquire(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := c.callTool(ctx, filters)
	if err != nil {
		c.RecordError(err)
		c.logger.Warn("tool call failed", zap.String("request_id", filters.RequestID), zap.Error(err))
		return nil, err
	}

	c.RecordSuccess()
	result := domain.NewCollectionResult(c.Name(), c.Capability().Quadrant, filters)
	result.Payload = payload
	result.Elapsed = time.Since(start)
	return result, nil
}

// toolFor picks the MCP tool for the request's primary data type.
func (c *Collector) toolFor(filters domain.Filters) string {
	for _, dt := range filters.DataTypes {
		if tool, ok := c.tools[dt]; ok {
			return tool
		}
	}
	return "fetch_market_data"
}

func (c *Collector) callTool(ctx context.Context, filters domain.Filters) (json.RawMessage, error) {
	args := map[string]any{"symbols": filters.Symbols}
	if len(filters.DataTypes) > 0 {
		types := make([]string, len(filters.DataTypes))
		for i, dt := range filters.DataTypes {
			types[i] = string(dt)
		}
		args["data_types"] = types
	}
	if filters.Sector != "" {
		args["sector"] = filters.Sector
	}
	for k, v := range filters.Params {
		args[k] = v
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params:  rpcParams{Name: c.toolFor(filters), Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := collectors.ErrorFromStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcCodeQuotaExceeded {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, rpcResp.Error.Message)
		}
		return nil, fmt.Errorf("%w: rpc error %d: %s",
			domain.ErrUpstreamUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 {
		return nil, fmt.Errorf("%w: empty rpc result", domain.ErrMalformedResponse)
	}
	return rpcResp.Result, nil
}

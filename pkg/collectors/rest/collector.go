// Package rest implements the commercial REST collector: API-key
// authenticated, paid per-request quota, plain JSON over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketflow/marketflow/pkg/collectors"
	"github.com/marketflow/marketflow/pkg/domain"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

const maxResponseBytes = 8 << 20

// Config for the commercial REST collector.
type Config struct {
	Capability domain.CollectorCapability
	BaseURL    string
	// DataPath is the query endpoint path, default "/v1/market-data".
	DataPath string
	// APIKey is sent as the X-API-Key header. Required; commercial APIs
	// reject anonymous calls.
	APIKey     string
	HTTPClient *http.Client
	Budget     *ratelimit.Budget
	Logger     *zap.Logger
}

// Collector calls one commercial REST upstream.
type Collector struct {
	collectors.CapabilityGate
	*collectors.HealthTracker

	baseURL  string
	dataPath string
	apiKey   string
	client   *http.Client
	budget   *ratelimit.Budget
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New builds a commercial REST collector. Per-company: symbol-less requests
// never activate.
func New(cfg Config) (*Collector, error) {
	if err := cfg.Capability.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capability.Quadrant != domain.QuadrantCommercialAPI {
		return nil, fmt.Errorf("collector %s: quadrant must be commercial_api", cfg.Capability.ID)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("collector %s: base URL is required", cfg.Capability.ID)
	}
	if cfg.Budget == nil {
		return nil, fmt.Errorf("collector %s: budget is required", cfg.Capability.ID)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("collector %s: logger is required", cfg.Capability.ID)
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "/v1/market-data"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Collector{
		CapabilityGate: collectors.NewCapabilityGate(cfg.Capability, true),
		HealthTracker:  collectors.NewHealthTracker(),
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		dataPath:       cfg.DataPath,
		apiKey:         cfg.APIKey,
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

// CollectData reserves budget and performs one authenticated GET.
func (c *Collector) CollectData(ctx context.Context, filters domain.Filters) (*domain.CollectionResult, error) {
	if err := c.budget.Acquire(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := c.fetch(ctx, filters)
	if err != nil {
		c.RecordError(err)
		c.logger.Warn("collection failed", zap.String("request_id", filters.RequestID), zap.Error(err))
		return nil, err
	}

	c.RecordSuccess()
	result := domain.NewCollectionResult(c.Name(), c.Capability().Quadrant, filters)
	result.Payload = payload
	result.Elapsed = time.Since(start)
	return result, nil
}

func (c *Collector) fetch(ctx context.Context, filters domain.Filters) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(filters.Symbols, ","))
	for _, dt := range filters.DataTypes {
		q.Add("types", string(dt))
	}
	if filters.Sector != "" {
		q.Set("sector", filters.Sector)
	}
	for k, v := range filters.Params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.dataPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := collectors.ErrorFromStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", domain.ErrMalformedResponse)
	}
	return body, nil
}

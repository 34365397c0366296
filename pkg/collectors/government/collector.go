// Package government implements the free government-agency collector
// (SEC EDGAR, FRED, Treasury style REST). Thin by design: budget admission,
// one HTTP GET, raw payload out.
package government

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

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Config for the government collector.
type Config struct {
	Capability domain.CollectorCapability
	BaseURL    string
	// DataPath is the query endpoint path, default "/api/v1/data".
	DataPath string
	// UserAgent is required by some agencies (SEC rejects anonymous UAs).
	UserAgent  string
	HTTPClient *http.Client
	Budget     *ratelimit.Budget
	Logger     *zap.Logger
}

// Collector fetches from one government upstream.
type Collector struct {
	collectors.CapabilityGate
	*collectors.HealthTracker

	baseURL   string
	dataPath  string
	userAgent string
	client    *http.Client
	budget    *ratelimit.Budget
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New builds a government collector. Government sources have no per-company
// requirement beyond the capability's MaxCompanies bound, so symbol-less
// macro requests activate.
func New(cfg Config) (*Collector, error) {
	if err := cfg.Capability.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capability.Quadrant != domain.QuadrantGovernmentFree {
		return nil, fmt.Errorf("collector %s: quadrant must be government_free", cfg.Capability.ID)
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
		cfg.DataPath = "/api/v1/data"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Collector{
		CapabilityGate: collectors.NewCapabilityGate(cfg.Capability, false),
		HealthTracker:  collectors.NewHealthTracker(),
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		dataPath:       cfg.DataPath,
		userAgent:      cfg.UserAgent,
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

// CollectData reserves budget, smooths to the upstream's per-second cap,
// and performs one GET. Budget units spent before a failure or cancellation
// are not returned.
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
	c.logger.Debug("collection complete",
		zap.String("request_id", filters.RequestID),
		zap.Int("bytes", len(payload)),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (c *Collector) fetch(ctx context.Context, filters domain.Filters) (json.RawMessage, error) {
	q := url.Values{}
	if len(filters.Symbols) > 0 {
		q.Set("symbols", strings.Join(filters.Symbols, ","))
	}
	for _, dt := range filters.DataTypes {
		q.Add("types", string(dt))
	}
	for k, v := range filters.Params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.dataPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

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

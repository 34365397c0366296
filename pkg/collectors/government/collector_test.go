package government

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketflow/marketflow/pkg/domain"
	"github.com/marketflow/marketflow/pkg/ratelimit"
)

func testCapability() domain.CollectorCapability {
	return domain.CollectorCapability{
		ID:                 "sec-edgar",
		Quadrant:           domain.QuadrantGovernmentFree,
		PrimaryUseCases:    []domain.UseCase{domain.UseCaseFilings, domain.UseCaseInsiderTrading},
		ProtocolPreference: domain.ProtocolREST,
		RateLimitPerSecond: 100,
		ReliabilityScore:   95,
		MaxCompanies:       20,
	}
}

func testBudget() *ratelimit.Budget {
	return ratelimit.NewBudget(ratelimit.BudgetSpec{
		Window:      time.Minute,
		MaxCalls:    100,
		QuotaLimit:  10,
		QuotaPeriod: ratelimit.PeriodDaily,
	}, nil)
}

func newTestCollector(t *testing.T, upstream http.HandlerFunc) (*Collector, *ratelimit.Budget) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	budget := testBudget()
	c, err := New(Config{
		Capability: testCapability(),
		BaseURL:    srv.URL,
		UserAgent:  "marketflow/1.0 ops@marketflow.dev",
		Budget:     budget,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c, budget
}

func TestCollectData(t *testing.T) {
	var gotUA, gotSymbols string
	c, budget := newTestCollector(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotSymbols = r.URL.Query().Get("symbols")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"filings":[{"form":"13F-HR","cik":"0000320193"}]}`))
	})

	filters := domain.Filters{
		RequestID: "req-7",
		Symbols:   []string{"AAPL", "MSFT"},
		DataTypes: []domain.UseCase{domain.UseCaseFilings},
	}
	res, err := c.CollectData(context.Background(), filters)
	require.NoError(t, err)

	assert.Equal(t, "sec-edgar", res.CollectorID)
	assert.Equal(t, "req-7", res.RequestID)
	assert.JSONEq(t, `{"filings":[{"form":"13F-HR","cik":"0000320193"}]}`, string(res.Payload))
	assert.Equal(t, "marketflow/1.0 ops@marketflow.dev", gotUA)
	assert.Equal(t, "AAPL,MSFT", gotSymbols)

	// One call spends one quota unit.
	assert.Equal(t, 9, budget.QuotaRemaining())
}

func TestCollectDataErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"forbidden", http.StatusForbidden, domain.ErrAuthenticationFailed},
		{"throttled", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCollectDataRejectsNonJSON(t *testing.T) {
	c, _ := newTestCollector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	})
	_, err := c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestCollectDataStopsWhenQuotaSpent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	budget := ratelimit.NewBudget(ratelimit.BudgetSpec{
		Window: time.Minute, MaxCalls: 100, QuotaLimit: 1, QuotaPeriod: ratelimit.PeriodDaily,
	}, nil)
	c, err := New(Config{
		Capability: testCapability(),
		BaseURL:    srv.URL,
		Budget:     budget,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	_, err = c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	// The refused call never reached the upstream.
	assert.Equal(t, 1, calls)
}

func TestMacroRequestsActivateWithoutSymbols(t *testing.T) {
	cap := domain.CollectorCapability{
		ID:                 "fred",
		Quadrant:           domain.QuadrantGovernmentFree,
		PrimaryUseCases:    []domain.UseCase{domain.UseCaseMacro},
		ProtocolPreference: domain.ProtocolREST,
		RateLimitPerSecond: 10,
		ReliabilityScore:   98,
	}
	c, err := New(Config{
		Capability: cap,
		BaseURL:    "https://api.stlouisfed.example",
		Budget:     testBudget(),
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	assert.True(t, c.ShouldActivate(domain.RequestCriteria{DataTypes: []domain.UseCase{domain.UseCaseMacro}}))
	assert.False(t, c.ShouldActivate(domain.RequestCriteria{Sector: "Energy"}))
}

func TestNewValidatesConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := New(Config{Capability: testCapability(), Budget: testBudget(), Logger: logger})
	assert.Error(t, err, "missing base URL")

	badQuadrant := testCapability()
	badQuadrant.Quadrant = domain.QuadrantCommercialAPI
	_, err = New(Config{Capability: badQuadrant, BaseURL: "https://x", Budget: testBudget(), Logger: logger})
	assert.Error(t, err)
}

package rest

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
		ID:                 "polygon",
		Quadrant:           domain.QuadrantCommercialAPI,
		PrimaryUseCases:    []domain.UseCase{domain.UseCasePrices, domain.UseCaseFundamentals},
		CostPerRequest:     0.004,
		ProtocolPreference: domain.ProtocolREST,
		RateLimitPerSecond: 100,
		ReliabilityScore:   90,
		MaxCompanies:       100,
	}
}

func newTestCollector(t *testing.T, upstream http.HandlerFunc) *Collector {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Capability: testCapability(),
		BaseURL:    srv.URL,
		APIKey:     "pk_test",
		Budget: ratelimit.NewBudget(ratelimit.BudgetSpec{
			Window: time.Minute, MaxCalls: 100, QuotaLimit: 10, QuotaPeriod: ratelimit.PeriodDaily,
		}, nil),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func TestCollectDataSendsAPIKey(t *testing.T) {
	var gotKey, gotTypes string
	c := newTestCollector(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotTypes = r.URL.Query().Get("types")
		w.Write([]byte(`{"results":[{"T":"AAPL","c":232.11}]}`))
	})

	res, err := c.CollectData(context.Background(), domain.Filters{
		Symbols:   []string{"AAPL"},
		DataTypes: []domain.UseCase{domain.UseCasePrices},
	})
	require.NoError(t, err)
	assert.Equal(t, "pk_test", gotKey)
	assert.Equal(t, "prices", gotTypes)
	assert.JSONEq(t, `{"results":[{"T":"AAPL","c":232.11}]}`, string(res.Payload))
}

func TestCollectDataPaidQuotaMapping(t *testing.T) {
	// 402 from a commercial upstream means the paid plan is out of credits.
	c := newTestCollector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})
	_, err := c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestCollectDataThrottleMapping(t *testing.T) {
	c := newTestCollector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.CollectData(context.Background(), domain.Filters{Symbols: []string{"AAPL"}})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPerCompanyActivation(t *testing.T) {
	c := newTestCollector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})

	assert.False(t, c.ShouldActivate(domain.RequestCriteria{
		DataTypes: []domain.UseCase{domain.UseCasePrices},
	}), "commercial REST requires symbols")
	assert.True(t, c.ShouldActivate(domain.RequestCriteria{
		Symbols:   []string{"AAPL"},
		DataTypes: []domain.UseCase{domain.UseCasePrices},
	}))
}

package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*BackendClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewBackendClient(BackendClientConfig{
		BaseURL:         server.URL + "/api",
		TradesDays:      7,
		AnalysisDays:    7,
		PerformanceDays: 30,
		Timeout:         2 * time.Second,
		Logger:          logging.NewNopLogger(),
	})
	require.NoError(t, err)
	return client, server
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestBackendClient_FetchAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trades", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		jsonHandler(http.StatusOK, `{
			"trades": [
				{"timestamp": "2024-01-15T09:30:00.123456", "trade_type": "buy", "amount": 0.01, "price": 51000000, "success": true},
				{"timestamp": "2024-01-15T10:30:00", "trade_type": "sell", "amount": 0.01, "price": 52000000, "success": false}
			],
			"summary": {"total_trades": 2, "successful_trades": 1, "buy_trades": 1, "sell_trades": 1}
		}`)(w, r)
	})
	mux.HandleFunc("/api/analysis", jsonHandler(http.StatusOK, `{
		"analysis": [{"ignored": true}],
		"chart_data": [
			{"timestamp": "2024-01-15T09:00:00", "price": 51000000, "total_asset": 1000000, "fear_greed": 55, "recommendation": "HOLD"},
			{"timestamp": "2024-01-15T10:00:00", "price": null, "total_asset": 1010000, "fear_greed": null, "recommendation": null}
		]
	}`))
	mux.HandleFunc("/api/portfolio", jsonHandler(http.StatusOK,
		`{"total_asset": 1052000, "current_price": 52000000, "timestamp": "2024-01-15T10:00:00", "status": "active"}`))
	mux.HandleFunc("/api/performance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		jsonHandler(http.StatusOK, `{"total_return": 5.2, "win_rate": 60, "total_trades": 5, "successful_trades": 3, "initial_asset": 1000000, "current_asset": 1052000, "period_days": 30}`)(w, r)
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	trades, err := client.FetchTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades.Trades, 2)
	assert.Equal(t, types.TradeSell, trades.Trades[1].TradeType)
	require.NotNil(t, trades.Summary)
	assert.Equal(t, 1, trades.Summary.SellTrades)

	analysis, err := client.FetchAnalysis(ctx)
	require.NoError(t, err)
	require.Len(t, analysis, 2)
	assert.True(t, analysis[0].FearGreed.Valid)
	require.NotNil(t, analysis[0].Recommendation)
	assert.Equal(t, "HOLD", *analysis[0].Recommendation)
	assert.False(t, analysis[1].FearGreed.Valid)
	assert.Nil(t, analysis[1].Recommendation)

	portfolio, err := client.FetchPortfolio(ctx)
	require.NoError(t, err)
	assert.True(t, portfolio.TotalAsset.Equal(decimal.NewFromInt(1052000)))
	assert.Equal(t, "active", portfolio.Status)

	perf, err := client.FetchPerformance(ctx)
	require.NoError(t, err)
	assert.True(t, perf.TotalReturn.Equal(decimal.RequireFromString("5.2")))
	assert.True(t, perf.WinRate.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 5, perf.TotalTrades)

	for _, h := range client.Health() {
		assert.Equal(t, int64(1), h.SuccessfulReqs, "resource %s", h.Resource)
		assert.True(t, h.IsHealthy)
	}
}

func TestBackendClient_EmptyListsAreValid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trades", jsonHandler(http.StatusOK, `{"trades": [], "summary": {"total_trades": 0}}`))
	mux.HandleFunc("/api/analysis", jsonHandler(http.StatusOK, `{"analysis": [], "chart_data": []}`))

	client, _ := newTestClient(t, mux)

	trades, err := client.FetchTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trades.Trades)

	analysis, err := client.FetchAnalysis(context.Background())
	require.NoError(t, err)
	assert.Empty(t, analysis)
}

func TestBackendClient_Failures(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		fetch        func(c *BackendClient) error
		wantCategory errors.ErrorCategory
		wantCode     string
	}{
		{
			name:    "non-2xx status",
			handler: jsonHandler(http.StatusServiceUnavailable, `{"detail": "down"}`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchPortfolio(context.Background())
				return err
			},
			wantCategory: errors.CategoryProtocol,
			wantCode:     "BACKEND_STATUS",
		},
		{
			name:    "error envelope with 200",
			handler: jsonHandler(http.StatusOK, `{"error": "No analysis data available"}`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchPerformance(context.Background())
				return err
			},
			wantCategory: errors.CategoryDecode,
			wantCode:     "BACKEND_ERROR_BODY",
		},
		{
			name:    "missing required key",
			handler: jsonHandler(http.StatusOK, `{"analysis": []}`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchAnalysis(context.Background())
				return err
			},
			wantCategory: errors.CategoryDecode,
			wantCode:     "BACKEND_DECODE",
		},
		{
			name:    "null required key",
			handler: jsonHandler(http.StatusOK, `{"trades": null}`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchTrades(context.Background())
				return err
			},
			wantCategory: errors.CategoryDecode,
			wantCode:     "BACKEND_DECODE",
		},
		{
			name:    "not json",
			handler: jsonHandler(http.StatusOK, `<html>oops</html>`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchTrades(context.Background())
				return err
			},
			wantCategory: errors.CategoryDecode,
			wantCode:     "BACKEND_DECODE",
		},
		{
			name:    "wrong field type",
			handler: jsonHandler(http.StatusOK, `{"total_return": "lots", "win_rate": 1, "total_trades": 1}`),
			fetch: func(c *BackendClient) error {
				_, err := c.FetchPerformance(context.Background())
				return err
			},
			wantCategory: errors.CategoryDecode,
			wantCode:     "BACKEND_DECODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)

			err := tt.fetch(client)
			require.Error(t, err)

			cat := errors.Categorize(err)
			assert.Equal(t, tt.wantCategory, cat.Category)
			assert.Equal(t, tt.wantCode, cat.Code)
		})
	}
}

func TestBackendClient_ProtocolErrorKeepsStatus(t *testing.T) {
	client, _ := newTestClient(t, jsonHandler(http.StatusNotFound, `{"detail": "Not Found"}`))

	_, err := client.FetchTrades(context.Background())
	cat := errors.Categorize(err)
	require.NotNil(t, cat)
	assert.Equal(t, http.StatusNotFound, cat.UpstreamStatus)
	assert.Equal(t, types.ResourceTrades, cat.Resource)
	assert.False(t, errors.IsRetryable(err))
}

func TestBackendClient_Timeout(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchPerformance(ctx)
	require.Error(t, err)
	cat := errors.Categorize(err)
	assert.Equal(t, errors.CategoryTransport, cat.Category)
	assert.Equal(t, "BACKEND_TIMEOUT", cat.Code)
	assert.True(t, errors.IsRetryable(err))
}

func TestBackendClient_ConnectionRefused(t *testing.T) {
	client, server := newTestClient(t, jsonHandler(http.StatusOK, `{}`))
	server.Close()

	_, err := client.FetchPortfolio(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryTransport, errors.Categorize(err).Category)

	var health *EndpointHealth
	for _, h := range client.Health() {
		if h.Resource == types.ResourcePortfolio {
			health = h
		}
	}
	require.NotNil(t, health)
	assert.Equal(t, int64(1), health.FailedReqs)
	assert.Equal(t, 1, health.ConsecutiveFails)
	assert.NotEmpty(t, health.LastError)
}

func TestBackendClient_RateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		jsonHandler(http.StatusOK, `{"total_asset": 1}`)(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewBackendClient(BackendClientConfig{
		BaseURL:      server.URL + "/api",
		RateLimitRPS: 0.5,
		Logger:       logging.NewNopLogger(),
	})
	require.NoError(t, err)

	_, err = client.FetchPortfolio(context.Background())
	require.NoError(t, err)

	// The second request would have to wait two seconds for a token
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.FetchPortfolio(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryTransport, errors.Categorize(err).Category)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewBackendClient_Validation(t *testing.T) {
	_, err := NewBackendClient(BackendClientConfig{})
	assert.Error(t, err)

	_, err = NewBackendClient(BackendClientConfig{BaseURL: "http://localhost", RateLimitRPS: -1})
	assert.Error(t, err)
}

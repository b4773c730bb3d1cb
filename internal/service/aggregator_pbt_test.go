package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

// fetcherFor returns a fetcher whose payloads are derived from v and whose
// resources listed in failing answer 500
func fetcherFor(v int64, failing []bool) *fakeFetcher {
	f := healthyFetcher(v)
	fail := func(r types.Resource) error {
		return errors.NewProtocolError(r, http.StatusInternalServerError, "")
	}
	if failing[0] {
		f.trades = func(ctx context.Context) (*types.TradeHistory, error) { return nil, fail(types.ResourceTrades) }
	}
	if failing[1] {
		f.analysis = func(ctx context.Context) ([]types.AnalysisPoint, error) { return nil, fail(types.ResourceAnalysis) }
	}
	if failing[2] {
		f.portfolio = func(ctx context.Context) (*types.PortfolioSnapshot, error) { return nil, fail(types.ResourcePortfolio) }
	}
	if failing[3] {
		f.performance = func(ctx context.Context) (*types.PerformanceMetrics, error) { return nil, fail(types.ResourcePerformance) }
	}
	return f
}

// A failed fetch never replaces a previously good value; a successful one
// always does.
func TestAggregateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("failed fields keep previous values", prop.ForAll(
		func(failing []bool, v1, v2 int64) bool {
			nop := logging.NewNopLogger()
			a1, _ := NewAggregator(fetcherFor(v1, []bool{false, false, false, false}), AggregatorConfig{Logger: nop})
			a2, _ := NewAggregator(fetcherFor(v2, failing), AggregatorConfig{Logger: nop})

			first := a1.Aggregate(context.Background(), 1, nil)
			second := a2.Aggregate(context.Background(), 2, first)

			expected := func(idx int) int64 {
				if failing[idx] {
					return v1
				}
				return v2
			}
			statusOK := func(idx int, r types.Resource) bool {
				if failing[idx] {
					return second.Status(r) == types.FieldStale
				}
				return second.Status(r) == types.FieldFresh
			}

			return len(second.Trades.Value.Trades) == int(expected(0)) &&
				second.Analysis.Value[0].TotalAsset.Equal(decimal.NewFromInt(expected(1)*1000)) &&
				second.Portfolio.Value.TotalAsset.Equal(decimal.NewFromInt(expected(2)*1000000)) &&
				second.Performance.Value.TotalReturn.Equal(decimal.NewFromInt(expected(3))) &&
				statusOK(0, types.ResourceTrades) &&
				statusOK(1, types.ResourceAnalysis) &&
				statusOK(2, types.ResourcePortfolio) &&
				statusOK(3, types.ResourcePerformance)
		},
		gen.SliceOfN(4, gen.Bool()),
		gen.Int64Range(0, 30),
		gen.Int64Range(0, 30),
	))

	properties.TestingRun(t)
}

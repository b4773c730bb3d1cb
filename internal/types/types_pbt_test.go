package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// A carried-forward trade history equals the previous one and does not
// share its backing array.
func TestCarryForwardProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("carry forward preserves values without aliasing", prop.ForAll(
		func(prices []int64) bool {
			trades := make([]TradeRecord, len(prices))
			for i, p := range prices {
				trades[i] = TradeRecord{TradeType: TradeBuy, Price: decimal.NewFromInt(p)}
			}
			prev := FreshField(TradeHistory{Trades: trades}, time.Unix(0, 0))

			carried := CarryForward(&prev, nil, CloneTradeHistory)
			if !carried.Available || carried.Fresh {
				return false
			}
			if len(carried.Value.Trades) != len(trades) {
				return false
			}
			for i := range trades {
				if !carried.Value.Trades[i].Price.Equal(trades[i].Price) {
					return false
				}
			}
			if len(trades) > 0 {
				carried.Value.Trades[0].Price = decimal.NewFromInt(-1)
				return !prev.Value.Trades[0].Price.Equal(decimal.NewFromInt(-1)) || prices[0] == -1
			}
			return true
		},
		gen.SliceOf(gen.Int64()),
	))

	properties.TestingRun(t)
}

// Package view computes presentation-ready values from aggregated snapshots.
// Every function here is pure: the same snapshot always yields the same
// result and the snapshot is never modified.
package view

import (
	"time"

	"github.com/trading-dashboard/internal/types"
)

// DefaultRecentTrades is the number of rows shown in the trade log
const DefaultRecentTrades = 20

// Sign classifies the total return for colouring
type Sign string

const (
	SignNonNegative Sign = "non_negative"
	SignNegative    Sign = "negative"
	// SignUnknown is used when performance has never been fetched
	SignUnknown Sign = "unknown"
)

// Color is the presentation class attached to a value
type Color string

const (
	ColorPositive Color = "positive"
	ColorNegative Color = "negative"
	ColorNeutral  Color = "neutral"
)

// RecentTrades returns the last n trades, most recent first. It takes the
// final n elements of the chronological sequence and reverses them.
func RecentTrades(snapshot *types.AggregatedSnapshot, n int) []types.TradeRecord {
	if snapshot == nil || n <= 0 || !snapshot.Trades.Available {
		return []types.TradeRecord{}
	}

	trades := snapshot.Trades.Value.Trades
	start := len(trades) - n
	if start < 0 {
		start = 0
	}

	recent := make([]types.TradeRecord, 0, len(trades)-start)
	for i := len(trades) - 1; i >= start; i-- {
		recent = append(recent, trades[i])
	}
	return recent
}

// ReturnSign classifies total_return. Zero counts as non-negative.
func ReturnSign(snapshot *types.AggregatedSnapshot) Sign {
	if snapshot == nil || !snapshot.Performance.Available {
		return SignUnknown
	}
	if snapshot.Performance.Value.TotalReturn.IsNegative() {
		return SignNegative
	}
	return SignNonNegative
}

// ColorClass maps a sign to its presentation class
func ColorClass(sign Sign) Color {
	switch sign {
	case SignNonNegative:
		return ColorPositive
	case SignNegative:
		return ColorNegative
	default:
		return ColorNeutral
	}
}

// Breakdown counts trades by side and outcome
type Breakdown struct {
	Total      int `json:"total"`
	Buys       int `json:"buys"`
	Sells      int `json:"sells"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// TradeBreakdown counts every trade in the snapshot's history
func TradeBreakdown(snapshot *types.AggregatedSnapshot) Breakdown {
	var b Breakdown
	if snapshot == nil || !snapshot.Trades.Available {
		return b
	}
	for _, t := range snapshot.Trades.Value.Trades {
		b.Total++
		switch t.TradeType {
		case types.TradeBuy:
			b.Buys++
		case types.TradeSell:
			b.Sells++
		}
		if t.Success {
			b.Successful++
		} else {
			b.Failed++
		}
	}
	return b
}

// ChartPoint is one chart-ready point of the asset/price series
type ChartPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalAsset float64   `json:"totalAsset"`
	Price      float64   `json:"price"`
	FearGreed  *float64  `json:"fearGreed,omitempty"`
}

// ChartSeries converts the analysis series to chart points in backend order
func ChartSeries(snapshot *types.AggregatedSnapshot) []ChartPoint {
	if snapshot == nil || !snapshot.Analysis.Available {
		return []ChartPoint{}
	}

	points := make([]ChartPoint, 0, len(snapshot.Analysis.Value))
	for _, p := range snapshot.Analysis.Value {
		cp := ChartPoint{
			Timestamp:  p.Timestamp.Time,
			TotalAsset: p.TotalAsset.InexactFloat64(),
			Price:      p.Price.InexactFloat64(),
		}
		if p.FearGreed.Valid {
			fg := p.FearGreed.Decimal.InexactFloat64()
			cp.FearGreed = &fg
		}
		points = append(points, cp)
	}
	return points
}

package view

import (
	"strings"

	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/types"
)

// State is the overall presentation state of the dashboard
type State string

const (
	// StateLoading means no tick has resolved yet
	StateLoading State = "loading"
	// StateError means the first tick failed entirely and nothing was committed
	StateError State = "error"
	// StateReady means a snapshot is available
	StateReady State = "ready"
)

// ReturnDisplay is the total return with its colour class
type ReturnDisplay struct {
	Text  string `json:"text"`
	Sign  Sign   `json:"sign"`
	Class Color  `json:"class"`
}

// TradeRow is one row of the trade log
type TradeRow struct {
	Time        string `json:"time"`
	Type        string `json:"type"`
	TypeClass   Color  `json:"typeClass"`
	Amount      string `json:"amount"`
	Price       string `json:"price"`
	Status      string `json:"status"`
	StatusClass Color  `json:"statusClass"`
}

// Dashboard is everything a presentation layer needs to draw one frame
type Dashboard struct {
	State       State               `json:"state"`
	Error       *types.FieldFailure `json:"error,omitempty"`
	Sequence    uint64              `json:"sequence"`
	SnapshotID  string              `json:"snapshotId,omitempty"`
	LastUpdated string              `json:"lastUpdated"`
	RefreshedAt string              `json:"refreshedAt"`
	Currency    string              `json:"currency"`

	TotalAsset       string        `json:"totalAsset"`
	CurrentPrice     string        `json:"currentPrice"`
	TotalReturn      ReturnDisplay `json:"totalReturn"`
	WinRate          string        `json:"winRate"`
	TotalTrades      int           `json:"totalTrades"`
	SuccessfulTrades int           `json:"successfulTrades"`
	PeriodDays       int           `json:"periodDays"`

	Breakdown    Breakdown    `json:"breakdown"`
	RecentTrades []TradeRow   `json:"recentTrades"`
	Chart        []ChartPoint `json:"chart"`

	Fields map[types.Resource]types.FieldStatus `json:"fields"`
}

// BuildDashboard projects the store's view state into a Dashboard. n is the
// number of recent trade rows; n <= 0 uses DefaultRecentTrades.
func BuildDashboard(state *storage.ViewState, f *Formatter, n int) *Dashboard {
	if n <= 0 {
		n = DefaultRecentTrades
	}

	d := &Dashboard{
		LastUpdated:  Placeholder,
		RefreshedAt:  Placeholder,
		Currency:     f.CurrencyCode(),
		TotalAsset:   Placeholder,
		CurrentPrice: Placeholder,
		TotalReturn: ReturnDisplay{
			Text:  Placeholder,
			Sign:  SignUnknown,
			Class: ColorNeutral,
		},
		WinRate:      Placeholder,
		RecentTrades: []TradeRow{},
		Chart:        []ChartPoint{},
	}

	var snapshot *types.AggregatedSnapshot
	if state != nil {
		snapshot = state.Snapshot
	}
	d.Fields = snapshot.Statuses()

	switch {
	case snapshot != nil:
		d.State = StateReady
	case state != nil && state.Failure != nil:
		d.State = StateError
		d.Error = state.Failure
		return d
	default:
		d.State = StateLoading
		return d
	}

	d.Sequence = snapshot.Sequence
	d.SnapshotID = snapshot.ID
	d.RefreshedAt = f.DateTime(snapshot.CompletedAt)

	if snapshot.Portfolio.Available {
		p := snapshot.Portfolio.Value
		d.TotalAsset = f.Currency(p.TotalAsset)
		d.CurrentPrice = f.Currency(p.CurrentPrice)
		d.LastUpdated = f.DateTime(p.Timestamp.Time)
	}

	if snapshot.Performance.Available {
		perf := snapshot.Performance.Value
		sign := ReturnSign(snapshot)
		d.TotalReturn = ReturnDisplay{
			Text:  f.Percent(perf.TotalReturn),
			Sign:  sign,
			Class: ColorClass(sign),
		}
		d.WinRate = f.Percent(perf.WinRate)
		d.TotalTrades = perf.TotalTrades
		d.SuccessfulTrades = perf.SuccessfulTrades
		d.PeriodDays = perf.PeriodDays
	}

	d.Breakdown = TradeBreakdown(snapshot)
	for _, t := range RecentTrades(snapshot, n) {
		d.RecentTrades = append(d.RecentTrades, tradeRow(t, f))
	}
	d.Chart = ChartSeries(snapshot)

	return d
}

func tradeRow(t types.TradeRecord, f *Formatter) TradeRow {
	row := TradeRow{
		Time:        f.DateTime(t.Timestamp.Time),
		Type:        strings.ToUpper(string(t.TradeType)),
		TypeClass:   ColorNegative,
		Amount:      f.Amount(t.Amount),
		Price:       f.Currency(t.Price),
		Status:      "FAILED",
		StatusClass: ColorNegative,
	}
	if t.TradeType == types.TradeBuy {
		row.TypeClass = ColorPositive
	}
	if t.Success {
		row.Status = "SUCCESS"
		row.StatusClass = ColorPositive
	}
	return row
}

// Stale reports whether any field of a ready dashboard is not fresh
func (d *Dashboard) Stale() bool {
	if d.State != StateReady {
		return false
	}
	for _, status := range d.Fields {
		if status != types.FieldFresh {
			return true
		}
	}
	return false
}

// Package types provides common type definitions for the trading dashboard.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resource identifies one of the backend resources polled on every tick
type Resource string

const (
	// ResourceTrades is the trade history (GET /trades)
	ResourceTrades Resource = "trades"
	// ResourceAnalysis is the analysis time series (GET /analysis)
	ResourceAnalysis Resource = "analysis"
	// ResourcePortfolio is the current portfolio snapshot (GET /portfolio)
	ResourcePortfolio Resource = "portfolio"
	// ResourcePerformance is the performance metrics (GET /performance)
	ResourcePerformance Resource = "performance"
)

// AllResources lists every polled resource in a fixed order
var AllResources = []Resource{
	ResourceTrades,
	ResourceAnalysis,
	ResourcePortfolio,
	ResourcePerformance,
}

// Path returns the backend path of the resource relative to the API base
func (r Resource) Path() string {
	return "/" + string(r)
}

// TradeType represents the side of a trade
type TradeType string

const (
	// TradeBuy represents a buy order
	TradeBuy TradeType = "buy"
	// TradeSell represents a sell order
	TradeSell TradeType = "sell"
)

// NaiveLocation is the location used for backend timestamps that carry no
// zone offset. The backend writes Python isoformat() strings.
var NaiveLocation = time.UTC

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is an instant decoded from the backend's ISO-8601 strings
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses zoned and naive ISO-8601 forms
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Timestamp{Time: t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, NaiveLocation); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// UnmarshalJSON accepts a string timestamp or null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC3339 with nanoseconds, or null for the zero instant
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// TradeRecord represents one executed (or attempted) trade
type TradeRecord struct {
	Timestamp Timestamp       `json:"timestamp"`
	TradeType TradeType       `json:"trade_type"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Success   bool            `json:"success"`
}

// TradeSummary is the aggregate the backend sends next to the trade list
type TradeSummary struct {
	TotalTrades      int `json:"total_trades"`
	SuccessfulTrades int `json:"successful_trades"`
	BuyTrades        int `json:"buy_trades"`
	SellTrades       int `json:"sell_trades"`
}

// TradeHistory is the decoded /trades payload
type TradeHistory struct {
	Trades  []TradeRecord `json:"trades"`
	Summary *TradeSummary `json:"summary,omitempty"`
}

// AnalysisPoint is one point of the asset/price time series
type AnalysisPoint struct {
	Timestamp      Timestamp           `json:"timestamp"`
	TotalAsset     decimal.Decimal     `json:"total_asset"`
	Price          decimal.Decimal     `json:"price"`
	FearGreed      decimal.NullDecimal `json:"fear_greed"`
	Recommendation *string             `json:"recommendation,omitempty"`
}

// PortfolioSnapshot is the backend's current portfolio status.
// Fields the dashboard does not interpret are kept in Extra.
type PortfolioSnapshot struct {
	TotalAsset   decimal.Decimal            `json:"total_asset"`
	CurrentPrice decimal.Decimal            `json:"current_price"`
	Timestamp    Timestamp                  `json:"timestamp"`
	Status       string                     `json:"status,omitempty"`
	Extra        map[string]json.RawMessage `json:"extra,omitempty"`
}

var portfolioKnownKeys = []string{"total_asset", "current_price", "timestamp", "status", "extra"}

// UnmarshalJSON decodes the known portfolio fields and keeps the rest in Extra
func (p *PortfolioSnapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var known struct {
		TotalAsset   decimal.Decimal            `json:"total_asset"`
		CurrentPrice decimal.Decimal            `json:"current_price"`
		Timestamp    Timestamp                  `json:"timestamp"`
		Status       string                     `json:"status"`
		Extra        map[string]json.RawMessage `json:"extra"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	extra := known.Extra
	for _, key := range portfolioKnownKeys {
		delete(raw, key)
	}
	if len(raw) > 0 && extra == nil {
		extra = make(map[string]json.RawMessage, len(raw))
	}
	for k, v := range raw {
		extra[k] = v
	}

	*p = PortfolioSnapshot{
		TotalAsset:   known.TotalAsset,
		CurrentPrice: known.CurrentPrice,
		Timestamp:    known.Timestamp,
		Status:       known.Status,
		Extra:        extra,
	}
	return nil
}

// PerformanceMetrics is the decoded /performance payload
type PerformanceMetrics struct {
	TotalTrades      int             `json:"total_trades"`
	SuccessfulTrades int             `json:"successful_trades"`
	TotalReturn      decimal.Decimal `json:"total_return"`
	WinRate          decimal.Decimal `json:"win_rate"`
	InitialAsset     decimal.Decimal `json:"initial_asset"`
	CurrentAsset     decimal.Decimal `json:"current_asset"`
	PeriodDays       int             `json:"period_days"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

package view

import (
	"fmt"
	"math"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Placeholder is shown for values that have never been fetched
const Placeholder = "-"

// Formatter renders amounts and instants for display. The output depends
// only on the formatter's settings and the input.
type Formatter struct {
	currency *money.Currency
	location *time.Location
	layout   string
}

// NewFormatter creates a formatter for an ISO 4217 currency code
func NewFormatter(currencyCode string, location *time.Location, layout string) (*Formatter, error) {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		return nil, fmt.Errorf("unknown currency %q", currencyCode)
	}
	if location == nil {
		location = time.UTC
	}
	if layout == "" {
		layout = time.DateTime
	}
	return &Formatter{
		currency: currency,
		location: location,
		layout:   layout,
	}, nil
}

// CurrencyCode returns the configured currency code
func (f *Formatter) CurrencyCode() string {
	return f.currency.Code
}

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = maxMinorUnits.Neg()
)

// Currency formats amount in the configured currency, rounded half away
// from zero to the currency's minor unit. Amounts beyond int64 minor units
// are clamped to that range.
func (f *Formatter) Currency(amount decimal.Decimal) string {
	minor := amount.Shift(int32(f.currency.Fraction)).Round(0)
	switch {
	case minor.GreaterThan(maxMinorUnits):
		minor = maxMinorUnits
	case minor.LessThan(minMinorUnits):
		minor = minMinorUnits
	}
	return money.New(minor.IntPart(), f.currency.Code).Display()
}

// DateTime formats an instant in the configured location
func (f *Formatter) DateTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.In(f.location).Format(f.layout)
}

// Percent formats a percentage value as sent by the backend
func (f *Formatter) Percent(d decimal.Decimal) string {
	return d.String() + "%"
}

// Amount formats a trade quantity without rounding
func (f *Formatter) Amount(d decimal.Decimal) string {
	return d.String()
}

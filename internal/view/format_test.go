package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kst = time.FixedZone("KST", 9*60*60)

func newKRWFormatter(t *testing.T) *Formatter {
	t.Helper()
	f, err := NewFormatter("KRW", kst, "2006. 1. 2. 15:04:05")
	require.NoError(t, err)
	return f
}

func TestNewFormatter_UnknownCurrency(t *testing.T) {
	_, err := NewFormatter("XYZ", nil, "")
	assert.Error(t, err)
}

func TestNewFormatter_Defaults(t *testing.T) {
	f, err := NewFormatter("krw", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "KRW", f.CurrencyCode())
	assert.Equal(t, "2024-03-01 09:00:00", f.DateTime(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestFormatter_Currency(t *testing.T) {
	f := newKRWFormatter(t)

	tests := []struct {
		amount string
		want   string
	}{
		{"1234567", "₩1,234,567"},
		{"0", "₩0"},
		{"999", "₩999"},
		{"1000", "₩1,000"},
		{"1234567.4", "₩1,234,567"},
		{"1234567.5", "₩1,234,568"},
		{"-5000", "-₩5,000"},
		{"-0.4", "₩0"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Currency(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestFormatter_CurrencyWithMinorUnits(t *testing.T) {
	f, err := NewFormatter("USD", time.UTC, "")
	require.NoError(t, err)

	assert.Equal(t, "$1,234.50", f.Currency(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "$0.01", f.Currency(decimal.RequireFromString("0.005")))
}

func TestFormatter_CurrencyClampsOutOfRange(t *testing.T) {
	f, err := NewFormatter("USD", time.UTC, "")
	require.NoError(t, err)

	assert.Equal(t, "$92,233,720,368,547,758.07", f.Currency(decimal.RequireFromString("1e30")))
	assert.Equal(t, "-$92,233,720,368,547,758.07", f.Currency(decimal.RequireFromString("-1e30")))
	// The largest representable amount is not altered
	assert.Equal(t, "$92,233,720,368,547,758.07", f.Currency(decimal.RequireFromString("92233720368547758.07")))
}

func TestFormatter_DateTime(t *testing.T) {
	f := newKRWFormatter(t)

	instant := time.Date(2024, 3, 1, 6, 30, 15, 0, time.UTC)
	assert.Equal(t, "2024. 3. 1. 15:30:15", f.DateTime(instant))

	// Same instant in another zone formats identically
	assert.Equal(t, f.DateTime(instant), f.DateTime(instant.In(time.FixedZone("X", -5*3600))))

	assert.Equal(t, Placeholder, f.DateTime(time.Time{}))
}

func TestFormatter_PercentAndAmount(t *testing.T) {
	f := newKRWFormatter(t)

	assert.Equal(t, "5.2%", f.Percent(decimal.RequireFromString("5.2")))
	assert.Equal(t, "0%", f.Percent(decimal.Zero))
	assert.Equal(t, "-3.75%", f.Percent(decimal.RequireFromString("-3.75")))
	assert.Equal(t, "0.00123", f.Amount(decimal.RequireFromString("0.00123")))
}

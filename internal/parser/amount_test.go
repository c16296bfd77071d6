package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		currency string
		ok       bool
	}{
		{in: "$42.50", want: "42.5", ok: true},
		{in: "USD 1,234.56", want: "1234.56", currency: "USD", ok: true},
		{in: "€12,50", want: "12.5", currency: "EUR", ok: true},
		{in: "1.234,56 EUR", want: "1234.56", currency: "EUR", ok: true},
		{in: "£9.99", want: "9.99", currency: "GBP", ok: true},
		{in: "CA$15.00", want: "15", currency: "CAD", ok: true},
		{in: "¥1200", want: "1200", currency: "JPY", ok: true},
		{in: "$42.00 USD", want: "42", currency: "USD", ok: true},
		{in: "12", want: "12", ok: true},
		{in: "no amount here", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, cur, ok := ParseAmount(tt.in)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.currency, cur)
		})
	}
}

func TestFindTotal(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "grand total preferred over subtotal",
			text: "Subtotal: $10.00\nTax: $0.80\nGrand Total: $10.80",
			want: "10.8",
			ok:   true,
		},
		{
			name: "plain total",
			text: "Items 2\nTotal $25.99",
			want: "25.99",
			ok:   true,
		},
		{
			name: "amount on next row",
			text: "Order Total:\n$31.40",
			want: "31.4",
			ok:   true,
		},
		{
			name: "total savings is skipped",
			text: "Total savings $5.00\nAmount paid $20.00",
			want: "20",
			ok:   true,
		},
		{
			name: "order numbers are not totals",
			text: "Total items 3 for order 1234",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, ok := FindTotal(tt.text)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestFindDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "iso", text: "Placed 2024-03-05 via web", want: "2024-03-05"},
		{name: "month first", text: "Order placed on March 5, 2024", want: "2024-03-05"},
		{name: "abbreviated month", text: "Date: Sep 30 2024", want: "2024-09-30"},
		{name: "day first", text: "5th March 2024", want: "2024-03-05"},
		{name: "us numeric", text: "03/05/2024", want: "2024-03-05"},
		{name: "day first numeric", text: "25/12/2024", want: "2024-12-25"},
		{name: "label wins over earlier date", text: "Shipped 2024-01-02\nOrder date: 2023-12-30", want: "2023-12-30"},
		{name: "impossible date", text: "2024-02-31", want: ""},
		{name: "none", text: "no date", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindDate(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDate(t *testing.T) {
	got := ParseDate("2024-06-01T18:30:00-07:00")
	require.NotNil(t, got)
	assert.Equal(t, "2024-06-01", got.Format("2006-01-02"))
	assert.Nil(t, ParseDate(""))
}

package matcher

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// fxRE matches the foreign-amount note card issuers append to statement descriptions,
// e.g. "30.00 USD, RATE 0.75/GBP".
var fxRE = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s+([A-Z]{3}),?\s+RATE\s+(\d+(?:\.\d+)?)\s*/\s*([A-Z]{3})\b`)

// FXDetail is a foreign amount and exchange rate embedded in a transaction description.
type FXDetail struct {
	Amount     decimal.Decimal
	Rate       decimal.Decimal
	Currency   string
	Settlement string
}

// ParseFX extracts the first foreign-amount note from a description.
func ParseFX(description string) (FXDetail, bool) {
	m := fxRE.FindStringSubmatch(description)
	if m == nil {
		return FXDetail{}, false
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return FXDetail{}, false
	}
	rate, err := decimal.NewFromString(m[3])
	if err != nil || !rate.IsPositive() {
		return FXDetail{}, false
	}
	return FXDetail{
		Amount:     amount,
		Rate:       rate,
		Currency:   strings.ToUpper(m[2]),
		Settlement: strings.ToUpper(m[4]),
	}, true
}

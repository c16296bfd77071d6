package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"us$": "USD",
	"ca$": "CAD",
	"c$":  "CAD",
	"a$":  "AUD",
	"au$": "AUD",
	"nz$": "NZD",
	"hk$": "HKD",
	"$":   "",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₹":   "INR",
}

const isoCodes = `USD|EUR|GBP|CAD|AUD|JPY|INR|CHF|SEK|NOK|DKK|NZD|MXN|HKD|SGD|BRL|PLN`

var moneyRE = regexp.MustCompile(`(?i)(US\$|CA\$|C\$|AU\$|A\$|NZ\$|HK\$|\$|€|£|¥|₹|\b(?:` + isoCodes + `)\b)?\s?` +
	`(-?\d{1,3}(?:[,.]\d{3})+(?:[.,]\d{1,2})?|-?\d+(?:[.,]\d{1,2})?)` +
	`(?:\s?(€|\b(?:` + isoCodes + `)\b))?`)

// money is one amount token found in text.
type money struct {
	amount      decimal.Decimal
	currency    string
	hasMarker   bool
	hasDecimals bool
}

// findMoney returns all amount tokens in s in order of appearance.
func findMoney(s string) []money {
	var out []money
	for _, m := range moneyRE.FindAllStringSubmatch(s, -1) {
		num, frac := normalizeNumber(m[2])
		amount, err := decimal.NewFromString(num)
		if err != nil {
			continue
		}
		prefix, suffix := strings.ToLower(m[1]), strings.ToLower(m[3])
		out = append(out, money{
			amount:      amount,
			currency:    currencyFor(prefix, suffix),
			hasMarker:   prefix != "" || suffix != "",
			hasDecimals: frac,
		})
	}
	return out
}

func currencyFor(prefix, suffix string) string {
	for _, tok := range []string{prefix, suffix} {
		if tok == "" {
			continue
		}
		if code, ok := currencySymbols[tok]; ok {
			if code != "" {
				return code
			}
			continue
		}
		return strings.ToUpper(tok)
	}
	return ""
}

// normalizeNumber converts "1.234,56" or "1,234.56" into "1234.56". A trailing
// separator followed by one or two digits is the decimal point.
func normalizeNumber(num string) (string, bool) {
	last := strings.LastIndexAny(num, ".,")
	if last >= 0 {
		if digits := len(num) - last - 1; digits == 1 || digits == 2 {
			whole := stripSeparators(num[:last])
			return whole + "." + num[last+1:], true
		}
	}
	return stripSeparators(num), false
}

func stripSeparators(s string) string {
	return strings.NewReplacer(",", "", ".", "", " ", "").Replace(s)
}

// ParseAmount reads the first amount in s, accepting bare numbers. It returns the
// ISO currency when a symbol or code identifies one.
func ParseAmount(s string) (decimal.Decimal, string, bool) {
	found := findMoney(s)
	if len(found) == 0 {
		return decimal.Zero, "", false
	}
	return found[0].amount, found[0].currency, true
}

// totalLabels are tried in priority order.
var totalLabels = compileLabels(
	"grand total",
	"order total",
	"total charged",
	"amount charged",
	"total paid",
	"amount paid",
	"payment total",
	"invoice total",
	"total due",
	"amount due",
	"you paid",
	"total",
)

var notFinalTotal = regexp.MustCompile(`(?i)^\s*(savings|items?|before|discount|saved|weight)\b`)

func compileLabels(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, l := range labels {
		out = append(out, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(l)+`\b`))
	}
	return out
}

// FindTotal looks for the purchase total next to a total label. Amounts must carry a
// currency marker or decimal places so order numbers are not mistaken for totals.
func FindTotal(text string) (decimal.Decimal, string, bool) {
	lines := strings.Split(text, "\n")
	for _, label := range totalLabels {
		for i, line := range lines {
			loc := label.FindStringIndex(line)
			if loc == nil {
				continue
			}
			rest := line[loc[1]:]
			if notFinalTotal.MatchString(rest) {
				continue
			}
			if m, ok := firstPlausible(rest); ok {
				return m.amount.Abs(), m.currency, true
			}
			// Label and amount in adjacent table rows
			if strings.Trim(rest, ": \t") == "" && i+1 < len(lines) {
				if m, ok := firstPlausible(lines[i+1]); ok {
					return m.amount.Abs(), m.currency, true
				}
			}
		}
	}
	return decimal.Zero, "", false
}

func firstPlausible(s string) (money, bool) {
	for _, m := range findMoney(s) {
		if m.hasMarker || m.hasDecimals {
			return m, true
		}
	}
	return money{}, false
}

// DetectCurrency returns the first explicit currency found in text.
func DetectCurrency(text string) string {
	for _, m := range findMoney(text) {
		if m.currency != "" {
			return m.currency
		}
	}
	return ""
}

package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Amazon message sub-types.
const (
	AmazonOrder        = "order"
	AmazonRefund       = "refund"
	AmazonSubscription = "subscription"
	AmazonBusiness     = "business"
	AmazonDigital      = "digital"
)

var amazonConfidence = map[string]int{
	AmazonOrder:        95,
	AmazonRefund:       90,
	AmazonSubscription: 90,
	AmazonBusiness:     90,
	AmazonDigital:      85,
}

var amazonStorefronts = map[string]string{
	"amazon.com":    "USD",
	"amazon.ca":     "CAD",
	"amazon.com.mx": "MXN",
	"amazon.co.uk":  "GBP",
	"amazon.de":     "EUR",
	"amazon.fr":     "EUR",
	"amazon.it":     "EUR",
	"amazon.es":     "EUR",
	"amazon.nl":     "EUR",
	"amazon.co.jp":  "JPY",
	"amazon.in":     "INR",
	"amazon.com.au": "AUD",
}

var (
	amazonOrderIDRE = regexp.MustCompile(`\b((?:\d{3}|D\d{2})-\d{7}-\d{7})\b`)
	amazonRefundRE  = regexp.MustCompile(`(?i)\b(?:refund total|total refund|refund amount|amount refunded)\b[^\n\d]{0,20}((?:US\$|CA\$|\$|€|£|¥|₹)?\s?\d[\d.,]*\d)`)
)

// AmazonStrategy parses order, refund, subscription, business and digital mail
// from all Amazon storefronts.
type AmazonStrategy struct{}

// NewAmazonStrategy returns the Amazon vendor strategy.
func NewAmazonStrategy() *AmazonStrategy { return &AmazonStrategy{} }

// Name identifies the strategy in logs.
func (*AmazonStrategy) Name() string { return "amazon" }

// Domains lists every storefront domain.
func (*AmazonStrategy) Domains() []string {
	domains := make([]string, 0, len(amazonStorefronts))
	for d := range amazonStorefronts {
		domains = append(domains, d)
	}
	return domains
}

// Extract dispatches on the message sub-type.
func (*AmazonStrategy) Extract(_ context.Context, doc *Document) (*Extraction, error) {
	orderID := ""
	if m := amazonOrderIDRE.FindStringSubmatch(doc.Subject + "\n" + doc.Text); m != nil {
		orderID = m[1]
	}
	subType := amazonSubType(doc, orderID)

	merchant := "Amazon"
	if subType == AmazonBusiness {
		merchant = "Amazon Business"
	}

	ext := vendorBase(doc, merchant, subType, amazonConfidence[subType])
	ext.OrderID = orderID
	ext.Identified = containsAnyFold(doc.Subject,
		"your amazon order", "your amazon.", "order confirmation", "has been placed",
		"has shipped", "refund", "subscribe & save", "membership")

	if subType == AmazonRefund {
		if m := amazonRefundRE.FindStringSubmatch(doc.Text); m != nil {
			if amt, _, ok := ParseAmount(m[1]); ok {
				ext.Total = decimal.NewNullDecimal(amt.Abs())
			}
		}
	}
	if ext.Currency == "" {
		ext.Currency = suffixCurrency(doc.SenderDomain, amazonStorefronts)
	}

	if !ext.found() {
		return nil, nil //nolint:nilnil // nothing recognisable
	}
	return ext, nil
}

func amazonSubType(doc *Document, orderID string) string {
	subject := strings.ToLower(doc.Subject)
	text := subject + "\n" + strings.ToLower(doc.Text)
	switch {
	case strings.Contains(subject, "refund") || strings.Contains(text, "refund total"):
		return AmazonRefund
	case containsAnyFold(text, "subscribe & save", "subscribe and save", "membership fee", "prime membership", "your subscription"):
		return AmazonSubscription
	case containsAnyFold(text, "amazon business", "business order", "purchase order number"):
		return AmazonBusiness
	case strings.HasPrefix(orderID, "D") || containsAnyFold(text, "digital order", "kindle edition", "prime video", "audible"):
		return AmazonDigital
	}
	return AmazonOrder
}

package parser

import (
	"context"
	"regexp"
	"strings"
)

// PayPalPayment is the only PayPal sub-type.
const PayPalPayment = "payment"

var (
	paypalMerchantREs = []*regexp.Regexp{
		regexp.MustCompile(`(?im)receipt for your payment to\s+([^\n]+?)\s*$`),
		regexp.MustCompile(`(?im)you (?:sent a payment|paid)(?: of [^\n]+?)? to\s+([^\n]+?)\s*$`),
		regexp.MustCompile(`(?im)^\s*merchant\s*:?\s*\n?\s*([^\n]+?)\s*$`),
	}
	paypalTxnIDRE = regexp.MustCompile(`(?i)\btransaction id\s*:?\s*([A-Z0-9]{10,20})\b`)
)

// PayPalStrategy parses PayPal payment receipts, recovering the payee as merchant.
type PayPalStrategy struct{}

// NewPayPalStrategy returns the PayPal vendor strategy.
func NewPayPalStrategy() *PayPalStrategy { return &PayPalStrategy{} }

// Name identifies the strategy in logs.
func (*PayPalStrategy) Name() string { return "paypal" }

// Domains lists PayPal's regional senders.
func (*PayPalStrategy) Domains() []string {
	return []string{"paypal.com", "paypal.co.uk", "paypal.de", "paypal.fr", "paypal.ca", "paypal.com.au"}
}

// Extract reads a payment receipt.
func (*PayPalStrategy) Extract(_ context.Context, doc *Document) (*Extraction, error) {
	merchant, confidence := "PayPal", 85
	for _, re := range paypalMerchantREs {
		for _, src := range []string{doc.Subject, doc.Text} {
			if m := re.FindStringSubmatch(src); m != nil {
				if name := strings.TrimRight(strings.TrimSpace(m[1]), "."); IsValidMerchant(name) {
					merchant, confidence = name, 90
					break
				}
			}
		}
		if confidence == 90 {
			break
		}
	}

	ext := vendorBase(doc, merchant, PayPalPayment, confidence)
	ext.Identified = merchant != "PayPal"
	if m := paypalTxnIDRE.FindStringSubmatch(doc.Text); m != nil {
		ext.OrderID = m[1]
	}

	if !ext.found() {
		return nil, nil //nolint:nilnil // nothing recognisable
	}
	return ext, nil
}

package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Pattern strategy confidence by how the merchant was identified.
const (
	PatternConfidenceBody        = 80
	PatternConfidenceDomainTable = 70
	PatternConfidenceDisplayName = 60
)

var (
	bodyMerchantREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)thank(?:s| you) for (?:shopping|your order|your purchase|ordering) (?:at|with|from)\s+([A-Z0-9][\w&'.\- ]{1,40}?)(?:[.!,\n]|$)`),
		regexp.MustCompile(`(?i)your (?:receipt|order|purchase) (?:from|at|with)\s+([A-Z0-9][\w&'.\- ]{1,40}?)(?:[.!,\n]|$)`),
		regexp.MustCompile(`(?i)(?:payment|purchase) (?:to|at)\s+([A-Z0-9][\w&'.\- ]{1,40}?)(?:[.!,\n]|$)`),
		regexp.MustCompile(`(?im)^\s*(?:merchant|seller|sold by|store)\s*:\s*([A-Z0-9][\w&'.\- ]{1,40}?)\s*$`),
	}
	orderIDREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\border\s*(?:number|no\.?|#|id)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-]{3,30})`),
		regexp.MustCompile(`(?i)\b(?:confirmation|invoice|receipt)\s*(?:number|no\.?|#|id)\s*[:#]?\s*([A-Z0-9][A-Z0-9\-]{3,30})`),
		regexp.MustCompile(`(?i)\border\s*#\s*([A-Z0-9][A-Z0-9\-]{3,30})`),
	}
	hasDigit = regexp.MustCompile(`\d`)
)

// FindOrderID returns the first order, confirmation or invoice number in text.
func FindOrderID(text string) string {
	for _, re := range orderIDREs {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if hasDigit.MatchString(m[1]) {
				return strings.TrimRight(m[1], "-")
			}
		}
	}
	return ""
}

// PatternStrategy extracts receipts from free text with generic regexes.
type PatternStrategy struct{}

// Name identifies the strategy in logs.
func (PatternStrategy) Name() string { return "pattern" }

// Extract pulls amount, date, order id and merchant from the document text.
func (PatternStrategy) Extract(_ context.Context, doc *Document) (*Extraction, error) {
	ext := &Extraction{Method: model.MethodPattern}
	text := doc.Subject + "\n" + doc.Text

	if amt, cur, ok := FindTotal(text); ok {
		ext.Total = decimal.NewNullDecimal(amt)
		ext.Currency = cur
	}
	if ext.Currency == "" {
		ext.Currency = DetectCurrency(text)
	}
	ext.PurchaseDate = FindDate(doc.Text)
	ext.OrderID = FindOrderID(text)

	if name := bodyMerchant(text); name != "" {
		ext.Merchant = name
		ext.Confidence = PatternConfidenceBody
	} else if name, ok := DisplayNameForDomain(doc.SenderDomain); ok {
		ext.Merchant = name
		ext.Confidence = PatternConfidenceDomainTable
	} else if doc.Message != nil && IsValidMerchant(doc.Message.From.Name) {
		ext.Merchant = strings.TrimSpace(doc.Message.From.Name)
		ext.Confidence = PatternConfidenceDisplayName
	}
	return ext, nil
}

// viable requires both an amount and a plausible merchant.
func (PatternStrategy) viable(ext *Extraction) bool {
	return ext != nil && ext.Total.Valid && IsValidMerchant(ext.Merchant)
}

func bodyMerchant(text string) string {
	for _, re := range bodyMerchantREs {
		if m := re.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			if IsValidMerchant(name) {
				return name
			}
		}
	}
	return ""
}

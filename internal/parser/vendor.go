package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

var lineItemRE = regexp.MustCompile(`(?im)^\s*(.{3,80}?)\s+(?:quantity|qty)\s*:?\s*(\d{1,3})\s+((?:US\$|CA\$|\$|€|£|¥)\s?\d[\d.,]*)\s*$`)

// vendorBase fills the fields every vendor reads the same way.
func vendorBase(doc *Document, merchant, subType string, confidence int) *Extraction {
	text := doc.Subject + "\n" + doc.Text
	ext := &Extraction{
		Method:       model.MethodVendor,
		Merchant:     merchant,
		SubType:      subType,
		Confidence:   confidence,
		PurchaseDate: FindDate(doc.Text),
		Currency:     DetectCurrency(text),
		LineItems:    findLineItems(doc.Text),
	}
	if amt, cur, ok := FindTotal(text); ok {
		ext.Total = decimal.NewNullDecimal(amt)
		if cur != "" {
			ext.Currency = cur
		}
	}
	return ext
}

func findLineItems(text string) []model.LineItem {
	var items []model.LineItem
	for _, m := range lineItemRE.FindAllStringSubmatch(text, -1) {
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty <= 0 {
			continue
		}
		price, _, ok := ParseAmount(m[3])
		if !ok {
			continue
		}
		items = append(items, model.LineItem{
			Name:      strings.Trim(strings.TrimSpace(m[1]), `"`),
			Quantity:  qty,
			UnitPrice: price,
		})
	}
	return items
}

// IdentifiedConfidence is the confidence of a vendor match that recovered neither
// an amount nor an order id.
const IdentifiedConfidence = 85

// found reports whether a vendor recognised anything worth keeping. An extraction
// kept only on identification drops to IdentifiedConfidence.
func (e *Extraction) found() bool {
	if e == nil {
		return false
	}
	if e.Total.Valid || e.OrderID != "" {
		return true
	}
	if e.Identified {
		e.Confidence = min(e.Confidence, IdentifiedConfidence)
		return true
	}
	return false
}

func containsAnyFold(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// suffixCurrency maps a sender domain onto the currency of its storefront.
func suffixCurrency(domain string, table map[string]string) string {
	best, cur := 0, ""
	for suffix, c := range table {
		if (domain == suffix || strings.HasSuffix(domain, "."+suffix)) && len(suffix) > best {
			best, cur = len(suffix), c
		}
	}
	return cur
}

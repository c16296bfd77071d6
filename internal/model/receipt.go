package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseStatus records whether any strategy extracted usable data.
type ParseStatus string

// Parse status constants.
const (
	ParseStatusParsed      ParseStatus = "parsed"
	ParseStatusUnparseable ParseStatus = "unparseable"
)

// ParseMethod identifies the strategy that produced a receipt.
type ParseMethod string

// Parse method constants.
const (
	MethodStructuredMarkup ParseMethod = "structured_markup"
	MethodVendor           ParseMethod = "vendor"
	MethodPattern          ParseMethod = "pattern"
	MethodLLM              ParseMethod = "llm"
	MethodNone             ParseMethod = "none"
)

// DateSource records where a purchase date came from.
type DateSource string

// Date provenance constants.
const (
	DateFromBody       DateSource = "body"
	DateFromReceivedAt DateSource = "received_at"
)

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	CategoryHint string          `json:"category_hint,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
}

// ParsedReceipt is the durable purchase record derived from an accepted message.
type ParsedReceipt struct {
	ReceivedAt         time.Time
	PurchaseDate       *time.Time
	DeletedAt          *time.Time
	Total              decimal.NullDecimal
	MessageID          string
	ThreadID           string
	SenderAddress      string
	SenderDomain       string
	Subject            string
	Merchant           string
	MerchantNormalized string
	OrderID            string
	Currency           string
	DateSource         DateSource
	DedupHash          string
	ParseMethod        ParseMethod
	ParseStatus        ParseStatus
	ParseError         string
	LineItems          []LineItem
	ParseConfidence    int
}

// HasTotal reports whether a total amount was extracted.
func (r *ParsedReceipt) HasTotal() bool {
	return r.Total.Valid
}

// ComputeDedupHash derives the dedup hash from the identifying fields.
// It returns an empty string unless both the normalized merchant and total are present.
func (r *ParsedReceipt) ComputeDedupHash() string {
	if r.MerchantNormalized == "" || !r.Total.Valid {
		return ""
	}
	return DedupHash(r.MerchantNormalized, r.Total.Decimal, r.PurchaseDate, r.OrderID)
}

// DedupHash is a stable fingerprint over merchant, amount, date and order id.
// Absent parts contribute an empty string.
func DedupHash(merchant string, amount decimal.Decimal, date *time.Time, orderID string) string {
	dateStr := ""
	if date != nil {
		dateStr = date.Format("2006-01-02")
	}
	data := strings.Join([]string{
		merchant,
		amount.StringFixed(2),
		dateStr,
		orderID,
	}, "|")
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// Validate checks the status/hash invariants of a receipt.
func (r *ParsedReceipt) Validate() error {
	switch r.ParseStatus {
	case ParseStatusParsed:
		if r.ParseError != "" {
			return fmt.Errorf("parsed receipt %s carries parse error", r.MessageID)
		}
	case ParseStatusUnparseable:
		if r.DedupHash != "" {
			return fmt.Errorf("unparseable receipt %s carries dedup hash", r.MessageID)
		}
		if r.ParseError == "" {
			return fmt.Errorf("unparseable receipt %s missing parse error", r.MessageID)
		}
	default:
		return fmt.Errorf("receipt %s has invalid parse status %q", r.MessageID, r.ParseStatus)
	}
	if (r.DedupHash != "") != (r.MerchantNormalized != "" && r.Total.Valid) {
		return fmt.Errorf("receipt %s dedup hash does not match merchant/total presence", r.MessageID)
	}
	return nil
}

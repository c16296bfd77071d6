package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceReceipt is the enrichment source type used for links created from email receipts.
const SourceReceipt = "receipt"

// MatchMethod tags which row of the match decision table produced a candidate.
type MatchMethod string

// Match method constants.
const (
	MatchExactSameDayMerchant MatchMethod = "exact_same_day_merchant"
	MatchExactCloseMerchant   MatchMethod = "exact_close_day_merchant"
	MatchExactWideMerchant    MatchMethod = "exact_wide_day_merchant"
	MatchExactClose           MatchMethod = "exact_close_day"
	MatchFuzzyWideMerchant    MatchMethod = "fuzzy_wide_day_merchant"
	MatchExactWide            MatchMethod = "exact_wide_day"
	MatchFuzzyWide            MatchMethod = "fuzzy_wide_day"
	MatchFuzzyMerchant        MatchMethod = "fuzzy_merchant"
)

// LinkStatus distinguishes confirmed links from suggestions awaiting review.
type LinkStatus string

// Link status constants.
const (
	LinkSuggested LinkStatus = "suggested"
	LinkConfirmed LinkStatus = "confirmed"
)

// MatchCandidate is a scored receipt-to-transaction pairing produced by the matcher.
type MatchCandidate struct {
	ConversionRate    decimal.NullDecimal
	TransactionID     string
	Method            MatchMethod
	Confidence        int
	DayDiff           int
	CurrencyConverted bool
}

// EnrichmentLink is a persisted association between a receipt and a bank transaction.
type EnrichmentLink struct {
	CreatedAt         time.Time
	ConversionRate    decimal.NullDecimal
	ReceiptID         string
	TransactionID     string
	SourceType        string
	Method            MatchMethod
	Status            LinkStatus
	ID                int64
	Confidence        int
	IsPrimary         bool
	UserConfirmed     bool
	CurrencyConverted bool
}

// MerchantAlias maps a receipt merchant to the way a bank statement renders it.
type MerchantAlias struct {
	CreatedAt       time.Time
	ReceiptMerchant string
	BankMerchant    string
}

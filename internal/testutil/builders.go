package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// DefaultDate is the purchase date builders use unless told otherwise.
var DefaultDate = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

// ReceiptBuilder constructs parsed receipts for tests.
type ReceiptBuilder struct {
	r model.ParsedReceipt
}

// NewReceipt starts a parsed USD receipt dated DefaultDate.
func NewReceipt(messageID string) *ReceiptBuilder {
	d := DefaultDate
	return &ReceiptBuilder{r: model.ParsedReceipt{
		MessageID:       messageID,
		ThreadID:        "thread-" + messageID,
		SenderAddress:   "receipts@example.com",
		SenderDomain:    "example.com",
		Subject:         "Your receipt",
		ReceivedAt:      d.Add(9 * time.Hour),
		PurchaseDate:    &d,
		DateSource:      model.DateFromBody,
		Currency:        "USD",
		ParseMethod:     model.MethodPattern,
		ParseStatus:     model.ParseStatusParsed,
		ParseConfidence: 80,
	}}
}

// WithMerchant sets the raw merchant and a lowercased normalized form.
func (b *ReceiptBuilder) WithMerchant(raw, normalized string) *ReceiptBuilder {
	b.r.Merchant = raw
	b.r.MerchantNormalized = normalized
	return b
}

// WithTotal sets the total from a decimal string; it panics on malformed input.
func (b *ReceiptBuilder) WithTotal(amount string) *ReceiptBuilder {
	b.r.Total = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	return b
}

// WithCurrency sets the ISO currency code.
func (b *ReceiptBuilder) WithCurrency(code string) *ReceiptBuilder {
	b.r.Currency = code
	return b
}

// WithDate sets the purchase date.
func (b *ReceiptBuilder) WithDate(d time.Time) *ReceiptBuilder {
	b.r.PurchaseDate = &d
	return b
}

// WithOrderID sets the order id.
func (b *ReceiptBuilder) WithOrderID(id string) *ReceiptBuilder {
	b.r.OrderID = id
	return b
}

// Unparseable turns the receipt into an unparseable record with the given reason.
func (b *ReceiptBuilder) Unparseable(reason string) *ReceiptBuilder {
	b.r.ParseStatus = model.ParseStatusUnparseable
	b.r.ParseMethod = model.MethodNone
	b.r.ParseError = reason
	b.r.Merchant = ""
	b.r.MerchantNormalized = ""
	b.r.Total = decimal.NullDecimal{}
	b.r.ParseConfidence = 0
	return b
}

// Build returns the receipt with its dedup hash computed.
func (b *ReceiptBuilder) Build() *model.ParsedReceipt {
	r := b.r
	r.DedupHash = r.ComputeDedupHash()
	return &r
}

// TransactionBuilder constructs bank transactions for tests.
type TransactionBuilder struct {
	t model.Transaction
}

// NewTransaction starts a USD transaction on DefaultDate for user "user-1".
func NewTransaction(id string) *TransactionBuilder {
	return &TransactionBuilder{t: model.Transaction{
		ID:        id,
		AccountID: "acct-1",
		UserID:    "user-1",
		Date:      DefaultDate,
		Currency:  "USD",
	}}
}

// WithAmount sets the absolute amount from a decimal string.
func (b *TransactionBuilder) WithAmount(amount string) *TransactionBuilder {
	b.t.Amount = decimal.RequireFromString(amount).Abs()
	return b
}

// WithDate sets the posting date.
func (b *TransactionBuilder) WithDate(d time.Time) *TransactionBuilder {
	b.t.Date = d
	return b
}

// OnDay shifts the posting date by n days from DefaultDate.
func (b *TransactionBuilder) OnDay(n int) *TransactionBuilder {
	b.t.Date = DefaultDate.AddDate(0, 0, n)
	return b
}

// WithMerchant sets the cleaned merchant name.
func (b *TransactionBuilder) WithMerchant(name string) *TransactionBuilder {
	b.t.MerchantName = name
	return b
}

// WithDescription sets the raw statement description.
func (b *TransactionBuilder) WithDescription(desc string) *TransactionBuilder {
	b.t.Description = desc
	return b
}

// WithCurrency sets the settlement currency.
func (b *TransactionBuilder) WithCurrency(code string) *TransactionBuilder {
	b.t.Currency = code
	return b
}

// WithUser sets the owning user.
func (b *TransactionBuilder) WithUser(userID string) *TransactionBuilder {
	b.t.UserID = userID
	return b
}

// Build returns the transaction with its hash computed.
func (b *TransactionBuilder) Build() model.Transaction {
	t := b.t
	t.Hash = t.GenerateHash()
	return t
}

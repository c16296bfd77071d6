package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single bank transaction as reported by a transaction source.
// Receipts are reconciled against these; this subsystem never mutates them.
type Transaction struct {
	Date         time.Time
	Amount       decimal.Decimal // Absolute settlement amount
	ID           string
	AccountID    string
	UserID       string
	Currency     string // ISO 4217 settlement currency
	Description  string // Raw statement description, may carry FX details
	MerchantName string // Cleaned merchant name when the source provides one
	Hash         string
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.MerchantName,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

package plaid

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// MockClient is a mock transaction source for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	ListTransactionsFn func(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error)

	// Transactions are served, filtered by user and date, when no Fn is set.
	Transactions []model.Transaction

	// Call tracking
	ListTransactionsCalls []ListTransactionsCall

	mu sync.Mutex
}

// ListTransactionsCall records the parameters of a ListTransactions call.
type ListTransactionsCall struct {
	From   time.Time
	To     time.Time
	UserID string
}

// NewMockClient creates a new mock transaction source.
func NewMockClient(txns ...model.Transaction) *MockClient {
	return &MockClient{Transactions: txns}
}

// ListTransactions implements service.TransactionSource.
func (m *MockClient) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	m.ListTransactionsCalls = append(m.ListTransactionsCalls, ListTransactionsCall{UserID: userID, From: from, To: to})
	fn := m.ListTransactionsFn
	txns := m.Transactions
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, userID, from, to)
	}

	var out []model.Transaction
	for _, t := range txns {
		if userID != "" && t.UserID != userID {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListTransactionsCalls = nil
}

// Ensure MockClient implements the transaction source interface.
var _ service.TransactionSource = (*MockClient)(nil)

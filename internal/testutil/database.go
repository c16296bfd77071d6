// Package testutil provides test utilities for the receipts-must-flow project:
// an isolated in-memory database and fluent builders for receipts and transactions.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedTransactions(testutil.NewTransaction("t1").WithAmount("12.34").Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedTransactions stores bank transactions or fails the test.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedReceipts stores receipts or fails the test.
func (db *TestDB) SeedReceipts(receipts ...*model.ParsedReceipt) {
	db.t.Helper()
	for _, r := range receipts {
		if err := db.Storage.SaveReceipt(context.Background(), r); err != nil {
			db.t.Fatalf("failed to seed receipt %s: %v", r.MessageID, err)
		}
	}
}

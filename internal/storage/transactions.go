package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// SaveTransactions upserts transactions pulled from a transaction source.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, hash, account_id, user_id, date, amount, currency, description, merchant_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hash = excluded.hash,
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			description = excluded.description,
			merchant_name = excluded.merchant_name
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		hash := txn.Hash
		if hash == "" {
			hash = txn.GenerateHash()
		}
		_, err := stmt.ExecContext(ctx,
			txn.ID, hash, txn.AccountID, txn.UserID, txn.Date.UTC(),
			txn.Amount.Abs().String(), txn.Currency, txn.Description, txn.MerchantName)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// ListTransactions returns a user's transactions dated within [from, to].
func (s *SQLiteStorage) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}

	query := `
		SELECT id, hash, account_id, user_id, date, amount, currency, description, merchant_name
		FROM transactions
		WHERE date >= ? AND date <= ?`
	args := []any{from.UTC(), to.UTC()}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY date, id"

	return s.queryTransactions(ctx, s.db, query, args...)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, q queryable, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var (
			txn                               model.Transaction
			hash, accountID, userID, currency sql.NullString
			description, merchantName         sql.NullString
		)
		if err := rows.Scan(&txn.ID, &hash, &accountID, &userID, &txn.Date, &txn.Amount,
			&currency, &description, &merchantName); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Hash = hash.String
		txn.AccountID = accountID.String
		txn.UserID = userID.String
		txn.Currency = currency.String
		txn.Description = description.String
		txn.MerchantName = merchantName.String
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

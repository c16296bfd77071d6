package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

const linkColumns = `id, receipt_id, transaction_id, source_type, confidence, method, status,
	is_primary, user_confirmed, currency_converted, conversion_rate, created_at`

// CreateLink inserts an enrichment link. An existing (receipt, transaction, source type)
// tuple yields common.ErrDuplicateEntry. A requested primary flag is dropped when the
// transaction already has a primary link for the same source type.
func (s *SQLiteStorage) CreateLink(ctx context.Context, link *model.EnrichmentLink) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLink(link); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if link.IsPrimary {
		var hasPrimary bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM enrichment_links
				WHERE transaction_id = ? AND source_type = ? AND is_primary = 1)
		`, link.TransactionID, link.SourceType).Scan(&hasPrimary)
		if err != nil {
			return fmt.Errorf("failed to check primary link: %w", err)
		}
		if hasPrimary {
			slog.Debug("Transaction already has a primary link, storing as secondary",
				"transaction_id", link.TransactionID,
				"receipt_id", link.ReceiptID)
			link.IsPrimary = false
		}
	}

	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO enrichment_links (receipt_id, transaction_id, source_type, confidence, method, status,
			is_primary, user_confirmed, currency_converted, conversion_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, link.ReceiptID, link.TransactionID, link.SourceType, link.Confidence, string(link.Method),
		string(link.Status), link.IsPrimary, link.UserConfirmed, link.CurrencyConverted,
		link.ConversionRate, link.CreatedAt)
	if err != nil {
		return mapConstraintError(err, "enrichment link")
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		link.ID = id
	}

	return tx.Commit()
}

// ListLinksForReceipt returns links for a receipt, primary first.
func (s *SQLiteStorage) ListLinksForReceipt(ctx context.Context, receiptID string) ([]model.EnrichmentLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM enrichment_links
		WHERE receipt_id = ? ORDER BY is_primary DESC, confidence DESC, id`, receiptID)
}

// ListLinksForTransaction returns every link pointing at a transaction across source types.
func (s *SQLiteStorage) ListLinksForTransaction(ctx context.Context, transactionID string) ([]model.EnrichmentLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM enrichment_links
		WHERE transaction_id = ? ORDER BY source_type, is_primary DESC, confidence DESC, id`, transactionID)
}

// ListLinksByStatus returns links in the given status.
func (s *SQLiteStorage) ListLinksByStatus(ctx context.Context, status model.LinkStatus) ([]model.EnrichmentLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM enrichment_links
		WHERE status = ? ORDER BY created_at, id`, string(status))
}

// ConfirmLink marks a link as confirmed by the user.
func (s *SQLiteStorage) ConfirmLink(ctx context.Context, receiptID, transactionID, sourceType string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_links SET user_confirmed = 1, status = ?
		WHERE receipt_id = ? AND transaction_id = ? AND source_type = ?
	`, string(model.LinkConfirmed), receiptID, transactionID, sourceType)
	if err != nil {
		return fmt.Errorf("failed to confirm link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("link %s -> %s: %w", receiptID, transactionID, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryLinks(ctx context.Context, query string, args ...any) ([]model.EnrichmentLink, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.EnrichmentLink
	for rows.Next() {
		var (
			link           model.EnrichmentLink
			method, status string
			createdAt      sql.NullTime
		)
		if err := rows.Scan(&link.ID, &link.ReceiptID, &link.TransactionID, &link.SourceType,
			&link.Confidence, &method, &status, &link.IsPrimary, &link.UserConfirmed,
			&link.CurrencyConverted, &link.ConversionRate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		link.Method = model.MatchMethod(method)
		link.Status = model.LinkStatus(status)
		link.CreatedAt = createdAt.Time
		links = append(links, link)
	}
	return links, rows.Err()
}

// SaveAlias records a receipt merchant -> bank merchant alias. Existing aliases are kept.
func (s *SQLiteStorage) SaveAlias(ctx context.Context, alias model.MerchantAlias) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(alias.ReceiptMerchant, "receiptMerchant"); err != nil {
		return err
	}
	if err := validateString(alias.BankMerchant, "bankMerchant"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_aliases (receipt_merchant, bank_merchant, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(receipt_merchant, bank_merchant) DO NOTHING
	`, alias.ReceiptMerchant, alias.BankMerchant, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}
	return nil
}

// ListAliases returns all learned merchant aliases.
func (s *SQLiteStorage) ListAliases(ctx context.Context) ([]model.MerchantAlias, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt_merchant, bank_merchant, created_at FROM merchant_aliases
		ORDER BY receipt_merchant, bank_merchant
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var aliases []model.MerchantAlias
	for rows.Next() {
		var (
			alias     model.MerchantAlias
			createdAt sql.NullTime
		)
		if err := rows.Scan(&alias.ReceiptMerchant, &alias.BankMerchant, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		alias.CreatedAt = createdAt.Time
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

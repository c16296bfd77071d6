package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const receiptColumns = `message_id, thread_id, sender_address, sender_domain, subject, received_at,
	merchant, merchant_normalized, order_id, total, currency, purchase_date, date_source,
	line_items, dedup_hash, parse_method, parse_confidence, parse_status, parse_error, deleted_at`

// SaveReceipt inserts a new receipt. A receipt for the same message id yields common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveReceipt(ctx context.Context, receipt *model.ParsedReceipt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReceipt(receipt); err != nil {
		return err
	}
	return s.writeReceipt(ctx, s.db, receipt, false)
}

// UpsertReceipt overwrites the receipt stored for the same message id.
func (s *SQLiteStorage) UpsertReceipt(ctx context.Context, receipt *model.ParsedReceipt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReceipt(receipt); err != nil {
		return err
	}
	return s.writeReceipt(ctx, s.db, receipt, true)
}

func (s *SQLiteStorage) writeReceipt(ctx context.Context, q queryable, r *model.ParsedReceipt, overwrite bool) error {
	items, err := json.Marshal(r.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	var purchaseDate sql.NullTime
	if r.PurchaseDate != nil {
		purchaseDate = sql.NullTime{Time: *r.PurchaseDate, Valid: true}
	}

	query := `INSERT INTO receipts (` + receiptColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`
	if overwrite {
		query += `
		ON CONFLICT(message_id) DO UPDATE SET
			merchant = excluded.merchant,
			merchant_normalized = excluded.merchant_normalized,
			order_id = excluded.order_id,
			total = excluded.total,
			currency = excluded.currency,
			purchase_date = excluded.purchase_date,
			date_source = excluded.date_source,
			line_items = excluded.line_items,
			dedup_hash = excluded.dedup_hash,
			parse_method = excluded.parse_method,
			parse_confidence = excluded.parse_confidence,
			parse_status = excluded.parse_status,
			parse_error = excluded.parse_error,
			updated_at = excluded.updated_at`
	}

	_, err = q.ExecContext(ctx, query,
		r.MessageID,
		nullString(r.ThreadID),
		nullString(r.SenderAddress),
		nullString(r.SenderDomain),
		nullString(r.Subject),
		r.ReceivedAt,
		nullString(r.Merchant),
		nullString(r.MerchantNormalized),
		nullString(r.OrderID),
		r.Total,
		nullString(r.Currency),
		purchaseDate,
		nullString(string(r.DateSource)),
		string(items),
		nullString(r.DedupHash),
		string(r.ParseMethod),
		r.ParseConfidence,
		string(r.ParseStatus),
		nullString(r.ParseError),
		time.Now(),
	)
	return mapConstraintError(err, "receipt")
}

// GetReceipt loads a receipt by provider message id.
func (s *SQLiteStorage) GetReceipt(ctx context.Context, messageID string) (*model.ParsedReceipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE message_id = ?`, messageID)
	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", messageID, common.ErrNotFound)
	}
	return receipt, err
}

// ReceiptExists reports whether a receipt was already stored for the message id.
// Soft-deleted receipts still count so a sync never resurrects them.
func (s *SQLiteStorage) ReceiptExists(ctx context.Context, messageID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM receipts WHERE message_id = ?)`, messageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check receipt existence: %w", err)
	}
	return exists, nil
}

// FindReceiptByHash returns the oldest receipt carrying the dedup hash.
func (s *SQLiteStorage) FindReceiptByHash(ctx context.Context, hash string) (*model.ParsedReceipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts
		WHERE dedup_hash = ? ORDER BY created_at, message_id LIMIT 1`, hash)
	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt with hash %s: %w", hash, common.ErrNotFound)
	}
	return receipt, err
}

// ListReceipts returns receipts ordered by received time.
func (s *SQLiteStorage) ListReceipts(ctx context.Context, filter service.ReceiptFilter) ([]model.ParsedReceipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if !filter.WithDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Status != "" {
		where = append(where, "parse_status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Unmatched {
		where = append(where, "total IS NOT NULL",
			"NOT EXISTS (SELECT 1 FROM enrichment_links l WHERE l.receipt_id = receipts.message_id)")
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY received_at, message_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []model.ParsedReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *receipt)
	}
	return receipts, rows.Err()
}

// SoftDeleteReceipt hides a receipt from listings without removing it.
func (s *SQLiteStorage) SoftDeleteReceipt(ctx context.Context, messageID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE receipts SET deleted_at = ?, updated_at = ? WHERE message_id = ? AND deleted_at IS NULL`,
		time.Now(), time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("receipt %s: %w", messageID, common.ErrNotFound)
	}
	return nil
}

// SaveAttachment records an attachment stored in the object store. Re-recording the same key is a no-op.
func (s *SQLiteStorage) SaveAttachment(ctx context.Context, att *model.AttachmentRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if att == nil {
		return fmt.Errorf("%w: attachment", ErrNilParameter)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipt_attachments (message_id, object_key, content_hash, etag, filename, mime_type, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, object_key) DO NOTHING
	`, att.MessageID, att.Key, att.ContentHash, nullString(att.ETag), nullString(att.Filename),
		nullString(att.MimeType), att.Size)
	return mapConstraintError(err, "attachment")
}

// ListAttachments returns attachments recorded for a message.
func (s *SQLiteStorage) ListAttachments(ctx context.Context, messageID string) ([]model.AttachmentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, object_key, content_hash, etag, filename, mime_type, size
		FROM receipt_attachments WHERE message_id = ? ORDER BY object_key
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AttachmentRecord
	for rows.Next() {
		var (
			att                      model.AttachmentRecord
			etag, filename, mimeType sql.NullString
		)
		if err := rows.Scan(&att.MessageID, &att.Key, &att.ContentHash, &etag, &filename, &mimeType, &att.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		att.ETag, att.Filename, att.MimeType = etag.String, filename.String, mimeType.String
		out = append(out, att)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*model.ParsedReceipt, error) {
	var (
		r                                          model.ParsedReceipt
		threadID, senderAddress, senderDomain      sql.NullString
		subject, merchant, merchantNorm, orderID   sql.NullString
		currency, dateSource, lineItems, dedupHash sql.NullString
		parseMethod, parseStatus                   string
		parseError                                 sql.NullString
		purchaseDate, deletedAt                    sql.NullTime
	)

	err := row.Scan(
		&r.MessageID, &threadID, &senderAddress, &senderDomain, &subject, &r.ReceivedAt,
		&merchant, &merchantNorm, &orderID, &r.Total, &currency, &purchaseDate, &dateSource,
		&lineItems, &dedupHash, &parseMethod, &r.ParseConfidence, &parseStatus, &parseError, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	r.ThreadID = threadID.String
	r.SenderAddress = senderAddress.String
	r.SenderDomain = senderDomain.String
	r.Subject = subject.String
	r.Merchant = merchant.String
	r.MerchantNormalized = merchantNorm.String
	r.OrderID = orderID.String
	r.Currency = currency.String
	r.DateSource = model.DateSource(dateSource.String)
	r.DedupHash = dedupHash.String
	r.ParseMethod = model.ParseMethod(parseMethod)
	r.ParseStatus = model.ParseStatus(parseStatus)
	r.ParseError = parseError.String
	if purchaseDate.Valid {
		d := purchaseDate.Time
		r.PurchaseDate = &d
	}
	if deletedAt.Valid {
		d := deletedAt.Time
		r.DeletedAt = &d
	}
	if lineItems.Valid && lineItems.String != "" && lineItems.String != "null" {
		if err := json.Unmarshal([]byte(lineItems.String), &r.LineItems); err != nil {
			slog.Warn("Failed to parse line items JSON", "error", err, "message_id", r.MessageID)
		}
	}

	return &r, nil
}

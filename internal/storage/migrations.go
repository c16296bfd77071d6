package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS receipts (
					message_id TEXT PRIMARY KEY,
					thread_id TEXT,
					sender_address TEXT,
					sender_domain TEXT,
					subject TEXT,
					received_at DATETIME NOT NULL,
					merchant TEXT,
					merchant_normalized TEXT,
					order_id TEXT,
					total TEXT,
					currency TEXT,
					purchase_date DATETIME,
					date_source TEXT,
					line_items TEXT,
					dedup_hash TEXT,
					parse_method TEXT NOT NULL,
					parse_confidence INTEGER NOT NULL DEFAULT 0,
					parse_status TEXT NOT NULL,
					parse_error TEXT,
					deleted_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_receipts_dedup_hash ON receipts(dedup_hash)`,
				`CREATE INDEX idx_receipts_purchase_date ON receipts(purchase_date)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT,
					account_id TEXT,
					user_id TEXT,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT,
					description TEXT,
					merchant_name TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,

				`CREATE TABLE IF NOT EXISTS sync_jobs (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					mode TEXT NOT NULL,
					status TEXT NOT NULL,
					total_messages INTEGER DEFAULT 0,
					processed INTEGER DEFAULT 0,
					parsed INTEGER DEFAULT 0,
					unparseable INTEGER DEFAULT 0,
					failed INTEGER DEFAULT 0,
					duplicates INTEGER DEFAULT 0,
					filtered_out INTEGER DEFAULT 0,
					provider_cursor TEXT,
					error_message TEXT,
					fell_back_to_full BOOLEAN DEFAULT 0,
					created_at DATETIME NOT NULL,
					started_at DATETIME,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_sync_jobs_account ON sync_jobs(account_id, created_at)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add enrichment links and merchant aliases",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS enrichment_links (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					receipt_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					source_type TEXT NOT NULL,
					confidence INTEGER NOT NULL,
					method TEXT NOT NULL,
					status TEXT NOT NULL,
					is_primary BOOLEAN DEFAULT 0,
					user_confirmed BOOLEAN DEFAULT 0,
					currency_converted BOOLEAN DEFAULT 0,
					conversion_rate TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(receipt_id, transaction_id, source_type)
				)`,
				`CREATE INDEX idx_links_transaction ON enrichment_links(transaction_id, source_type)`,
				// At most one primary link per transaction and source type
				`CREATE UNIQUE INDEX idx_links_primary ON enrichment_links(transaction_id, source_type) WHERE is_primary = 1`,

				`CREATE TABLE IF NOT EXISTS merchant_aliases (
					receipt_merchant TEXT NOT NULL,
					bank_merchant TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (receipt_merchant, bank_merchant)
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add sync job progress log and receipt attachments",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS sync_job_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					job_id TEXT NOT NULL,
					note TEXT,
					total_messages INTEGER DEFAULT 0,
					processed INTEGER DEFAULT 0,
					parsed INTEGER DEFAULT 0,
					unparseable INTEGER DEFAULT 0,
					failed INTEGER DEFAULT 0,
					duplicates INTEGER DEFAULT 0,
					filtered_out INTEGER DEFAULT 0,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (job_id) REFERENCES sync_jobs(id)
				)`,
				`CREATE INDEX idx_sync_job_events_job ON sync_job_events(job_id)`,

				`CREATE TABLE IF NOT EXISTS receipt_attachments (
					message_id TEXT NOT NULL,
					object_key TEXT NOT NULL,
					content_hash TEXT NOT NULL,
					etag TEXT,
					filename TEXT,
					mime_type TEXT,
					size INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (message_id, object_key)
				)`,
			})
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version currently applied to the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

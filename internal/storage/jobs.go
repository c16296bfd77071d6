package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

const jobColumns = `id, account_id, mode, status, total_messages, processed, parsed, unparseable,
	failed, duplicates, filtered_out, provider_cursor, error_message, fell_back_to_full,
	created_at, started_at, completed_at`

// CreateJob inserts a new sync job.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *model.SyncJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobArgs(job)...)
	if err != nil {
		return mapConstraintError(err, "sync job")
	}
	return nil
}

// UpdateJob persists the mutable state of a job: status, mode, counters, cursor and timestamps.
func (s *SQLiteStorage) UpdateJob(ctx context.Context, job *model.SyncJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			mode = ?, status = ?, total_messages = ?, processed = ?, parsed = ?, unparseable = ?,
			failed = ?, duplicates = ?, filtered_out = ?, provider_cursor = ?, error_message = ?,
			fell_back_to_full = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(job.Mode), string(job.Status), job.TotalMessages, job.Processed, job.Parsed,
		job.Unparseable, job.Failed, job.Duplicates, job.FilteredOut,
		nullString(job.ProviderCursor), nullString(job.ErrorMessage), job.FellBackToFull,
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, common.ErrNotFound)
	}
	return nil
}

// GetJob loads a job by id.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.SyncJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return job, err
}

// ListJobs returns the most recent jobs, newest first. An empty account id lists all accounts.
func (s *SQLiteStorage) ListJobs(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// LatestCursor returns the provider cursor stored by the most recent completed job.
func (s *SQLiteStorage) LatestCursor(ctx context.Context, accountID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return "", err
	}

	var cursor string
	err := s.db.QueryRowContext(ctx, `
		SELECT provider_cursor FROM sync_jobs
		WHERE account_id = ? AND status = ? AND provider_cursor IS NOT NULL AND provider_cursor != ''
		ORDER BY completed_at DESC, created_at DESC
		LIMIT 1
	`, accountID, string(model.JobCompleted)).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("cursor for %s: %w", accountID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cursor: %w", err)
	}
	return cursor, nil
}

// AppendJobEvent records a progress snapshot for a job.
func (s *SQLiteStorage) AppendJobEvent(ctx context.Context, event *model.SyncJobEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if err := validateString(event.JobID, "jobID"); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_job_events (job_id, note, total_messages, processed, parsed, unparseable,
			failed, duplicates, filtered_out, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.JobID, event.Note, event.TotalMessages, event.Processed, event.Parsed, event.Unparseable,
		event.Failed, event.Duplicates, event.FilteredOut, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append job event: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		event.ID = id
	}
	return nil
}

// ListJobEvents returns a job's progress log in insertion order.
func (s *SQLiteStorage) ListJobEvents(ctx context.Context, jobID string) ([]model.SyncJobEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, note, total_messages, processed, parsed, unparseable,
			failed, duplicates, filtered_out, created_at
		FROM sync_job_events WHERE job_id = ? ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.SyncJobEvent
	for rows.Next() {
		var (
			ev   model.SyncJobEvent
			note sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &note, &ev.TotalMessages, &ev.Processed, &ev.Parsed,
			&ev.Unparseable, &ev.Failed, &ev.Duplicates, &ev.FilteredOut, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		ev.Note = note.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func jobArgs(job *model.SyncJob) []any {
	return []any{
		job.ID, job.AccountID, string(job.Mode), string(job.Status),
		job.TotalMessages, job.Processed, job.Parsed, job.Unparseable,
		job.Failed, job.Duplicates, job.FilteredOut,
		nullString(job.ProviderCursor), nullString(job.ErrorMessage), job.FellBackToFull,
		job.CreatedAt, nullTime(job.StartedAt), nullTime(job.CompletedAt),
	}
}

func scanJob(row scanner) (*model.SyncJob, error) {
	var (
		job                model.SyncJob
		mode, status       string
		cursor, errMsg     sql.NullString
		started, completed sql.NullTime
	)
	err := row.Scan(&job.ID, &job.AccountID, &mode, &status,
		&job.TotalMessages, &job.Processed, &job.Parsed, &job.Unparseable,
		&job.Failed, &job.Duplicates, &job.FilteredOut,
		&cursor, &errMsg, &job.FellBackToFull,
		&job.CreatedAt, &started, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Mode = model.SyncMode(mode)
	job.Status = model.JobStatus(status)
	job.ProviderCursor = cursor.String
	job.ErrorMessage = errMsg.String
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if completed.Valid {
		job.CompletedAt = &completed.Time
	}
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

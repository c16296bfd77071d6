// Package storage provides the data persistence layer for the receipts application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrInvalidReceipt   = errors.New("invalid receipt")
	ErrInvalidLink      = errors.New("invalid enrichment link")
	ErrInvalidJob       = errors.New("invalid sync job")
	ErrInvalidTxn       = errors.New("invalid transaction")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateReceipt(r *model.ParsedReceipt) error {
	if r == nil {
		return fmt.Errorf("%w: receipt", ErrNilParameter)
	}
	if strings.TrimSpace(r.MessageID) == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidReceipt)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	return nil
}

func validateLink(link *model.EnrichmentLink) error {
	if link == nil {
		return fmt.Errorf("%w: link", ErrNilParameter)
	}
	if link.ReceiptID == "" || link.TransactionID == "" || link.SourceType == "" {
		return fmt.Errorf("%w: receipt, transaction and source type are required", ErrInvalidLink)
	}
	if link.Confidence < 0 || link.Confidence > 100 {
		return fmt.Errorf("%w: confidence must be between 0 and 100", ErrInvalidLink)
	}
	switch link.Status {
	case model.LinkSuggested, model.LinkConfirmed:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidLink, link.Status)
	}
	if link.IsPrimary && link.Status != model.LinkConfirmed {
		return fmt.Errorf("%w: only confirmed links can be primary", ErrInvalidLink)
	}
	return nil
}

func validateJob(job *model.SyncJob) error {
	if job == nil {
		return fmt.Errorf("%w: job", ErrNilParameter)
	}
	if job.ID == "" || job.AccountID == "" {
		return fmt.Errorf("%w: id and account are required", ErrInvalidJob)
	}
	switch job.Mode {
	case model.SyncFull, model.SyncIncremental:
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidJob, job.Mode)
	}
	switch job.Status {
	case model.JobPending, model.JobRunning, model.JobCompleted, model.JobFailed:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidJob, job.Status)
	}
	return nil
}

func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i, txn := range transactions {
		if txn.ID == "" {
			return fmt.Errorf("transaction at index %d: %w: missing ID", i, ErrInvalidTxn)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("transaction at index %d: %w: missing date", i, ErrInvalidTxn)
		}
	}
	return nil
}

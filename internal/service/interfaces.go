// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// MessagePage is one page of provider message ids.
type MessagePage struct {
	NextPageToken string
	IDs           []string
}

// ChangeSet is the result of an incremental provider query.
type ChangeSet struct {
	NewCursor string
	NewIDs    []string
}

// MailProvider is the mail provider collaborator. Implementations return
// common.ErrRateLimit, common.ErrServerError, common.ErrAuth and
// common.ErrCursorExpired so callers can apply the retry policy.
type MailProvider interface {
	ListMessageIDs(ctx context.Context, query, pageToken string) (MessagePage, error)
	FetchMessage(ctx context.Context, id string) (*model.InboundMessage, error)
	FetchChangesSince(ctx context.Context, cursor string) (ChangeSet, error)
	FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	CurrentCursor(ctx context.Context) (string, error)
}

// TransactionSource lists bank transactions. It is read-only from this subsystem.
type TransactionSource interface {
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	ContentHash string
	ETag        string
	Size        int64
}

// ObjectStore keeps binary attachments, content-addressed by hash.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, key string, metadata map[string]string) (ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Completer is a black-box LLM completion call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	Status      model.ParseStatus
	Limit       int
	Unmatched   bool // Only receipts with a total and no enrichment links
	WithDeleted bool
}

// ReceiptStore persists parsed receipts keyed by provider message id.
type ReceiptStore interface {
	// SaveReceipt inserts a new receipt; returns common.ErrDuplicateEntry if the message id exists.
	SaveReceipt(ctx context.Context, receipt *model.ParsedReceipt) error
	// UpsertReceipt overwrites a receipt for the same message id (re-parse).
	UpsertReceipt(ctx context.Context, receipt *model.ParsedReceipt) error
	GetReceipt(ctx context.Context, messageID string) (*model.ParsedReceipt, error)
	ReceiptExists(ctx context.Context, messageID string) (bool, error)
	FindReceiptByHash(ctx context.Context, hash string) (*model.ParsedReceipt, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]model.ParsedReceipt, error)
	SoftDeleteReceipt(ctx context.Context, messageID string) error
	SaveAttachment(ctx context.Context, att *model.AttachmentRecord) error
	ListAttachments(ctx context.Context, messageID string) ([]model.AttachmentRecord, error)
}

// LinkStore persists enrichment links.
type LinkStore interface {
	// CreateLink inserts a link; returns common.ErrDuplicateEntry on the unique tuple.
	// A requested primary flag is dropped when the transaction already has a primary
	// link for the same source type.
	CreateLink(ctx context.Context, link *model.EnrichmentLink) error
	ListLinksForReceipt(ctx context.Context, receiptID string) ([]model.EnrichmentLink, error)
	ListLinksForTransaction(ctx context.Context, transactionID string) ([]model.EnrichmentLink, error)
	ListLinksByStatus(ctx context.Context, status model.LinkStatus) ([]model.EnrichmentLink, error)
	ConfirmLink(ctx context.Context, receiptID, transactionID, sourceType string) error
}

// AliasStore persists learned merchant aliases.
type AliasStore interface {
	SaveAlias(ctx context.Context, alias model.MerchantAlias) error
	ListAliases(ctx context.Context) ([]model.MerchantAlias, error)
}

// JobStore persists sync jobs and their progress log.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.SyncJob) error
	UpdateJob(ctx context.Context, job *model.SyncJob) error
	GetJob(ctx context.Context, id string) (*model.SyncJob, error)
	ListJobs(ctx context.Context, accountID string, limit int) ([]model.SyncJob, error)
	// LatestCursor returns the cursor of the most recent completed job for the account,
	// or common.ErrNotFound.
	LatestCursor(ctx context.Context, accountID string) (string, error)
	AppendJobEvent(ctx context.Context, event *model.SyncJobEvent) error
	ListJobEvents(ctx context.Context, jobID string) ([]model.SyncJobEvent, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	ReceiptStore
	LinkStore
	AliasStore
	JobStore
	TransactionSource

	SaveTransactions(ctx context.Context, transactions []model.Transaction) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

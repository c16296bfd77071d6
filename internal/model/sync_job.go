package model

import "time"

// SyncMode selects how the orchestrator enumerates messages.
type SyncMode string

// Sync modes.
const (
	SyncFull        SyncMode = "full"
	SyncIncremental SyncMode = "incremental"
)

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

// Job states. Completed and failed are terminal.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SyncCounters are the per-outcome progress counters of a job.
type SyncCounters struct {
	TotalMessages int
	Processed     int
	Parsed        int
	Unparseable   int
	Failed        int
	Duplicates    int
	FilteredOut   int
}

// SyncJob tracks one pull of messages from a mail account.
type SyncJob struct {
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ID             string
	AccountID      string
	Mode           SyncMode
	Status         JobStatus
	ErrorMessage   string
	ProviderCursor string
	SyncCounters
	FellBackToFull bool
}

// SyncJobEvent is an append-only progress snapshot for auditing a job.
type SyncJobEvent struct {
	CreatedAt time.Time
	JobID     string
	Note      string
	SyncCounters
	ID int64
}

// AttachmentRecord points at an attachment persisted in the object store.
type AttachmentRecord struct {
	MessageID   string
	Key         string
	ContentHash string
	ETag        string
	Filename    string
	MimeType    string
	Size        int64
}

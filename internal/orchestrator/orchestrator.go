// Package orchestrator runs sync jobs that pull messages from a mail provider through
// classification, parsing and persistence, and triggers matching once a job completes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-receipts-must-flow/internal/classifier"
	"github.com/Veraticus/the-receipts-must-flow/internal/matcher"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Defaults for Config fields left at zero.
const (
	DefaultWindowDays        = 365
	DefaultMaxMessages       = 5000
	DefaultBatchSize         = 50
	DefaultMaxConcurrentJobs = 4
)

// ErrNoProvider is returned when no mail provider is available for an account.
var ErrNoProvider = errors.New("no mail provider for account")

// Config tunes job execution.
type Config struct {
	// Query is appended to the newer_than window on full syncs.
	Query             string               `mapstructure:"query"`
	Retry             service.RetryOptions `mapstructure:"retry"`
	WindowDays        int                  `mapstructure:"window_days"`
	MaxMessages       int                  `mapstructure:"max_messages"`
	BatchSize         int                  `mapstructure:"batch_size"`
	MaxConcurrentJobs int                  `mapstructure:"max_concurrent_jobs"`
}

func (c *Config) setDefaults() {
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
}

// ProviderFunc resolves the mail provider for an account.
type ProviderFunc func(ctx context.Context, accountID string) (service.MailProvider, error)

// SingleProvider serves the same provider for every account.
func SingleProvider(p service.MailProvider) ProviderFunc {
	return func(context.Context, string) (service.MailProvider, error) {
		if p == nil {
			return nil, ErrNoProvider
		}
		return p, nil
	}
}

// ProgressFunc observes a job after every processed message.
type ProgressFunc func(job model.SyncJob)

// Store is the persistence the orchestrator needs.
type Store interface {
	service.ReceiptStore
	service.JobStore
}

// Deps are the collaborators of an Orchestrator. Objects, Transactions and Matcher
// are optional.
type Deps struct {
	Providers    ProviderFunc
	Store        Store
	Classifier   *classifier.Classifier
	Pipeline     *parser.Pipeline
	Objects      service.ObjectStore
	Transactions service.TransactionSource
	Matcher      *matcher.Matcher
	Progress     ProgressFunc
	Logger       *slog.Logger
}

// JobRequest asks for one sync of one mail account.
type JobRequest struct {
	AccountID string
	UserID    string // Owner of the transactions matched after the job
	Mode      model.SyncMode
}

// Orchestrator owns the sync job lifecycle.
type Orchestrator struct {
	providers    ProviderFunc
	store        Store
	classifier   *classifier.Classifier
	pipeline     *parser.Pipeline
	objects      service.ObjectStore
	transactions service.TransactionSource
	matcher      *matcher.Matcher
	progress     ProgressFunc
	logger       *slog.Logger
	cfg          Config
}

// New validates deps and builds an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Providers == nil {
		return nil, fmt.Errorf("%w: providers are required", ErrNoProvider)
	}
	if deps.Store == nil || deps.Classifier == nil || deps.Pipeline == nil {
		return nil, errors.New("orchestrator requires a store, classifier and pipeline")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	return &Orchestrator{
		providers:    deps.Providers,
		store:        deps.Store,
		classifier:   deps.Classifier,
		pipeline:     deps.Pipeline,
		objects:      deps.Objects,
		transactions: deps.Transactions,
		matcher:      deps.Matcher,
		progress:     deps.Progress,
		logger:       logger.With("component", "orchestrator"),
		cfg:          cfg,
	}, nil
}

// Run executes one job to completion or failure. The returned job is never nil once
// it has been created; err is non-nil only when the job failed.
func (o *Orchestrator) Run(ctx context.Context, req JobRequest) (*model.SyncJob, error) {
	if req.AccountID == "" {
		return nil, errors.New("account id cannot be empty")
	}
	if req.Mode == "" {
		req.Mode = model.SyncIncremental
	}

	job := &model.SyncJob{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Mode:      req.Mode,
		Status:    model.JobPending,
		CreatedAt: time.Now(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	r := &run{
		o:      o,
		job:    job,
		logger: o.logger.With("job_id", job.ID, "account_id", job.AccountID),
	}

	provider, err := o.providers(ctx, req.AccountID)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("failed to resolve mail provider: %w", err))
	}
	r.provider = provider

	started := time.Now()
	job.Status = model.JobRunning
	job.StartedAt = &started
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return r.fail(ctx, fmt.Errorf("failed to start sync job: %w", err))
	}
	r.logger.Info("Sync job started", "mode", job.Mode)

	ids, cursor, err := r.enumerate(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	job.TotalMessages = len(ids)
	r.checkpoint(ctx, "enumerated")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, err)
		}
		if err := r.process(ctx, id); err != nil {
			return r.fail(ctx, err)
		}
		job.Processed++
		if o.progress != nil {
			o.progress(*job)
		}
		if job.Processed%o.cfg.BatchSize == 0 {
			r.checkpoint(ctx, "batch")
		}
	}

	completed := time.Now()
	job.Status = model.JobCompleted
	job.CompletedAt = &completed
	job.ProviderCursor = cursor
	r.checkpoint(ctx, "completed")

	r.logger.Info("Sync job completed",
		"mode", job.Mode,
		"fell_back_to_full", job.FellBackToFull,
		"total", job.TotalMessages,
		"parsed", job.Parsed,
		"unparseable", job.Unparseable,
		"duplicates", job.Duplicates,
		"filtered", job.FilteredOut,
		"failed", job.Failed)

	if o.matcher != nil && o.transactions != nil {
		if _, err := o.MatchPending(ctx, req.UserID); err != nil {
			r.logger.Warn("Matching after sync failed", "error", err)
		}
	}

	return job, nil
}

// RunConcurrent runs independent jobs for different accounts at the same time, at most
// MaxConcurrentJobs at once. Jobs are returned in request order; a failing job does not
// stop the others.
func (o *Orchestrator) RunConcurrent(ctx context.Context, reqs []JobRequest) ([]*model.SyncJob, error) {
	jobs := make([]*model.SyncJob, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrentJobs)
	for i, req := range reqs {
		g.Go(func() error {
			jobs[i], errs[i] = o.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return jobs, errors.Join(errs...)
}

func (r *run) fail(ctx context.Context, cause error) (*model.SyncJob, error) {
	job := r.job
	// Record the failure even when ctx is what failed.
	ctx = context.WithoutCancel(ctx)

	completed := time.Now()
	job.Status = model.JobFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &completed
	r.checkpoint(ctx, "failed")

	r.logger.Error("Sync job failed",
		"error", cause,
		"processed", job.Processed,
		"failed", job.Failed)
	return job, fmt.Errorf("sync job %s failed: %w", job.ID, cause)
}

// checkpoint persists the job and appends a progress event. Failures are logged; the
// in-memory counters remain authoritative for the rest of the run.
func (r *run) checkpoint(ctx context.Context, note string) {
	if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
		r.logger.Warn("Failed to persist job progress", "note", note, "error", err)
		return
	}
	event := &model.SyncJobEvent{
		JobID:        r.job.ID,
		Note:         note,
		SyncCounters: r.job.SyncCounters,
		CreatedAt:    time.Now(),
	}
	if err := r.o.store.AppendJobEvent(ctx, event); err != nil {
		r.logger.Warn("Failed to append job event", "note", note, "error", err)
	}
}

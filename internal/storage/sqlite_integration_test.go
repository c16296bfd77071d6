package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// TestSQLiteStorage_FullWorkflow walks a receipt from sync through review.
func TestSQLiteStorage_FullWorkflow(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	job := &model.SyncJob{ID: "job-1", AccountID: "me@example.com", Mode: model.SyncFull, Status: model.JobPending}
	require.NoError(t, store.CreateJob(ctx, job))

	started := time.Now()
	job.Status = model.JobRunning
	job.StartedAt = &started
	job.ProviderCursor = "history-100"
	require.NoError(t, store.UpdateJob(ctx, job))

	purchase := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	receipt := makeReceipt("msg-1", "corner bakery", "12.50", purchase)
	require.NoError(t, store.SaveReceipt(ctx, receipt))
	require.NoError(t, store.SaveAttachment(ctx, &model.AttachmentRecord{
		MessageID: "msg-1", Key: "attachments/abc.pdf", ContentHash: "abc", Size: 1024,
	}))

	job.Processed, job.Parsed, job.TotalMessages = 1, 1, 1
	require.NoError(t, store.AppendJobEvent(ctx, &model.SyncJobEvent{JobID: job.ID, SyncCounters: job.SyncCounters, Note: "batch 1"}))
	completed := time.Now()
	job.Status = model.JobCompleted
	job.CompletedAt = &completed
	require.NoError(t, store.UpdateJob(ctx, job))

	cursor, err := store.LatestCursor(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "history-100", cursor)

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{{
		ID: "txn-1", UserID: "default", Date: purchase.AddDate(0, 0, 1),
		Amount: decimal.RequireFromString("12.50"), MerchantName: "CORNER BAKERY #12",
	}}))

	unmatched, err := store.ListReceipts(ctx, service.ReceiptFilter{Unmatched: true})
	require.NoError(t, err)
	require.Len(t, unmatched, 1)

	link := &model.EnrichmentLink{
		ReceiptID: "msg-1", TransactionID: "txn-1", SourceType: model.SourceReceipt,
		Confidence: 70, Method: model.MatchFuzzyMerchant, Status: model.LinkSuggested,
	}
	require.NoError(t, store.CreateLink(ctx, link))

	unmatched, err = store.ListReceipts(ctx, service.ReceiptFilter{Unmatched: true})
	require.NoError(t, err)
	assert.Empty(t, unmatched)

	require.NoError(t, store.ConfirmLink(ctx, "msg-1", "txn-1", model.SourceReceipt))
	require.NoError(t, store.SaveAlias(ctx, model.MerchantAlias{ReceiptMerchant: "corner bakery", BankMerchant: "corner bakery #12"}))

	confirmed, err := store.ListLinksByStatus(ctx, model.LinkConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.True(t, confirmed[0].UserConfirmed)

	suggested, err := store.ListLinksByStatus(ctx, model.LinkSuggested)
	require.NoError(t, err)
	assert.Empty(t, suggested)

	aliases, err := store.ListAliases(ctx)
	require.NoError(t, err)
	assert.Len(t, aliases, 1)

	events, err := store.ListJobEvents(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Parsed)
}

// TestSQLiteStorage_Persistence checks that data survives closing and reopening the file.
func TestSQLiteStorage_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveReceipt(ctx, makeReceipt("msg-1", "bookshop", "30.00", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, store.CreateJob(ctx, &model.SyncJob{ID: "j1", AccountID: "a", Mode: model.SyncIncremental, Status: model.JobPending}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(ctx))

	got, err := reopened.GetReceipt(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "bookshop", got.Merchant)

	job, err := reopened.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncIncremental, job.Mode)
}

// TestSQLiteStorage_ConcurrentJobs mimics several sync jobs writing at once.
func TestSQLiteStorage_ConcurrentJobs(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	const jobs, perJob = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, jobs*perJob)
	for j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perJob {
				id := fmt.Sprintf("msg-%d-%d", j, i)
				r := makeReceipt(id, fmt.Sprintf("merchant %d", j), fmt.Sprintf("%d.00", i+1), time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC))
				if err := store.SaveReceipt(ctx, r); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent save failed: %v", err)
	}

	all, err := store.ListReceipts(ctx, service.ReceiptFilter{})
	require.NoError(t, err)
	assert.Len(t, all, jobs*perJob)
}

// TestSQLiteStorage_ErrorRecovery checks that a failed write leaves no partial state.
func TestSQLiteStorage_ErrorRecovery(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateLink(ctx, &model.EnrichmentLink{
		ReceiptID: "r1", TransactionID: "t1", SourceType: model.SourceReceipt,
		Confidence: 95, Method: model.MatchExactSameDayMerchant, Status: model.LinkConfirmed, IsPrimary: true,
	}))

	dup := &model.EnrichmentLink{
		ReceiptID: "r1", TransactionID: "t1", SourceType: model.SourceReceipt,
		Confidence: 50, Method: model.MatchFuzzyMerchant, Status: model.LinkSuggested,
	}
	assert.ErrorIs(t, store.CreateLink(ctx, dup), common.ErrDuplicateEntry)

	links, err := store.ListLinksForTransaction(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 95, links[0].Confidence)

	assert.ErrorIs(t, store.ConfirmLink(ctx, "r9", "t9", model.SourceReceipt), common.ErrNotFound)
	assert.ErrorIs(t, store.UpdateJob(ctx, &model.SyncJob{ID: "ghost", AccountID: "a", Mode: model.SyncFull, Status: model.JobRunning}), common.ErrNotFound)
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

func TestSQLiteStorage_JobLifecycle(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	job := &model.SyncJob{
		ID:        "job-1",
		AccountID: "me@example.com",
		Mode:      model.SyncIncremental,
		Status:    model.JobPending,
	}
	require.NoError(t, store.CreateJob(ctx, job))
	assert.False(t, job.CreatedAt.IsZero())
	assert.ErrorIs(t, store.CreateJob(ctx, job), common.ErrDuplicateEntry)

	started := time.Now()
	job.Status = model.JobRunning
	job.StartedAt = &started
	job.Mode = model.SyncFull
	job.FellBackToFull = true
	job.TotalMessages = 10
	job.Processed = 4
	job.Parsed = 2
	job.Duplicates = 1
	job.FilteredOut = 1
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobRunning, got.Status)
	assert.Equal(t, model.SyncFull, got.Mode)
	assert.True(t, got.FellBackToFull)
	assert.Equal(t, job.SyncCounters, got.SyncCounters)
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	missing := *job
	missing.ID = "missing"
	assert.ErrorIs(t, store.UpdateJob(ctx, &missing), common.ErrNotFound)
}

func TestSQLiteStorage_LatestCursor(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	account := "me@example.com"

	_, err := store.LatestCursor(ctx, account)
	assert.ErrorIs(t, err, common.ErrNotFound)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs := []model.SyncJob{
		{ID: "j1", Status: model.JobCompleted, ProviderCursor: "100", CreatedAt: base},
		{ID: "j2", Status: model.JobCompleted, ProviderCursor: "200", CreatedAt: base.Add(time.Hour)},
		{ID: "j3", Status: model.JobFailed, ProviderCursor: "300", CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range jobs {
		jobs[i].AccountID = account
		jobs[i].Mode = model.SyncFull
		completed := jobs[i].CreatedAt.Add(time.Minute)
		jobs[i].CompletedAt = &completed
		require.NoError(t, store.CreateJob(ctx, &jobs[i]))
	}

	cursor, err := store.LatestCursor(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "200", cursor)

	listed, err := store.ListJobs(ctx, account, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "j3", listed[0].ID)
	assert.Equal(t, "j2", listed[1].ID)
}

func TestSQLiteStorage_JobEvents(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, &model.SyncJob{
		ID: "job-1", AccountID: "acc", Mode: model.SyncFull, Status: model.JobRunning,
	}))

	for i := 1; i <= 3; i++ {
		ev := &model.SyncJobEvent{
			JobID:        "job-1",
			Note:         "batch",
			SyncCounters: model.SyncCounters{TotalMessages: 3, Processed: i, Parsed: i},
		}
		require.NoError(t, store.AppendJobEvent(ctx, ev))
		assert.NotZero(t, ev.ID)
	}

	events, err := store.ListJobEvents(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 3, events[2].Processed)

	assert.ErrorIs(t, store.AppendJobEvent(ctx, nil), ErrNilParameter)
}

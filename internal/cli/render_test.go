package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "-", FormatAmount(decimal.NullDecimal{}, "USD"))
	assert.Equal(t, "12.30 EUR", FormatAmount(decimal.NewNullDecimal(decimal.RequireFromString("12.3")), "EUR"))
	assert.Equal(t, "5.00", FormatAmount(decimal.NewNullDecimal(decimal.NewFromInt(5)), ""))
}

func TestRenderJobSummary(t *testing.T) {
	started := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	job := &model.SyncJob{
		ID:             "job-1",
		AccountID:      "me@example.com",
		Mode:           model.SyncIncremental,
		Status:         model.JobCompleted,
		FellBackToFull: true,
		StartedAt:      &started,
		CompletedAt:    &completed,
		SyncCounters: model.SyncCounters{
			TotalMessages: 5, Processed: 5, Parsed: 3, Unparseable: 1, FilteredOut: 1,
		},
	}

	out := RenderJobSummary(job)
	assert.Contains(t, out, "Sync job-1")
	assert.Contains(t, out, "me@example.com (incremental)")
	assert.Contains(t, out, "fell back to a full sync")
	assert.Contains(t, out, "Unparseable: 1")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "Failed:")

	job.Status = model.JobFailed
	job.Failed = 2
	job.ErrorMessage = "authentication failed"
	out = RenderJobSummary(job)
	assert.Contains(t, out, "Failed:")
	assert.Contains(t, out, "authentication failed")
}

func TestRenderTable(t *testing.T) {
	jobs := []model.SyncJob{
		{ID: "job-1", AccountID: "a@example.com", Mode: model.SyncFull, Status: model.JobCompleted,
			SyncCounters: model.SyncCounters{TotalMessages: 4, Processed: 4, Parsed: 2}},
	}
	out := RenderTable(JobHeaders, JobRows(jobs))
	lines := strings.Split(out, "\n")
	assert.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, out, "Account")
	assert.Contains(t, out, "a@example.com")
	assert.Contains(t, out, "4/4")
}

func TestSyncProgress(t *testing.T) {
	var out bytes.Buffer
	p := NewSyncProgress(&out)

	// Unknown totals draw nothing.
	p.Update(model.SyncJob{ID: "job-1", AccountID: "a@example.com"})
	assert.Empty(t, p.bars)

	for i := 1; i <= 3; i++ {
		p.Update(model.SyncJob{
			ID:           "job-1",
			AccountID:    "a@example.com",
			SyncCounters: model.SyncCounters{TotalMessages: 3, Processed: i, Parsed: i},
		})
	}
	assert.Len(t, p.bars, 1)
	p.Finish()
	assert.Contains(t, out.String(), "a@example.com")
}

func TestJobStatusStyle(t *testing.T) {
	tests := []struct {
		status model.JobStatus
		want   lipgloss.Style
	}{
		{model.JobCompleted, SuccessStyle},
		{model.JobFailed, ErrorStyle},
		{model.JobRunning, InfoStyle},
		{model.JobPending, SubtleStyle},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want.GetForeground(), JobStatusStyle(tt.status).GetForeground())
		})
	}
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// SyncProgress draws a progress bar fed by orchestrator job snapshots. One bar is
// created per job once its message count is known.
type SyncProgress struct {
	writer io.Writer
	bars   map[string]*progressbar.ProgressBar
	mu     sync.Mutex
}

// NewSyncProgress creates a progress display writing to w.
func NewSyncProgress(w io.Writer) *SyncProgress {
	return &SyncProgress{writer: w, bars: make(map[string]*progressbar.ProgressBar)}
}

// Update records a job snapshot. It matches orchestrator.ProgressFunc.
func (p *SyncProgress) Update(job model.SyncJob) {
	if job.TotalMessages <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bar, ok := p.bars[job.ID]
	if !ok {
		bar = p.newBar(job)
		p.bars[job.ID] = bar
	}
	bar.Describe(fmt.Sprintf("[cyan]%s[reset] parsed %d, dup %d", job.AccountID, job.Parsed, job.Duplicates))
	if err := bar.Set(job.Processed); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Finish completes every open bar.
func (p *SyncProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, bar := range p.bars {
		if err := bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "job_id", id, "error", err)
		}
	}
}

func (p *SyncProgress) newBar(job model.SyncJob) *progressbar.ProgressBar {
	return progressbar.NewOptions(job.TotalMessages,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", job.AccountID)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

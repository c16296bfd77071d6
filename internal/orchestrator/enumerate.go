package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// run is the state of one job execution. It is confined to a single goroutine.
type run struct {
	o        *Orchestrator
	provider service.MailProvider
	job      *model.SyncJob
	logger   *slog.Logger
}

// enumerate returns the message ids to process, in provider order, and the cursor to
// store if the job completes.
func (r *run) enumerate(ctx context.Context) ([]string, string, error) {
	if r.job.Mode == model.SyncIncremental {
		ids, cursor, err := r.incremental(ctx)
		if err == nil {
			return ids, cursor, nil
		}
		if !errors.Is(err, common.ErrCursorExpired) && !errors.Is(err, common.ErrNotFound) {
			return nil, "", err
		}
		r.logger.Info("Incremental sync unavailable, falling back to full sync", "reason", err)
		r.job.Mode = model.SyncFull
		r.job.FellBackToFull = true
	}
	return r.full(ctx)
}

func (r *run) incremental(ctx context.Context) ([]string, string, error) {
	cursor, err := r.o.store.LatestCursor(ctx, r.job.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, "", fmt.Errorf("no stored cursor: %w", err)
		}
		return nil, "", fmt.Errorf("failed to load cursor: %w", err)
	}

	var changes service.ChangeSet
	err = common.WithRetry(ctx, func() error {
		var fetchErr error
		changes, fetchErr = r.provider.FetchChangesSince(ctx, cursor)
		return fetchErr
	}, r.o.cfg.Retry)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch changes since %s: %w", cursor, err)
	}

	newCursor := changes.NewCursor
	if newCursor == "" {
		newCursor = cursor
	}
	r.logger.Debug("Fetched incremental changes", "new_messages", len(changes.NewIDs), "cursor", newCursor)
	return dedupIDs(changes.NewIDs, r.o.cfg.MaxMessages), newCursor, nil
}

// full lists the search window page by page. The cursor is taken before listing so
// anything arriving mid-run is picked up by the next incremental sync.
func (r *run) full(ctx context.Context) ([]string, string, error) {
	var cursor string
	err := common.WithRetry(ctx, func() error {
		var cursorErr error
		cursor, cursorErr = r.provider.CurrentCursor(ctx)
		return cursorErr
	}, r.o.cfg.Retry)
	if err != nil {
		if common.IsJobFatal(err) {
			return nil, "", fmt.Errorf("failed to read provider cursor: %w", err)
		}
		r.logger.Warn("Could not read provider cursor, next sync will be full", "error", err)
		cursor = ""
	}

	query := r.query()
	var ids []string
	pageToken := ""
	pages := 0
	for {
		var page service.MessagePage
		err := common.WithRetry(ctx, func() error {
			var listErr error
			page, listErr = r.provider.ListMessageIDs(ctx, query, pageToken)
			return listErr
		}, r.o.cfg.Retry)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list messages: %w", err)
		}
		pages++
		ids = append(ids, page.IDs...)

		if len(ids) >= r.o.cfg.MaxMessages {
			r.logger.Warn("Message cap reached, truncating listing", "cap", r.o.cfg.MaxMessages)
			break
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	r.logger.Debug("Listed messages", "query", query, "pages", pages, "count", len(ids))
	return dedupIDs(ids, r.o.cfg.MaxMessages), cursor, nil
}

func (r *run) query() string {
	q := fmt.Sprintf("newer_than:%dd", r.o.cfg.WindowDays)
	if extra := strings.TrimSpace(r.o.cfg.Query); extra != "" {
		q += " " + extra
	}
	return q
}

// dedupIDs drops repeated ids, keeping first-seen order, and applies the cap.
func dedupIDs(ids []string, limit int) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, min(len(ids), limit))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out
}

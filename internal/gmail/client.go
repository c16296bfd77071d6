// Package gmail implements the mail provider over the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const (
	// DefaultUser addresses the authenticated account.
	DefaultUser = "me"

	listPageSize = 500
)

// Client implements service.MailProvider against one Gmail account.
type Client struct {
	svc    *gmailapi.Service
	logger *slog.Logger
	user   string
}

// NewClient authenticates with a stored OAuth token and builds a client.
func NewClient(ctx context.Context, cfg OAuth2Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, common.NewUserError("no Gmail token found; run `receipts auth gmail` first", err)
	}

	ts := newSavingTokenSource(cfg, cfg.oauthConfig().TokenSource(ctx, token), token)
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewClientWithService(svc, DefaultUser, logger), nil
}

// NewClientWithService wraps an already configured service.
func NewClientWithService(svc *gmailapi.Service, user string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if user == "" {
		user = DefaultUser
	}
	return &Client{
		svc:    svc,
		user:   user,
		logger: logger.With("component", "gmail"),
	}
}

// ListMessageIDs returns one page of message ids matching a Gmail search query.
func (c *Client) ListMessageIDs(ctx context.Context, query, pageToken string) (service.MessagePage, error) {
	call := c.svc.Users.Messages.List(c.user).Q(query).MaxResults(listPageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return service.MessagePage{}, mapError("list messages", err)
	}

	page := service.MessagePage{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// FetchMessage downloads and converts one message.
func (c *Client) FetchMessage(ctx context.Context, id string) (*model.InboundMessage, error) {
	msg, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError("get message", err)
	}
	return toInboundMessage(msg)
}

// FetchChangesSince walks the history log from cursor and returns added messages.
// Gmail answers 404 when the history id is too old; that surfaces as ErrCursorExpired.
func (c *Client) FetchChangesSince(ctx context.Context, cursor string) (service.ChangeSet, error) {
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return service.ChangeSet{}, fmt.Errorf("invalid history id %q: %w", cursor, common.ErrCursorExpired)
	}

	var changes service.ChangeSet
	seen := make(map[string]bool)
	pageToken := ""
	for {
		call := c.svc.Users.History.List(c.user).
			StartHistoryId(start).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			mapped := mapError("list history", err)
			if errors.Is(mapped, common.ErrNotFound) {
				return service.ChangeSet{}, fmt.Errorf("history id %s: %w", cursor, common.ErrCursorExpired)
			}
			return service.ChangeSet{}, mapped
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				changes.NewIDs = append(changes.NewIDs, added.Message.Id)
			}
		}
		if resp.HistoryId != 0 {
			changes.NewCursor = strconv.FormatUint(resp.HistoryId, 10)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.logger.Debug("Fetched history", "since", cursor, "new_messages", len(changes.NewIDs), "cursor", changes.NewCursor)
	return changes, nil
}

// FetchAttachment downloads attachment bytes.
func (c *Client) FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := c.svc.Users.Messages.Attachments.Get(c.user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get attachment", err)
	}
	data, err := decodeData(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

// CurrentCursor returns the mailbox's current history id.
func (c *Client) CurrentCursor(ctx context.Context) (string, error) {
	profile, err := c.svc.Users.GetProfile(c.user).Context(ctx).Do()
	if err != nil {
		return "", mapError("get profile", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

var _ service.MailProvider = (*Client)(nil)

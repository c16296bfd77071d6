package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// spreadsheetAPI is the slice of the Sheets API the writer uses.
type spreadsheetAPI interface {
	Create(ctx context.Context, title, timeZone string, tabs []string) (id, url string, err error)
	Tabs(ctx context.Context, spreadsheetID string) (map[string]int64, error)
	AddTab(ctx context.Context, spreadsheetID, title string) (int64, error)
	Clear(ctx context.Context, spreadsheetID, rangeStr string) error
	Update(ctx context.Context, spreadsheetID, rangeStr string, values [][]any) error
	Format(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error
}

// googleAPI adapts *sheets.Service to spreadsheetAPI.
type googleAPI struct {
	svc *sheets.Service
}

// newSheetsService creates a Google Sheets API service.
func newSheetsService(ctx context.Context, cfg Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if cfg.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(cfg.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

func (g *googleAPI) Create(ctx context.Context, title, timeZone string, tabs []string) (string, string, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title, TimeZone: timeZone},
	}
	for _, tab := range tabs {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: tab},
		})
	}
	created, err := g.svc.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", "", mapError("create", err)
	}
	return created.SpreadsheetId, created.SpreadsheetUrl, nil
}

func (g *googleAPI) Tabs(ctx context.Context, spreadsheetID string) (map[string]int64, error) {
	spreadsheet, err := g.svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get", err)
	}
	tabs := make(map[string]int64, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		tabs[s.Properties.Title] = s.Properties.SheetId
	}
	return tabs, nil
}

func (g *googleAPI) AddTab(ctx context.Context, spreadsheetID, title string) (int64, error) {
	resp, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, mapError("add sheet", err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("sheets add sheet: empty reply for %q", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (g *googleAPI) Clear(ctx context.Context, spreadsheetID, rangeStr string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(spreadsheetID, rangeStr, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return mapError("clear", err)
}

func (g *googleAPI) Update(ctx context.Context, spreadsheetID, rangeStr string, values [][]any) error {
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, rangeStr, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return mapError("update", err)
}

func (g *googleAPI) Format(ctx context.Context, spreadsheetID string, requests []*sheets.Request) error {
	_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return mapError("format", err)
}

// mapError turns quota and server failures into retryable sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("sheets %s: %w", op, err)
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("sheets %s: %w: %w", op, common.ErrRateLimit, err)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("sheets %s: %w: %w", op, common.ErrServerError, err)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("sheets %s: %w: %w", op, common.ErrAuth, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("sheets %s: %w: %w", op, common.ErrNotFound, err)
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}

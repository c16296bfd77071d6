package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// Tab is one worksheet's content. The first record is the header row.
type Tab struct {
	Title   string
	Records [][]string
}

// Writer replaces the contents of spreadsheet tabs.
type Writer struct {
	api    spreadsheetAPI
	logger *slog.Logger
	config Config
}

// NewWriter creates a new Google Sheets writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	svc, err := newSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return newWriter(&googleAPI{svc: svc}, config, logger), nil
}

func newWriter(api spreadsheetAPI, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Writer{api: api, config: config, logger: logger.With("component", "sheets")}
}

// Write clears and rewrites each tab, creating the spreadsheet and missing tabs as
// needed. It returns the spreadsheet id.
func (w *Writer) Write(ctx context.Context, tabs ...Tab) (string, error) {
	titles := make([]string, 0, len(tabs))
	for _, t := range tabs {
		titles = append(titles, t.Title)
	}

	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx, titles)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	var existing map[string]int64
	err = common.WithRetry(ctx, func() error {
		var tabErr error
		existing, tabErr = w.api.Tabs(ctx, spreadsheetID)
		return tabErr
	}, w.config.Retry)
	if err != nil {
		return "", fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}

	for _, tab := range tabs {
		sheetID, ok := existing[tab.Title]
		if !ok {
			sheetID, err = w.api.AddTab(ctx, spreadsheetID, tab.Title)
			if err != nil {
				return "", fmt.Errorf("failed to add tab %q: %w", tab.Title, err)
			}
		}
		if err := w.writeTab(ctx, spreadsheetID, sheetID, tab); err != nil {
			return "", err
		}
	}

	w.logger.Info("Spreadsheet updated", "spreadsheet_id", spreadsheetID, "tabs", len(tabs))
	return spreadsheetID, nil
}

func (w *Writer) getOrCreateSpreadsheet(ctx context.Context, tabs []string) (string, error) {
	if w.config.SpreadsheetID != "" {
		return w.config.SpreadsheetID, nil
	}

	id, url, err := w.api.Create(ctx, w.config.SpreadsheetName, w.config.TimeZone, tabs)
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}
	w.logger.Info("Created new spreadsheet", "id", id, "url", url)
	return id, nil
}

func (w *Writer) writeTab(ctx context.Context, spreadsheetID string, sheetID int64, tab Tab) error {
	if err := common.WithRetry(ctx, func() error {
		return w.api.Clear(ctx, spreadsheetID, quoteRange(tab.Title, "A:Z"))
	}, w.config.Retry); err != nil {
		return fmt.Errorf("failed to clear tab %q: %w", tab.Title, err)
	}

	values := toValues(tab.Records)
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))
		batch := values[i:end]
		rangeStr := quoteRange(tab.Title, fmt.Sprintf("A%d", i+1))

		err := common.WithRetry(ctx, func() error {
			return w.api.Update(ctx, spreadsheetID, rangeStr, batch)
		}, w.config.Retry)
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d of %q: %w", i+1, tab.Title, err)
		}
		w.logger.Debug("Wrote batch", "tab", tab.Title, "start_row", i+1, "rows", len(batch))
	}

	if w.config.EnableFormatting && len(tab.Records) > 0 {
		if err := w.api.Format(ctx, spreadsheetID, headerFormat(sheetID, len(tab.Records[0]))); err != nil {
			// Formatting is cosmetic.
			w.logger.Warn("Failed to apply formatting", "tab", tab.Title, "error", err)
		}
	}
	return nil
}

// headerFormat bolds and freezes the header row and sizes the columns to fit.
func headerFormat(sheetID int64, columns int) []*sheets.Request {
	return []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}
}

func quoteRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", title, cells)
}

func toValues(records [][]string) [][]any {
	values := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, cell := range rec {
			row[j] = cell
		}
		values[i] = row
	}
	return values
}

// Package export writes receipts and their bank links as CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Store is the read side the exporter needs.
type Store interface {
	ListReceipts(ctx context.Context, filter service.ReceiptFilter) ([]model.ParsedReceipt, error)
	ListLinksForReceipt(ctx context.Context, receiptID string) ([]model.EnrichmentLink, error)
	ListLinksByStatus(ctx context.Context, status model.LinkStatus) ([]model.EnrichmentLink, error)
}

// ReceiptRow is one exported receipt with its primary bank link, if any.
type ReceiptRow struct {
	MessageID     string `csv:"message_id"`
	ReceivedAt    string `csv:"received_at"`
	PurchaseDate  string `csv:"purchase_date"`
	Merchant      string `csv:"merchant"`
	Total         string `csv:"total"`
	Currency      string `csv:"currency"`
	OrderID       string `csv:"order_id"`
	Sender        string `csv:"sender"`
	Subject       string `csv:"subject"`
	ParseMethod   string `csv:"parse_method"`
	ParseStatus   string `csv:"parse_status"`
	Confidence    int    `csv:"parse_confidence"`
	LineItems     int    `csv:"line_items"`
	TransactionID string `csv:"transaction_id"`
	LinkStatus    string `csv:"link_status"`
	LinkScore     string `csv:"link_confidence"`
}

// LinkRow is one exported enrichment link.
type LinkRow struct {
	ReceiptID      string `csv:"receipt_id"`
	TransactionID  string `csv:"transaction_id"`
	SourceType     string `csv:"source_type"`
	Method         string `csv:"method"`
	Status         string `csv:"status"`
	Confidence     int    `csv:"confidence"`
	Primary        bool   `csv:"primary"`
	UserConfirmed  bool   `csv:"user_confirmed"`
	ConversionRate string `csv:"conversion_rate"`
	CreatedAt      string `csv:"created_at"`
}

// Exporter renders store contents as CSV.
type Exporter struct {
	store  Store
	logger *slog.Logger
}

// New creates an exporter.
func New(store Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, logger: logger.With("component", "export")}
}

// ReceiptRows loads the receipts selected by filter, each with its primary link.
func (e *Exporter) ReceiptRows(ctx context.Context, filter service.ReceiptFilter) ([]*ReceiptRow, error) {
	receipts, err := e.store.ListReceipts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	rows := make([]*ReceiptRow, 0, len(receipts))
	for i := range receipts {
		links, err := e.store.ListLinksForReceipt(ctx, receipts[i].MessageID)
		if err != nil {
			return nil, fmt.Errorf("failed to list links for %s: %w", receipts[i].MessageID, err)
		}
		rows = append(rows, receiptRow(&receipts[i], primaryLink(links)))
	}
	return rows, nil
}

// WriteReceipts writes the receipts selected by filter to w and returns the row count.
func (e *Exporter) WriteReceipts(ctx context.Context, w io.Writer, filter service.ReceiptFilter) (int, error) {
	rows, err := e.ReceiptRows(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := marshal(rows, w); err != nil {
		return 0, err
	}
	e.logger.Info("Exported receipts", "count", len(rows))
	return len(rows), nil
}

// LinkRows loads every link with the given status.
func (e *Exporter) LinkRows(ctx context.Context, status model.LinkStatus) ([]*LinkRow, error) {
	links, err := e.store.ListLinksByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	rows := make([]*LinkRow, 0, len(links))
	for _, l := range links {
		row := &LinkRow{
			ReceiptID:     l.ReceiptID,
			TransactionID: l.TransactionID,
			SourceType:    l.SourceType,
			Method:        string(l.Method),
			Status:        string(l.Status),
			Confidence:    l.Confidence,
			Primary:       l.IsPrimary,
			UserConfirmed: l.UserConfirmed,
			CreatedAt:     formatTime(l.CreatedAt),
		}
		if l.CurrencyConverted && l.ConversionRate.Valid {
			row.ConversionRate = l.ConversionRate.Decimal.String()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteLinks writes every link with the given status to w and returns the row count.
func (e *Exporter) WriteLinks(ctx context.Context, w io.Writer, status model.LinkStatus) (int, error) {
	rows, err := e.LinkRows(ctx, status)
	if err != nil {
		return 0, err
	}
	if err := marshal(rows, w); err != nil {
		return 0, err
	}
	e.logger.Info("Exported links", "status", status, "count", len(rows))
	return len(rows), nil
}

// Records renders a slice of row structs as string records, header first,
// using the same columns as the CSV output.
func Records(rows any) ([][]string, error) {
	var buf bytes.Buffer
	if err := marshal(rows, &buf); err != nil {
		return nil, err
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read back CSV data: %w", err)
	}
	return records, nil
}

func marshal(rows any, w io.Writer) error {
	writer := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	if err := gocsv.MarshalCSV(rows, writer); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}

// primaryLink prefers the primary link, then the highest confidence.
func primaryLink(links []model.EnrichmentLink) *model.EnrichmentLink {
	var best *model.EnrichmentLink
	for i := range links {
		l := &links[i]
		switch {
		case best == nil:
			best = l
		case l.IsPrimary && !best.IsPrimary:
			best = l
		case l.IsPrimary == best.IsPrimary && l.Confidence > best.Confidence:
			best = l
		}
	}
	return best
}

func receiptRow(r *model.ParsedReceipt, link *model.EnrichmentLink) *ReceiptRow {
	row := &ReceiptRow{
		MessageID:   r.MessageID,
		ReceivedAt:  formatTime(r.ReceivedAt),
		Merchant:    r.Merchant,
		Currency:    r.Currency,
		OrderID:     r.OrderID,
		Sender:      r.SenderAddress,
		Subject:     r.Subject,
		ParseMethod: string(r.ParseMethod),
		ParseStatus: string(r.ParseStatus),
		Confidence:  r.ParseConfidence,
		LineItems:   len(r.LineItems),
	}
	if r.PurchaseDate != nil {
		row.PurchaseDate = r.PurchaseDate.Format("2006-01-02")
	}
	if r.Total.Valid {
		row.Total = r.Total.Decimal.StringFixed(2)
	}
	if link != nil {
		row.TransactionID = link.TransactionID
		row.LinkStatus = string(link.Status)
		row.LinkScore = strconv.Itoa(link.Confidence)
	}
	return row
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

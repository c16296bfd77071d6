package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// FormatAmount renders an amount with its currency code, or "-" when absent.
func FormatAmount(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return "-"
	}
	return strings.TrimSpace(amount.Decimal.StringFixed(2) + " " + currency)
}

// RenderJobSummary renders the counters of a finished sync job.
func RenderJobSummary(job *model.SyncJob) string {
	status := JobStatusStyle(job.Status).Render(string(job.Status))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", MailIcon, job.AccountID, job.Mode)
	fmt.Fprintf(&b, "  Status:      %s\n", status)
	if job.FellBackToFull {
		fmt.Fprintf(&b, "  %s\n", WarningStyle.Render("Cursor expired, fell back to a full sync"))
	}
	fmt.Fprintf(&b, "  Messages:    %d\n", job.TotalMessages)
	fmt.Fprintf(&b, "  Parsed:      %s\n", SuccessStyle.Render(fmt.Sprint(job.Parsed)))
	fmt.Fprintf(&b, "  Unparseable: %d\n", job.Unparseable)
	fmt.Fprintf(&b, "  Duplicates:  %d\n", job.Duplicates)
	fmt.Fprintf(&b, "  Filtered:    %d\n", job.FilteredOut)
	if job.Failed > 0 {
		fmt.Fprintf(&b, "  Failed:      %s\n", ErrorStyle.Render(fmt.Sprint(job.Failed)))
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		fmt.Fprintf(&b, "  Took:        %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "  Error:       %s\n", ErrorStyle.Render(job.ErrorMessage))
	}
	return RenderBox("Sync "+job.ID, strings.TrimRight(b.String(), "\n"))
}

// RenderTable lays out rows under a styled header.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Width(widths[i] + 2).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	lines := []string{renderRow(headers, TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, TableCellStyle))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// JobRows formats jobs for RenderTable.
func JobRows(jobs []model.SyncJob) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			j.AccountID,
			string(j.Mode),
			string(j.Status),
			fmt.Sprintf("%d/%d", j.Processed, j.TotalMessages),
			fmt.Sprint(j.Parsed),
			j.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

// JobHeaders are the RenderTable headers matching JobRows.
var JobHeaders = []string{"ID", "Account", "Mode", "Status", "Processed", "Parsed", "Created"}

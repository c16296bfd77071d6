// Package cli provides styled terminal output, sync progress and link review prompts.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

var (
	accentColor  = lipgloss.Color("#F4A259")
	okColor      = lipgloss.Color("#4ECDC4")
	cautionColor = lipgloss.Color("#FFE66D")
	failColor    = lipgloss.Color("#FF6B6B")
	noteColor    = lipgloss.Color("#95E1D3")
	mutedColor   = lipgloss.Color("#666666")
	borderColor  = lipgloss.Color("#333")

	// SuccessStyle formats completed work.
	SuccessStyle = lipgloss.NewStyle().Foreground(okColor)
	// WarningStyle formats partial results and skipped items.
	WarningStyle = lipgloss.NewStyle().Foreground(cautionColor)
	// ErrorStyle formats failures.
	ErrorStyle = lipgloss.NewStyle().Foreground(failColor)
	// InfoStyle formats neutral notices.
	InfoStyle = lipgloss.NewStyle().Foreground(noteColor)
	// SubtleStyle formats ids and other secondary text.
	SubtleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	// BoldStyle highlights merchant names.
	BoldStyle = lipgloss.NewStyle().Bold(true)

	boxTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)

	// TableHeaderStyle underlines RenderTable headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(borderColor)
	// TableCellStyle pads RenderTable cells.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

const (
	successIcon = "✓"
	errorIcon   = "✗"
	warningIcon = "⚠️"
	infoIcon    = "ℹ️"

	// ReceiptIcon marks receipt sections.
	ReceiptIcon = "🧾"
	// MailIcon marks mailbox sections.
	MailIcon = "📬"
	// BankIcon marks transaction sections.
	BankIcon = "🏦"
	// LinkIcon marks enrichment links.
	LinkIcon = "🔗"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(successIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(errorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(warningIcon + " " + message)
}

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string {
	return InfoStyle.Render(infoIcon + " " + message)
}

// FormatPrompt formats a review prompt.
func FormatPrompt(prompt string) string {
	return promptStyle.Render(prompt + " → ")
}

// JobStatusStyle picks the color a sync job status is rendered in.
func JobStatusStyle(status model.JobStatus) lipgloss.Style {
	switch status {
	case model.JobCompleted:
		return SuccessStyle
	case model.JobFailed:
		return ErrorStyle
	case model.JobRunning:
		return InfoStyle
	default:
		return SubtleStyle
	}
}

// RenderBox renders content under a title in a rounded box.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		boxTitleStyle.Render(title),
		content,
	))
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Decision is the reviewer's verdict on a suggested link.
type Decision int

// Review decisions.
const (
	DecisionSkip Decision = iota
	DecisionConfirm
	DecisionQuit
)

// ReviewItem is a suggested link with the records on both sides.
type ReviewItem struct {
	Receipt     *model.ParsedReceipt
	Transaction *model.Transaction
	Link        model.EnrichmentLink
}

// LinkReviewer asks the user to confirm suggested receipt links one at a time.
type LinkReviewer struct {
	answers *AnswerReader
	writer  io.Writer
}

// NewLinkReviewer creates a reviewer reading answers from r.
func NewLinkReviewer(r io.Reader, w io.Writer) *LinkReviewer {
	return &LinkReviewer{answers: NewAnswerReader(r), writer: w}
}

// Review shows item and waits for a decision. Unrecognized answers are asked again.
func (lr *LinkReviewer) Review(ctx context.Context, item ReviewItem, position, total int) (Decision, error) {
	title := fmt.Sprintf("%s Suggested link %d of %d", LinkIcon, position, total)
	if _, err := fmt.Fprintln(lr.writer, RenderBox(title, formatReviewItem(item))); err != nil {
		return DecisionQuit, fmt.Errorf("failed to write link details: %w", err)
	}

	for {
		if _, err := fmt.Fprint(lr.writer, FormatPrompt("[c]onfirm, [s]kip, [q]uit")); err != nil {
			return DecisionQuit, fmt.Errorf("failed to write prompt: %w", err)
		}

		answer, err := lr.answers.Answer(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return DecisionQuit, nil
			}
			return DecisionQuit, err
		}

		switch answer {
		case "c", "confirm", "y", "yes":
			return DecisionConfirm, nil
		case "s", "skip", "", "n", "no":
			return DecisionSkip, nil
		case "q", "quit":
			return DecisionQuit, nil
		}
		if _, err := fmt.Fprintln(lr.writer, FormatWarning("Please answer c, s or q")); err != nil {
			return DecisionQuit, fmt.Errorf("failed to write prompt: %w", err)
		}
	}
}

func formatReviewItem(item ReviewItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Receipt %s\n", ReceiptIcon, SubtleStyle.Render(item.Link.ReceiptID))
	if r := item.Receipt; r != nil {
		fmt.Fprintf(&b, "  Merchant: %s\n", BoldStyle.Render(r.Merchant))
		fmt.Fprintf(&b, "  Total:    %s\n", FormatAmount(r.Total, r.Currency))
		if r.PurchaseDate != nil {
			fmt.Fprintf(&b, "  Date:     %s\n", r.PurchaseDate.Format("Jan 2, 2006"))
		}
		fmt.Fprintf(&b, "  Subject:  %s\n", r.Subject)
	}

	fmt.Fprintf(&b, "\n%s Transaction %s\n", BankIcon, SubtleStyle.Render(item.Link.TransactionID))
	if t := item.Transaction; t != nil {
		merchant := t.MerchantName
		if merchant == "" {
			merchant = t.Description
		}
		fmt.Fprintf(&b, "  Merchant: %s\n", BoldStyle.Render(merchant))
		fmt.Fprintf(&b, "  Amount:   %s %s\n", t.Amount.StringFixed(2), t.Currency)
		fmt.Fprintf(&b, "  Date:     %s\n", t.Date.Format("Jan 2, 2006"))
	}

	fmt.Fprintf(&b, "\n  Confidence %d via %s", item.Link.Confidence, item.Link.Method)
	if item.Link.CurrencyConverted && item.Link.ConversionRate.Valid {
		fmt.Fprintf(&b, ", converted at %s", item.Link.ConversionRate.Decimal.String())
	}
	return b.String()
}

package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// ErrNoStore is returned when a persisting operation runs on a scoring-only matcher.
var ErrNoStore = errors.New("matcher has no store configured")

// PersistResult counts what Persist did with a candidate list.
type PersistResult struct {
	Confirmed int
	Suggested int
	Existing  int
	Discarded int
	Failed    int
}

// Linked is the number of links written.
func (r PersistResult) Linked() int {
	return r.Confirmed + r.Suggested
}

// Add accumulates another result.
func (r *PersistResult) Add(o PersistResult) {
	r.Confirmed += o.Confirmed
	r.Suggested += o.Suggested
	r.Existing += o.Existing
	r.Discarded += o.Discarded
	r.Failed += o.Failed
}

// Persist writes enrichment links for the candidates of one receipt. Candidates below
// the suggestion floor are dropped, the rest are collapsed by transaction keeping the
// best, and the best confirmed candidate that is stored is requested as primary. Per-link failures,
// including links that already exist, are logged and skipped. Existing links are
// never modified or removed.
func (m *Matcher) Persist(ctx context.Context, receiptID string, candidates []model.MatchCandidate) (PersistResult, error) {
	var result PersistResult
	if m.links == nil {
		return result, ErrNoStore
	}
	if receiptID == "" {
		return result, errors.New("receipt id cannot be empty")
	}

	seen := make(map[string]bool, len(candidates))
	primaryRequested := false
	for _, c := range sortedCopy(candidates) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if c.Confidence < m.cfg.SuggestThreshold || seen[c.TransactionID] {
			result.Discarded++
			continue
		}
		seen[c.TransactionID] = true

		link := &model.EnrichmentLink{
			ReceiptID:         receiptID,
			TransactionID:     c.TransactionID,
			SourceType:        model.SourceReceipt,
			Confidence:        c.Confidence,
			Method:            c.Method,
			Status:            model.LinkSuggested,
			CurrencyConverted: c.CurrencyConverted,
			ConversionRate:    c.ConversionRate,
			CreatedAt:         time.Now(),
		}
		if c.Confidence >= m.cfg.ConfirmThreshold {
			link.Status = model.LinkConfirmed
			link.IsPrimary = !primaryRequested
		}

		if err := m.links.CreateLink(ctx, link); err != nil {
			if errors.Is(err, common.ErrDuplicateEntry) {
				primaryRequested = primaryRequested || link.IsPrimary
				m.logger.Debug("Link already exists",
					"receipt_id", receiptID,
					"transaction_id", c.TransactionID)
				result.Existing++
				continue
			}
			m.logger.Warn("Failed to persist link",
				"receipt_id", receiptID,
				"transaction_id", c.TransactionID,
				"error", err)
			result.Failed++
			continue
		}
		primaryRequested = primaryRequested || link.IsPrimary

		if link.Status == model.LinkConfirmed {
			result.Confirmed++
		} else {
			result.Suggested++
		}
	}

	m.logger.Debug("Persisted match candidates",
		"receipt_id", receiptID,
		"confirmed", result.Confirmed,
		"suggested", result.Suggested,
		"existing", result.Existing,
		"failed", result.Failed)
	return result, nil
}

// MatchReceipt loads the transaction window around the receipt's purchase date,
// scores it and persists the candidates.
func (m *Matcher) MatchReceipt(ctx context.Context, receipt *model.ParsedReceipt, source service.TransactionSource, userID string) (PersistResult, error) {
	if receipt == nil || !receipt.Total.Valid || receipt.PurchaseDate == nil {
		return PersistResult{}, nil
	}

	window := time.Duration(m.cfg.WindowDays) * 24 * time.Hour
	from := receipt.PurchaseDate.Add(-window)
	to := receipt.PurchaseDate.Add(window + 24*time.Hour - time.Nanosecond)

	txns, err := source.ListTransactions(ctx, userID, from, to)
	if err != nil {
		return PersistResult{}, fmt.Errorf("failed to list transactions for %s: %w", receipt.MessageID, err)
	}

	candidates := m.FindMatches(receipt, txns)
	if len(candidates) == 0 {
		return PersistResult{}, nil
	}
	return m.Persist(ctx, receipt.MessageID, candidates)
}

// LearnAlias records that receiptMerchant shows up on statements as bankMerchant.
// Both are normalized; the alias is effective immediately.
func (m *Matcher) LearnAlias(ctx context.Context, receiptMerchant, bankMerchant string) error {
	if m.aliases == nil {
		return ErrNoStore
	}
	alias := model.MerchantAlias{
		ReceiptMerchant: normalizeAlias(receiptMerchant),
		BankMerchant:    normalizeAlias(bankMerchant),
		CreatedAt:       time.Now(),
	}
	if alias.ReceiptMerchant == "" || alias.BankMerchant == "" {
		return fmt.Errorf("alias needs both merchants: %q -> %q", receiptMerchant, bankMerchant)
	}
	if alias.ReceiptMerchant == alias.BankMerchant {
		return nil
	}
	if err := m.aliases.SaveAlias(ctx, alias); err != nil {
		return fmt.Errorf("failed to save alias: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.aliasByReceipt[alias.ReceiptMerchant] {
		if existing == alias.BankMerchant {
			return nil
		}
	}
	m.aliasByReceipt[alias.ReceiptMerchant] = append(m.aliasByReceipt[alias.ReceiptMerchant], alias.BankMerchant)

	m.logger.Info("Learned merchant alias",
		"receipt_merchant", alias.ReceiptMerchant,
		"bank_merchant", alias.BankMerchant)
	return nil
}

func sortedCopy(candidates []model.MatchCandidate) []model.MatchCandidate {
	out := make([]model.MatchCandidate, len(candidates))
	copy(out, candidates)
	sortCandidates(out)
	return out
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/matcher"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// ErrNoMatcher is returned by MatchPending when matching is not configured.
var ErrNoMatcher = errors.New("matching is not configured")

// Reparse re-fetches one message and parses it again with the LLM fallback enabled,
// overwriting the stored receipt for the same message id. The message is parsed even
// when the classifier rejects it; the rejection detail becomes the failure reason if
// nothing can be extracted.
func (o *Orchestrator) Reparse(ctx context.Context, accountID, messageID string) (*model.ParsedReceipt, error) {
	if messageID == "" {
		return nil, errors.New("message id cannot be empty")
	}
	provider, err := o.providers(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mail provider: %w", err)
	}

	msg, err := o.fetch(ctx, provider, messageID)
	if err != nil {
		return nil, err
	}

	opts := parser.Options{UseLLM: true}
	if verdict := o.classifier.Classify(classifierInput(msg)); !verdict.IsReceipt {
		opts.FailureReason = verdict.Detail
	}
	receipt := o.pipeline.Parse(ctx, msg, msg.From.Domain(), opts)
	if err := o.store.UpsertReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("failed to store re-parsed receipt: %w", err)
	}

	o.logger.Info("Re-parsed receipt",
		"message_id", messageID,
		"status", receipt.ParseStatus,
		"method", receipt.ParseMethod,
		"confidence", receipt.ParseConfidence)
	return receipt, nil
}

// MatchPending runs the matcher over every parsed receipt that has a total and no
// links yet. A failure on one receipt is logged and counted, not returned.
func (o *Orchestrator) MatchPending(ctx context.Context, userID string) (matcher.PersistResult, error) {
	var total matcher.PersistResult
	if o.matcher == nil || o.transactions == nil {
		return total, ErrNoMatcher
	}
	if err := o.matcher.LoadAliases(ctx); err != nil {
		o.logger.Warn("Matching without learned aliases", "error", err)
	}

	pending, err := o.store.ListReceipts(ctx, service.ReceiptFilter{
		Status:    model.ParseStatusParsed,
		Unmatched: true,
	})
	if err != nil {
		return total, fmt.Errorf("failed to list unmatched receipts: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		result, err := o.matcher.MatchReceipt(ctx, &pending[i], o.transactions, userID)
		if err != nil {
			o.logger.Warn("Failed to match receipt", "message_id", pending[i].MessageID, "error", err)
			total.Failed++
			continue
		}
		total.Add(result)
	}

	o.logger.Info("Matched pending receipts",
		"receipts", len(pending),
		"confirmed", total.Confirmed,
		"suggested", total.Suggested,
		"failed", total.Failed)
	return total, nil
}

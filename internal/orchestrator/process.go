package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/classifier"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// process takes one message through lookup, fetch, classify, parse and save, updating
// exactly one outcome counter. It returns an error only when the job cannot continue.
func (r *run) process(ctx context.Context, id string) error {
	job := r.job
	logger := r.logger.With("message_id", id)

	exists, err := r.o.store.ReceiptExists(ctx, id)
	if err != nil {
		logger.Warn("Failed to look up message", "error", err)
		job.Failed++
		return nil
	}
	if exists {
		job.Duplicates++
		return nil
	}

	msg, err := r.o.fetch(ctx, r.provider, id)
	if err != nil {
		if common.IsJobFatal(err) {
			return err
		}
		logger.Warn("Failed to fetch message", "error", err)
		job.Failed++
		return nil
	}

	verdict := r.o.classifier.Classify(classifierInput(msg))
	if !verdict.IsReceipt {
		logger.Debug("Message filtered",
			"sender", msg.From.Address,
			"reason", verdict.Reason,
			"detail", verdict.Detail)
		job.FilteredOut++
		return nil
	}

	receipt := r.o.pipeline.Parse(ctx, msg, msg.From.Domain(), parser.Options{})

	if receipt.DedupHash != "" {
		existing, err := r.o.store.FindReceiptByHash(ctx, receipt.DedupHash)
		switch {
		case err == nil && existing.MessageID != receipt.MessageID:
			logger.Debug("Receipt already stored under another message", "original_message_id", existing.MessageID)
			job.Duplicates++
			return nil
		case err != nil && !errors.Is(err, common.ErrNotFound):
			logger.Warn("Dedup lookup failed, saving anyway", "error", err)
		}
	}

	if err := r.o.store.SaveReceipt(ctx, receipt); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			job.Duplicates++
			return nil
		}
		logger.Warn("Failed to save receipt", "error", err)
		job.Failed++
		return nil
	}

	if receipt.ParseStatus == model.ParseStatusParsed {
		job.Parsed++
	} else {
		job.Unparseable++
		logger.Info("Receipt unparseable",
			"sender_domain", receipt.SenderDomain,
			"reason", receipt.ParseError)
	}

	r.o.storeAttachments(ctx, r.provider, msg)
	return nil
}

func classifierInput(msg *model.InboundMessage) classifier.Input {
	body := msg.TextBody
	if strings.TrimSpace(msg.HTMLBody) != "" {
		body = parser.HTMLToText(msg.HTMLBody)
	}
	return classifier.Input{
		Subject:             msg.Subject,
		BodyText:            body,
		SenderAddress:       msg.From.Address,
		HasListUnsubscribe:  msg.HasListUnsubscribe,
		HasStructuredMarkup: parser.HasStructuredMarkup(msg.HTMLBody),
	}
}

func (o *Orchestrator) fetch(ctx context.Context, provider service.MailProvider, id string) (*model.InboundMessage, error) {
	var msg *model.InboundMessage
	err := common.WithRetry(ctx, func() error {
		var fetchErr error
		msg, fetchErr = provider.FetchMessage(ctx, id)
		return fetchErr
	}, o.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	return msg, nil
}

// storeAttachments copies attachment bytes into the object store. It is best effort:
// every failure is logged and skipped.
func (o *Orchestrator) storeAttachments(ctx context.Context, provider service.MailProvider, msg *model.InboundMessage) {
	if o.objects == nil {
		return
	}
	for _, att := range msg.Attachments {
		if att.AttachmentID == "" {
			continue
		}
		logger := o.logger.With("message_id", msg.ID, "filename", att.Filename)

		var data []byte
		err := common.WithRetry(ctx, func() error {
			var fetchErr error
			data, fetchErr = provider.FetchAttachment(ctx, msg.ID, att.AttachmentID)
			return fetchErr
		}, o.cfg.Retry)
		if err != nil {
			logger.Warn("Failed to fetch attachment", "error", err)
			continue
		}

		info, err := o.objects.Put(ctx, data, "", map[string]string{
			"message_id": msg.ID,
			"filename":   att.Filename,
			"mime_type":  att.MimeType,
		})
		if err != nil {
			logger.Warn("Failed to store attachment", "error", err)
			continue
		}

		record := &model.AttachmentRecord{
			MessageID:   msg.ID,
			Key:         info.Key,
			ContentHash: info.ContentHash,
			ETag:        info.ETag,
			Filename:    att.Filename,
			MimeType:    att.MimeType,
			Size:        info.Size,
		}
		if err := o.store.SaveAttachment(ctx, record); err != nil {
			logger.Warn("Failed to record attachment", "error", err)
		}
	}
}

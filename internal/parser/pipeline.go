// Package parser turns accepted receipt messages into structured purchase records
// by trying extraction strategies in a fixed order.
package parser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// PartialConfidence is assigned to a receipt with a merchant but no amount.
const PartialConfidence = 50

// DefaultFailureReason is recorded when no strategy extracted anything.
const DefaultFailureReason = "no strategy extracted data"

// Options tune a single parse.
type Options struct {
	FailureReason string
	UseLLM        bool
}

// Config wires a Pipeline.
type Config struct {
	Registry        *Registry
	Completer       service.Completer
	Logger          *slog.Logger
	DefaultCurrency string
}

// Pipeline runs the strategies in order: structured markup, vendor, pattern, LLM.
// It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	registry        *Registry
	llm             *LLMStrategy
	logger          *slog.Logger
	pattern         PatternStrategy
	defaultCurrency string
}

// NewPipeline builds a pipeline. A nil registry gets the built-in vendors.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	p := &Pipeline{
		registry:        registry,
		logger:          logger.With("component", "parser"),
		defaultCurrency: strings.ToUpper(cfg.DefaultCurrency),
	}
	if cfg.Completer != nil {
		p.llm = NewLLMStrategy(cfg.Completer)
	}
	return p
}

// Parse always returns a receipt; when every strategy misses its status is unparseable.
func (p *Pipeline) Parse(ctx context.Context, msg *model.InboundMessage, senderDomain string, opts Options) *model.ParsedReceipt {
	if senderDomain == "" {
		senderDomain = msg.From.Domain()
	}
	doc := NewDocument(msg, senderDomain)
	var partial *Extraction

	if doc.HTML != "" {
		ext := safeExtract(ctx, p.logger, "structured_markup", doc, func(context.Context, *Document) (*Extraction, error) {
			ext, _ := ExtractStructuredOrder(doc.HTML)
			return ext, nil
		})
		if ext.hasMerchant() {
			return p.build(msg, doc, ext)
		}
	}

	if vendor, ok := p.registry.Lookup(senderDomain); ok {
		ext := safeExtract(ctx, p.logger, vendor.Name(), doc, vendor.Extract)
		if ext != nil && (ext.Total.Valid || ext.OrderID != "" || ext.hasMerchant()) {
			return p.build(msg, doc, ext)
		}
	}

	ext := safeExtract(ctx, p.logger, p.pattern.Name(), doc, p.pattern.Extract)
	if p.pattern.viable(ext) {
		return p.build(msg, doc, ext)
	}
	if ext.hasMerchant() && IsValidMerchant(ext.Merchant) {
		partial = ext
	}

	if opts.UseLLM && p.llm != nil {
		ext := safeExtract(ctx, p.logger, p.llm.Name(), doc, p.llm.Extract)
		if p.llm.viable(ext) {
			return p.build(msg, doc, ext)
		}
		if partial == nil && ext.hasMerchant() {
			partial = ext
		}
	}

	if partial != nil {
		partial.Confidence = PartialConfidence
		return p.build(msg, doc, partial)
	}

	reason := opts.FailureReason
	if reason == "" {
		reason = DefaultFailureReason
	}
	p.logger.Debug("No strategy extracted data", "message_id", msg.ID, "sender_domain", senderDomain)

	r := p.base(msg, senderDomain)
	r.ParseMethod = model.MethodNone
	r.ParseStatus = model.ParseStatusUnparseable
	r.ParseError = reason
	return r
}

// NewDocument prepares the strategy view of a message. HTML is preferred for text
// because plain-text parts of receipts are often truncated.
func NewDocument(msg *model.InboundMessage, senderDomain string) *Document {
	text := msg.TextBody
	if strings.TrimSpace(msg.HTMLBody) != "" {
		text = HTMLToText(msg.HTMLBody)
	}
	return &Document{
		Message:      msg,
		SenderDomain: strings.ToLower(senderDomain),
		Subject:      msg.Subject,
		HTML:         msg.HTMLBody,
		Text:         text,
	}
}

func (p *Pipeline) base(msg *model.InboundMessage, senderDomain string) *model.ParsedReceipt {
	return &model.ParsedReceipt{
		MessageID:     msg.ID,
		ThreadID:      msg.ThreadID,
		SenderAddress: msg.From.Address,
		SenderDomain:  senderDomain,
		Subject:       msg.Subject,
		ReceivedAt:    msg.ReceivedAt,
	}
}

func (p *Pipeline) build(msg *model.InboundMessage, doc *Document, ext *Extraction) *model.ParsedReceipt {
	r := p.base(msg, doc.SenderDomain)
	r.Merchant = strings.TrimSpace(ext.Merchant)
	r.MerchantNormalized = NormalizeMerchant(r.Merchant)
	r.OrderID = ext.OrderID
	r.Total = ext.Total
	r.Currency = ext.Currency
	if r.Currency == "" {
		r.Currency = p.defaultCurrency
	}
	r.LineItems = ext.LineItems
	r.ParseMethod = ext.Method
	r.ParseConfidence = ext.Confidence
	r.ParseStatus = model.ParseStatusParsed

	if ext.PurchaseDate != nil {
		r.PurchaseDate = ext.PurchaseDate
		r.DateSource = model.DateFromBody
	} else if !msg.ReceivedAt.IsZero() {
		d := time.Date(msg.ReceivedAt.Year(), msg.ReceivedAt.Month(), msg.ReceivedAt.Day(), 0, 0, 0, 0, time.UTC)
		r.PurchaseDate = &d
		r.DateSource = model.DateFromReceivedAt
	}

	r.DedupHash = r.ComputeDedupHash()

	p.logger.Debug("Parsed receipt",
		"message_id", msg.ID,
		"method", r.ParseMethod,
		"sub_type", ext.SubType,
		"confidence", r.ParseConfidence,
		"merchant", r.MerchantNormalized)
	return r
}

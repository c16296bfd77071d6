package parser

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Document is the message view handed to strategies.
type Document struct {
	Message      *model.InboundMessage
	SenderDomain string
	Subject      string
	HTML         string
	Text         string // Plain text, derived from HTML when present
}

// Extraction is what a strategy recovered from a document. Any field may be empty.
type Extraction struct {
	PurchaseDate *time.Time
	Total        decimal.NullDecimal
	Merchant     string
	OrderID      string
	Currency     string
	SubType      string
	LineItems    []model.LineItem
	Confidence   int
	Method       model.ParseMethod
	// Identified is set by vendors when the message content, not just the sender
	// domain, names the merchant and the kind of purchase.
	Identified bool
}

func (e *Extraction) hasMerchant() bool {
	return e != nil && strings.TrimSpace(e.Merchant) != ""
}

// VendorStrategy parses messages from one vendor's sender domains.
type VendorStrategy interface {
	Name() string
	// Domains are the sender domain suffixes this vendor owns.
	Domains() []string
	Extract(ctx context.Context, doc *Document) (*Extraction, error)
}

// Registry resolves sender domains to vendor strategies by longest suffix match.
// It is built once and read-only afterwards.
type Registry struct {
	entries []registryEntry
}

type registryEntry struct {
	strategy VendorStrategy
	suffix   string
}

// NewRegistry indexes the given strategies by their domains.
func NewRegistry(strategies ...VendorStrategy) *Registry {
	r := &Registry{}
	for _, s := range strategies {
		for _, d := range s.Domains() {
			d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
			if d == "" {
				continue
			}
			r.entries = append(r.entries, registryEntry{suffix: d, strategy: s})
		}
	}
	// Longest suffix first so the most specific vendor wins
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].suffix) > len(r.entries[j].suffix)
	})
	return r
}

// DefaultRegistry returns a registry with every built-in vendor.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewAmazonStrategy(),
		NewAppleStrategy(),
		NewUberStrategy(),
		NewPayPalStrategy(),
	)
}

// Lookup returns the vendor owning domain, if any.
func (r *Registry) Lookup(domain string) (VendorStrategy, bool) {
	if r == nil {
		return nil, false
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, e := range r.entries {
		if domain == e.suffix || strings.HasSuffix(domain, "."+e.suffix) {
			return e.strategy, true
		}
	}
	return nil, false
}

// Len reports the number of indexed domains.
func (r *Registry) Len() int {
	return len(r.entries)
}

// safeExtract runs a strategy behind a fault boundary: a panic or error is logged
// with the strategy identity and treated as a miss.
func safeExtract(ctx context.Context, logger *slog.Logger, name string, doc *Document,
	fn func(context.Context, *Document) (*Extraction, error),
) (ext *Extraction) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Strategy panicked",
				"strategy", name,
				"message_id", doc.Message.ID,
				"sender_domain", doc.SenderDomain,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			ext = nil
		}
	}()

	result, err := fn(ctx, doc)
	if err != nil {
		logger.Warn("Strategy failed",
			"strategy", name,
			"message_id", doc.Message.ID,
			"sender_domain", doc.SenderDomain,
			"error", err)
		return nil
	}
	return result
}

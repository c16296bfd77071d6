// Package matcher reconciles parsed receipts against bank transactions using an
// amount/date/merchant decision table and persists the results as enrichment links.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

type amountMatch int

const (
	amountNone amountMatch = iota
	amountFuzzy
	amountExact
)

// Matcher scores receipt/transaction pairs. It is safe for concurrent use.
type Matcher struct {
	links   service.LinkStore
	aliases service.AliasStore
	logger  *slog.Logger

	smallAmount    decimal.Decimal
	smallTolerance decimal.Decimal
	exactTolerance decimal.Decimal
	fuzzyPercent   decimal.Decimal
	aliasByReceipt map[string][]string
	cfg            Config
	mu             sync.RWMutex
}

// New creates a matcher. links and aliases may be nil for a scoring-only matcher.
func New(cfg Config, links service.LinkStore, aliases service.AliasStore, logger *slog.Logger) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		cfg:            cfg,
		links:          links,
		aliases:        aliases,
		logger:         logger.With("component", "matcher"),
		smallAmount:    decimal.NewFromFloat(cfg.SmallAmount),
		smallTolerance: decimal.NewFromFloat(cfg.SmallAmountTolerance),
		exactTolerance: decimal.NewFromFloat(cfg.ExactTolerance),
		fuzzyPercent:   decimal.NewFromFloat(cfg.FuzzyPercent),
		aliasByReceipt: make(map[string][]string),
	}, nil
}

// Config returns the active configuration.
func (m *Matcher) Config() Config {
	return m.cfg
}

// LoadAliases replaces the in-memory alias table with the stored one.
func (m *Matcher) LoadAliases(ctx context.Context) error {
	if m.aliases == nil {
		return nil
	}
	stored, err := m.aliases.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load merchant aliases: %w", err)
	}

	table := make(map[string][]string, len(stored))
	for _, a := range stored {
		table[a.ReceiptMerchant] = append(table[a.ReceiptMerchant], a.BankMerchant)
	}

	m.mu.Lock()
	m.aliasByReceipt = table
	m.mu.Unlock()

	m.logger.Debug("Loaded merchant aliases", "count", len(stored))
	return nil
}

// FindMatches scores every transaction in the window against the receipt and returns
// the candidates that cleared the decision table, best first. Ties prefer the smaller
// day difference, then the lower transaction id.
func (m *Matcher) FindMatches(receipt *model.ParsedReceipt, window []model.Transaction) []model.MatchCandidate {
	if receipt == nil || !receipt.Total.Valid || receipt.PurchaseDate == nil {
		return nil
	}

	m.mu.RLock()
	aliases := m.aliasByReceipt[receipt.MerchantNormalized]
	m.mu.RUnlock()

	var candidates []model.MatchCandidate
	for i := range window {
		txn := &window[i]
		c, ok := m.score(receipt, txn, aliases)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}

	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []model.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if abs(a.DayDiff) != abs(b.DayDiff) {
			return abs(a.DayDiff) < abs(b.DayDiff)
		}
		return a.TransactionID < b.TransactionID
	})
}

func (m *Matcher) score(receipt *model.ParsedReceipt, txn *model.Transaction, aliases []string) (model.MatchCandidate, bool) {
	c := model.MatchCandidate{TransactionID: txn.ID}

	target := txn.Amount.Abs()
	if receipt.Currency != "" && txn.Currency != "" && !strings.EqualFold(receipt.Currency, txn.Currency) {
		if fx, ok := ParseFX(txn.Description); ok && strings.EqualFold(fx.Currency, receipt.Currency) {
			target = fx.Amount
			c.CurrencyConverted = true
			c.ConversionRate = decimal.NewNullDecimal(fx.Rate)
		}
	}

	amount := m.compareAmount(receipt.Total.Decimal.Abs(), target)
	if amount == amountNone {
		return c, false
	}

	c.DayDiff = dayDiff(*receipt.PurchaseDate, txn.Date)
	if abs(c.DayDiff) > m.cfg.WindowDays {
		return c, false
	}

	merchant := m.merchantMatches(receipt.MerchantNormalized, txn, aliases)
	confidence, method := m.decide(amount, abs(c.DayDiff), merchant)
	if confidence == 0 {
		return c, false
	}

	if c.DayDiff < 0 && -c.DayDiff <= m.cfg.EarlyReceiptDays {
		confidence = min(confidence+m.cfg.EarlyReceiptBonus, 100)
	}

	c.Confidence = confidence
	c.Method = method
	return c, true
}

// decide walks the decision table top down. Exact amounts satisfy the fuzzy rows.
func (m *Matcher) decide(amount amountMatch, days int, merchant bool) (int, model.MatchMethod) {
	s := m.cfg.Scores
	exact := amount == amountExact
	closeDay := days <= m.cfg.CloseDays
	wideDay := days <= m.cfg.WideDays

	switch {
	case exact && days == 0 && merchant:
		return s.ExactSameDayMerchant, model.MatchExactSameDayMerchant
	case exact && closeDay && merchant:
		return s.ExactCloseMerchant, model.MatchExactCloseMerchant
	case exact && wideDay && merchant:
		return s.ExactWideMerchant, model.MatchExactWideMerchant
	case exact && closeDay:
		return s.ExactClose, model.MatchExactClose
	case wideDay && merchant:
		return s.FuzzyWideMerchant, model.MatchFuzzyWideMerchant
	case exact && wideDay:
		return s.ExactWide, model.MatchExactWide
	case wideDay:
		return s.FuzzyWide, model.MatchFuzzyWide
	case merchant:
		return s.FuzzyMerchant, model.MatchFuzzyMerchant
	}
	return 0, ""
}

func (m *Matcher) compareAmount(receipt, txn decimal.Decimal) amountMatch {
	diff := receipt.Sub(txn).Abs()

	tolerance := m.exactTolerance
	if receipt.LessThan(m.smallAmount) {
		tolerance = m.smallTolerance
	}
	if diff.LessThan(tolerance) {
		return amountExact
	}

	if txn.IsPositive() {
		pct := diff.Div(txn).Mul(decimal.NewFromInt(100))
		if pct.LessThanOrEqual(m.fuzzyPercent) {
			return amountFuzzy
		}
	}
	return amountNone
}

// dayDiff is the signed number of calendar days from txn to receipt.
func dayDiff(receipt, txn time.Time) int {
	r := time.Date(receipt.Year(), receipt.Month(), receipt.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(txn.Year(), txn.Month(), txn.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(r.Sub(t).Hours() / 24))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// normalizeAlias applies the same normalization receipts and statements go through.
func normalizeAlias(s string) string {
	return parser.NormalizeMerchant(s)
}

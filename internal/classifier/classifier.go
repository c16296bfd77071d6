// Package classifier decides whether an inbound message is a purchase receipt.
package classifier

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Scoring weights and thresholds for the generic keyword group.
const (
	WeightStrongReceipt   = 3
	WeightWeakReceipt     = 1
	WeightStrongMarketing = -3
	WeightWeakMarketing   = -1
	WeightOrderNumber     = 2
	WeightUnsubscribe     = -2

	AcceptScore = 3
	RejectScore = -2
)

// Input is everything the classifier looks at.
type Input struct {
	Subject             string
	BodyText            string
	SenderAddress       string
	HasListUnsubscribe  bool
	HasStructuredMarkup bool
}

// Classifier applies the rule groups in a fixed order. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	logger        *slog.Logger
	blocked       []string
	transactional []string
	merchants     []compiledMerchant
	strongReceipt []*regexp.Regexp
	weakReceipt   []*regexp.Regexp
	strongMarket  []*regexp.Regexp
	weakMarket    []*regexp.Regexp
	orderNumbers  []*regexp.Regexp
}

// New compiles a rule set into a Classifier.
func New(rules *RuleSet, logger *slog.Logger) (*Classifier, error) {
	if rules == nil {
		return nil, fmt.Errorf("%w: nil rule set", ErrInvalidRules)
	}
	if logger == nil {
		logger = slog.Default()
	}

	merchants, err := compileMerchants(rules.Merchants)
	if err != nil {
		return nil, err
	}
	orderNumbers, err := common.CompilePatterns(rules.OrderNumberPatterns)
	if err != nil {
		return nil, fmt.Errorf("%w: order number patterns: %w", ErrInvalidRules, err)
	}

	return &Classifier{
		logger:        logger.With("component", "classifier"),
		blocked:       lowerAll(rules.BlockedSenders),
		transactional: lowerAll(rules.TransactionalSenders),
		merchants:     merchants,
		strongReceipt: compilePhrases(rules.Keywords.StrongReceipt),
		weakReceipt:   compilePhrases(rules.Keywords.WeakReceipt),
		strongMarket:  compilePhrases(rules.Keywords.StrongMarketing),
		weakMarket:    compilePhrases(rules.Keywords.WeakMarketing),
		orderNumbers:  orderNumbers,
	}, nil
}

// NewDefault builds a Classifier from the built-in rules.
func NewDefault(logger *slog.Logger) (*Classifier, error) {
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return New(rules, logger)
}

// Classify returns the verdict of the first rule group with an opinion.
func (c *Classifier) Classify(in Input) model.ClassificationResult {
	if in.HasStructuredMarkup {
		return model.ClassificationResult{
			IsReceipt:  true,
			Reason:     model.ReasonStructuredMarkup,
			Confidence: 100,
			Detail:     "message carries order markup",
		}
	}

	sender := strings.ToLower(strings.TrimSpace(in.SenderAddress))
	domain := senderDomain(sender)

	if entry, ok := c.blockedEntry(sender, domain); ok {
		return model.ClassificationResult{
			IsReceipt:  false,
			Reason:     model.ReasonBlockedSender,
			Confidence: 100,
			Detail:     "sender is blocked: " + entry,
		}
	}

	subject := strings.ToLower(strings.TrimSpace(in.Subject))
	body := strings.ToLower(in.BodyText)

	if result, ok := c.merchantVerdict(domain, subject, body); ok {
		return result
	}

	return c.score(subject, body, domain, in.HasListUnsubscribe)
}

func (c *Classifier) blockedEntry(sender, domain string) (string, bool) {
	for _, b := range c.blocked {
		if strings.Contains(b, "@") {
			if sender == b {
				return b, true
			}
			continue
		}
		if domainMatches(domain, b) {
			return b, true
		}
	}
	return "", false
}

// merchantVerdict walks merchant rules for the sender; a miss means no opinion.
func (c *Classifier) merchantVerdict(domain, subject, body string) (model.ClassificationResult, bool) {
	if domain == "" {
		return model.ClassificationResult{}, false
	}
	for _, m := range c.merchants {
		if !containsAny(domain, m.domains) {
			continue
		}
		for _, rule := range m.rules {
			if !rule.matches(subject, body) {
				continue
			}
			accept := rule.Verdict == VerdictAccept
			reason := model.ReasonMerchantReject
			if accept {
				reason = model.ReasonMerchantAccept
			}
			return model.ClassificationResult{
				IsReceipt:  accept,
				Reason:     reason,
				Confidence: rule.Confidence,
				Detail:     fmt.Sprintf("%s: %s", m.name, rule.Reason),
			}, true
		}
	}
	return model.ClassificationResult{}, false
}

func (c *Classifier) score(subject, body, domain string, hasUnsubscribe bool) model.ClassificationResult {
	text := subject + "\n" + body
	var (
		score int
		hits  []string
	)

	add := func(patterns []*regexp.Regexp, weight int, label string) {
		for _, re := range patterns {
			if re.MatchString(text) {
				score += weight
				hits = append(hits, label)
			}
		}
	}
	add(c.strongReceipt, WeightStrongReceipt, "strong_receipt")
	add(c.weakReceipt, WeightWeakReceipt, "weak_receipt")
	add(c.strongMarket, WeightStrongMarketing, "strong_marketing")
	add(c.weakMarket, WeightWeakMarketing, "weak_marketing")

	for _, re := range c.orderNumbers {
		if re.MatchString(text) {
			score += WeightOrderNumber
			hits = append(hits, "order_number")
			break
		}
	}

	if hasUnsubscribe && !containsAny(domain, c.transactional) {
		score += WeightUnsubscribe
		hits = append(hits, "unsubscribe")
	}

	detail := fmt.Sprintf("score %d (%s)", score, strings.Join(hits, ","))
	c.logger.Debug("Scored message", "domain", domain, "score", score, "hits", hits)

	switch {
	case score >= AcceptScore:
		return model.ClassificationResult{
			IsReceipt:  true,
			Reason:     model.ReasonScoreAccept,
			Confidence: scoreConfidence(score),
			Detail:     detail,
		}
	case score <= RejectScore:
		return model.ClassificationResult{
			IsReceipt:  false,
			Reason:     model.ReasonScoreReject,
			Confidence: scoreConfidence(-score),
			Detail:     detail,
		}
	default:
		return model.ClassificationResult{
			IsReceipt:  false,
			Reason:     model.ReasonAmbiguous,
			Confidence: 50,
			Detail:     detail,
		}
	}
}

// scoreConfidence maps a score magnitude onto 60..95.
func scoreConfidence(magnitude int) int {
	return min(60+5*magnitude, 95)
}

func senderDomain(address string) string {
	address = strings.Trim(address, "<> ")
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return address
}

func domainMatches(domain, entry string) bool {
	return domain == entry || strings.HasSuffix(domain, "."+entry)
}

func containsAny(domain string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(domain, n) {
			return true
		}
	}
	return false
}

// compilePhrases turns keyword phrases into case-insensitive matchers anchored on word
// boundaries where the phrase edge is a word character.
func compilePhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		expr := regexp.QuoteMeta(p)
		if isWordRune(rune(p[0])) {
			expr = `\b` + expr
		}
		if isWordRune(rune(p[len(p)-1])) {
			expr += `\b`
		}
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

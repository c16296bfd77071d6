package classifier

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

//go:embed rules.yaml
var defaultRules []byte

// Predicate kinds understood by merchant rules.
const (
	PredicateSubjectExact    = "subject_exact"
	PredicateSubjectPrefix   = "subject_prefix"
	PredicateSubjectContains = "subject_contains"
	PredicateBodyContains    = "body_contains"
	PredicateSubjectRegex    = "subject_regex"
)

// Verdicts a merchant rule can produce.
const (
	VerdictAccept = "accept"
	VerdictReject = "reject"
)

// ErrInvalidRules indicates a malformed rule document.
var ErrInvalidRules = errors.New("invalid classifier rules")

// RuleSet is the YAML form of the classifier's rule table.
type RuleSet struct {
	Keywords             Keywords        `yaml:"keywords"`
	BlockedSenders       []string        `yaml:"blocked_senders"`
	TransactionalSenders []string        `yaml:"transactional_senders"`
	Merchants            []MerchantRules `yaml:"merchants"`
	OrderNumberPatterns  []string        `yaml:"order_number_patterns"`
}

// MerchantRules is the ordered rule list for senders whose domain contains one of Domains.
type MerchantRules struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
	Rules   []Rule   `yaml:"rules"`
}

// Rule is a single predicate and the verdict it yields on a hit.
type Rule struct {
	Predicate  string `yaml:"predicate"`
	Value      string `yaml:"value"`
	Verdict    string `yaml:"verdict"`
	Reason     string `yaml:"reason"`
	Confidence int    `yaml:"confidence"`
}

// Keywords are the phrase lists used by generic scoring.
type Keywords struct {
	StrongReceipt   []string `yaml:"strong_receipt"`
	WeakReceipt     []string `yaml:"weak_receipt"`
	StrongMarketing []string `yaml:"strong_marketing"`
	WeakMarketing   []string `yaml:"weak_marketing"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() (*RuleSet, error) {
	return LoadRules(bytes.NewReader(defaultRules))
}

// LoadRules decodes and validates a YAML rule document.
func LoadRules(r io.Reader) (*RuleSet, error) {
	var rules RuleSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// LoadRulesFile reads an override rule file, falling back to the built-in table when path is empty.
func LoadRulesFile(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules()
	}
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadRules(f)
}

func (rs *RuleSet) validate() error {
	for _, m := range rs.Merchants {
		if m.Name == "" || len(m.Domains) == 0 {
			return fmt.Errorf("%w: merchant entries need a name and at least one domain", ErrInvalidRules)
		}
		for i, rule := range m.Rules {
			switch rule.Predicate {
			case PredicateSubjectExact, PredicateSubjectPrefix, PredicateSubjectContains,
				PredicateBodyContains, PredicateSubjectRegex:
			default:
				return fmt.Errorf("%w: %s rule %d: unknown predicate %q", ErrInvalidRules, m.Name, i, rule.Predicate)
			}
			if rule.Verdict != VerdictAccept && rule.Verdict != VerdictReject {
				return fmt.Errorf("%w: %s rule %d: unknown verdict %q", ErrInvalidRules, m.Name, i, rule.Verdict)
			}
			if rule.Value == "" {
				return fmt.Errorf("%w: %s rule %d: empty value", ErrInvalidRules, m.Name, i)
			}
			if rule.Confidence < 0 || rule.Confidence > 100 {
				return fmt.Errorf("%w: %s rule %d: confidence out of range", ErrInvalidRules, m.Name, i)
			}
		}
	}
	return nil
}

// compiledRule is a Rule ready for evaluation.
type compiledRule struct {
	re *regexp.Regexp
	Rule
	value string // lowercased
}

func (r compiledRule) matches(subject, body string) bool {
	switch r.Predicate {
	case PredicateSubjectExact:
		return subject == r.value
	case PredicateSubjectPrefix:
		return strings.HasPrefix(subject, r.value)
	case PredicateSubjectContains:
		return strings.Contains(subject, r.value)
	case PredicateBodyContains:
		return strings.Contains(body, r.value)
	case PredicateSubjectRegex:
		return r.re.MatchString(subject)
	}
	return false
}

type compiledMerchant struct {
	name    string
	domains []string
	rules   []compiledRule
}

func compileMerchants(merchants []MerchantRules) ([]compiledMerchant, error) {
	out := make([]compiledMerchant, 0, len(merchants))
	for _, m := range merchants {
		cm := compiledMerchant{name: m.Name, domains: lowerAll(m.Domains)}
		for _, rule := range m.Rules {
			cr := compiledRule{Rule: rule, value: strings.ToLower(strings.TrimSpace(rule.Value))}
			if rule.Predicate == PredicateSubjectRegex {
				res, err := common.CompilePatterns([]string{rule.Value})
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRules, m.Name, err)
				}
				cr.re = res[0]
			}
			cm.rules = append(cm.rules, cr)
		}
		out = append(out, cm)
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

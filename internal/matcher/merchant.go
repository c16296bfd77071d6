package matcher

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
)

// minContainLen keeps very short names ("us", "co") from matching everything.
const minContainLen = 3

// merchantMatches reports whether the receipt merchant identifies the transaction.
// aliases maps a normalized receipt merchant to normalized bank renderings.
func (m *Matcher) merchantMatches(receiptMerchant string, txn *model.Transaction, aliases []string) bool {
	if receiptMerchant == "" {
		return false
	}
	bankNames := []string{
		parser.NormalizeMerchant(txn.MerchantName),
		parser.NormalizeMerchant(txn.Description),
	}

	for _, bank := range bankNames {
		if bank == "" {
			continue
		}
		if contains(bank, receiptMerchant) || contains(receiptMerchant, bank) {
			return true
		}
		for _, alias := range aliases {
			if contains(bank, alias) {
				return true
			}
		}
	}

	// Only the cleaned merchant name is compared by edit distance; raw descriptions
	// carry store numbers and locations that swamp the score.
	return m.similar(receiptMerchant, bankNames[0])
}

func contains(haystack, needle string) bool {
	return len(needle) >= minContainLen && strings.Contains(haystack, needle)
}

func (m *Matcher) similar(a, b string) bool {
	if len(a) < m.cfg.MinSimilarityLen || len(b) < m.cfg.MinSimilarityLen {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	longest := max(len(a), len(b))
	return 1-float64(dist)/float64(longest) >= m.cfg.MerchantSimilarity
}

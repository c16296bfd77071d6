package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewDefault(nil)
	require.NoError(t, err)
	return c
}

func TestClassifier_Classify(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name       string
		wantReason model.ReasonCode
		in         Input
		wantAccept bool
	}{
		{
			name: "structured markup wins over blocked sender",
			in: Input{
				Subject:             "Weekly digest",
				SenderAddress:       "news@medium.com",
				HasStructuredMarkup: true,
			},
			wantAccept: true,
			wantReason: model.ReasonStructuredMarkup,
		},
		{
			name: "blocked domain",
			in: Input{
				Subject:       "Your receipt",
				BodyText:      "receipt order total $10.00",
				SenderAddress: "noreply@medium.com",
			},
			wantReason: model.ReasonBlockedSender,
		},
		{
			name: "blocked subdomain",
			in: Input{
				Subject:       "Receipt",
				SenderAddress: "alerts@mail.pinterest.com",
			},
			wantReason: model.ReasonBlockedSender,
		},
		{
			name: "blocked exact address",
			in: Input{
				Subject:       "Receipt",
				SenderAddress: "noreply@linkedin.com",
			},
			wantReason: model.ReasonBlockedSender,
		},
		{
			name: "amazon order confirmation",
			in: Input{
				Subject:       "Your Amazon.com order of \"Widget\" has been placed",
				SenderAddress: "auto-confirm@amazon.com",
			},
			wantAccept: true,
			wantReason: model.ReasonMerchantAccept,
		},
		{
			name: "amazon shipping update rejected on other TLD",
			in: Input{
				Subject:       "Shipped: \"Widget\"",
				BodyText:      "Your receipt and order total",
				SenderAddress: "shipment-tracking@amazon.co.uk",
			},
			wantReason: model.ReasonMerchantReject,
		},
		{
			name: "merchant with no hit falls through to scoring",
			in: Input{
				Subject:       "Thank you for your order",
				BodyText:      "Order number: 112-3344556-7788990. Total paid $42.00",
				SenderAddress: "orders@uber.com",
			},
			wantAccept: true,
			wantReason: model.ReasonScoreAccept,
		},
		{
			name: "apple exact subject",
			in: Input{
				Subject:       "Your receipt from Apple.",
				SenderAddress: "no_reply@email.apple.com",
			},
			wantAccept: true,
			wantReason: model.ReasonMerchantAccept,
		},
		{
			name: "generic receipt by score",
			in: Input{
				Subject:       "Your receipt from Corner Bakery",
				BodyText:      "Thanks for your order. Subtotal $8.00 Total $9.12",
				SenderAddress: "receipts@cornerbakery.example",
			},
			wantAccept: true,
			wantReason: model.ReasonScoreAccept,
		},
		{
			name: "marketing with unsubscribe rejected",
			in: Input{
				Subject:            "Sale ends tonight: 40% off everything",
				BodyText:           "Shop now. New arrivals just dropped.",
				SenderAddress:      "promo@store.example",
				HasListUnsubscribe: true,
			},
			wantReason: model.ReasonScoreReject,
		},
		{
			name: "ambiguous rejects by default",
			in: Input{
				Subject:       "Checking in",
				BodyText:      "Hope your purchase went well",
				SenderAddress: "hello@store.example",
			},
			wantReason: model.ReasonAmbiguous,
		},
		{
			name: "unsubscribe ignored for transactional sender",
			in: Input{
				Subject:            "Payment receipt",
				BodyText:           "Amount charged: $20.00",
				SenderAddress:      "service@stripe.com",
				HasListUnsubscribe: true,
			},
			wantAccept: true,
			wantReason: model.ReasonScoreAccept,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.in)
			assert.Equal(t, tt.wantAccept, got.IsReceipt, "detail: %s", got.Detail)
			assert.Equal(t, tt.wantReason, got.Reason, "detail: %s", got.Detail)
			assert.NotEmpty(t, got.Detail)
			assert.GreaterOrEqual(t, got.Confidence, 0)
			assert.LessOrEqual(t, got.Confidence, 100)
		})
	}
}

func TestClassifier_UnsubscribePenalty(t *testing.T) {
	c := newTestClassifier(t)

	// "receipt" alone scores +3 and is accepted; the header pulls it back to ambiguous.
	in := Input{Subject: "Your receipt", SenderAddress: "hello@shop.example"}
	assert.Equal(t, model.ReasonScoreAccept, c.Classify(in).Reason)

	in.HasListUnsubscribe = true
	assert.Equal(t, model.ReasonAmbiguous, c.Classify(in).Reason)
}

func TestClassifier_KeywordBoundaries(t *testing.T) {
	c := newTestClassifier(t)

	// "recorder" must not count as "order"
	got := c.Classify(Input{Subject: "About your recorder", SenderAddress: "a@b.example"})
	assert.Contains(t, got.Detail, "score 0")
}

func TestLoadRules(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "minimal",
			doc: `
merchants:
  - name: shop
    domains: [shop.example]
    rules:
      - predicate: subject_regex
        value: '^order \d+'
        verdict: accept
        confidence: 90
        reason: order
`,
		},
		{name: "empty document", doc: ""},
		{
			name: "unknown predicate",
			doc: `
merchants:
  - name: shop
    domains: [shop.example]
    rules:
      - predicate: body_regex
        value: x
        verdict: accept
`,
			wantErr: true,
		},
		{
			name: "unknown verdict",
			doc: `
merchants:
  - name: shop
    domains: [shop.example]
    rules:
      - predicate: subject_exact
        value: x
        verdict: maybe
`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			doc:     "blocked: [a]\n",
			wantErr: true,
		},
		{
			name: "merchant without domains",
			doc: `
merchants:
  - name: shop
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := LoadRules(strings.NewReader(tt.doc))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRules)
				return
			}
			require.NoError(t, err)
			_, err = New(rules, nil)
			assert.NoError(t, err)
		})
	}
}

func TestNew_InvalidRegex(t *testing.T) {
	rules := &RuleSet{
		Merchants: []MerchantRules{{
			Name:    "shop",
			Domains: []string{"shop.example"},
			Rules:   []Rule{{Predicate: PredicateSubjectRegex, Value: "(", Verdict: VerdictAccept}},
		}},
	}
	_, err := New(rules, nil)
	assert.ErrorIs(t, err, ErrInvalidRules)
}

func TestLoadRulesFile_Default(t *testing.T) {
	rules, err := LoadRulesFile("")
	require.NoError(t, err)
	assert.NotEmpty(t, rules.Merchants)
	assert.NotEmpty(t, rules.Keywords.StrongReceipt)
}

func TestDefaultRules_Load(t *testing.T) {
	rules, err := DefaultRules()
	require.NoError(t, err)
	require.NotEmpty(t, rules.Merchants)
	assert.Contains(t, rules.Keywords.StrongMarketing, "% off")

	_, err = NewDefault(nil)
	require.NoError(t, err)
}

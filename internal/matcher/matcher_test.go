package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	return m
}

func bakeryReceipt(total string) *model.ParsedReceipt {
	return testutil.NewReceipt("r1").
		WithMerchant("Corner Bakery", "corner bakery").
		WithTotal(total).
		Build()
}

func TestFindMatches_DecisionTable(t *testing.T) {
	const (
		bakery = "CORNER BAKERY #12"
		other  = "OTHER STORE"
	)

	tests := []struct {
		name           string
		amount         string
		merchant       string
		wantMethod     model.MatchMethod
		day            int
		wantConfidence int
		wantDayDiff    int
	}{
		{name: "exact same day merchant", amount: "12.34", day: 0, merchant: bakery, wantConfidence: 100, wantMethod: model.MatchExactSameDayMerchant},
		{name: "exact close day merchant", amount: "12.34", day: -2, merchant: bakery, wantConfidence: 95, wantMethod: model.MatchExactCloseMerchant, wantDayDiff: 2},
		{name: "exact wide day merchant", amount: "12.34", day: -4, merchant: bakery, wantConfidence: 90, wantMethod: model.MatchExactWideMerchant, wantDayDiff: 4},
		{name: "exact close day", amount: "12.34", day: -1, merchant: other, wantConfidence: 85, wantMethod: model.MatchExactClose, wantDayDiff: 1},
		{name: "fuzzy wide day merchant", amount: "12.50", day: -3, merchant: bakery, wantConfidence: 80, wantMethod: model.MatchFuzzyWideMerchant, wantDayDiff: 3},
		{name: "exact wide day", amount: "12.34", day: -3, merchant: other, wantConfidence: 75, wantMethod: model.MatchExactWide, wantDayDiff: 3},
		{name: "fuzzy wide day", amount: "12.50", day: -4, merchant: other, wantConfidence: 70, wantMethod: model.MatchFuzzyWide, wantDayDiff: 4},
		{name: "fuzzy merchant in window", amount: "12.50", day: -8, merchant: bakery, wantConfidence: 65, wantMethod: model.MatchFuzzyMerchant, wantDayDiff: 8},
		{name: "exact amount satisfies fuzzy merchant row", amount: "12.34", day: -8, merchant: bakery, wantConfidence: 65, wantMethod: model.MatchFuzzyMerchant, wantDayDiff: 8},
		{name: "early receipt bonus", amount: "12.34", day: 3, merchant: other, wantConfidence: 80, wantMethod: model.MatchExactWide, wantDayDiff: -3},
		{name: "early receipt bonus capped", amount: "12.34", day: 1, merchant: bakery, wantConfidence: 100, wantMethod: model.MatchExactCloseMerchant, wantDayDiff: -1},
		{name: "early receipt bonus on wide merchant", amount: "12.34", day: 4, merchant: bakery, wantConfidence: 95, wantMethod: model.MatchExactWideMerchant, wantDayDiff: -4},
		{name: "exact without merchant outside wide band", amount: "12.34", day: -8, merchant: other},
		{name: "amount too far off", amount: "13.00", day: 0, merchant: bakery},
		{name: "outside window", amount: "12.34", day: -11, merchant: bakery},
		{name: "outside window after", amount: "12.34", day: 11, merchant: bakery},
	}

	m := newTestMatcher(t)
	receipt := bakeryReceipt("12.34")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testutil.NewTransaction("t1").WithAmount(tt.amount).OnDay(tt.day).WithMerchant(tt.merchant).Build()

			got := m.FindMatches(receipt, []model.Transaction{txn})
			if tt.wantConfidence == 0 {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "t1", got[0].TransactionID)
			assert.Equal(t, tt.wantConfidence, got[0].Confidence)
			assert.Equal(t, tt.wantMethod, got[0].Method)
			assert.Equal(t, tt.wantDayDiff, got[0].DayDiff)
			assert.False(t, got[0].CurrencyConverted)
		})
	}
}

func TestFindMatches_SmallAmountTolerance(t *testing.T) {
	m := newTestMatcher(t)
	receipt := bakeryReceipt("3.00")

	got := m.FindMatches(receipt, []model.Transaction{
		testutil.NewTransaction("near").WithAmount("3.40").Build(),
		testutil.NewTransaction("far").WithAmount("3.55").Build(),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].TransactionID)
	assert.Equal(t, model.MatchExactClose, got[0].Method)
}

func TestFindMatches_ForeignCurrency(t *testing.T) {
	m := newTestMatcher(t)
	receipt := testutil.NewReceipt("r-fx").
		WithMerchant("Amazon", "amazon").
		WithTotal("30.10").
		WithCurrency("USD").
		Build()

	converted := testutil.NewTransaction("gbp").
		WithAmount("22.50").
		WithCurrency("GBP").
		WithDescription("AMAZON 30.00 USD, RATE 0.75/GBP").
		Build()
	otherForeign := testutil.NewTransaction("eur").
		WithAmount("22.50").
		WithCurrency("GBP").
		WithDescription("AMAZON 30.00 EUR, RATE 0.75/GBP").
		Build()

	got := m.FindMatches(receipt, []model.Transaction{converted, otherForeign})
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "gbp", c.TransactionID)
	assert.True(t, c.CurrencyConverted)
	require.True(t, c.ConversionRate.Valid)
	assert.Equal(t, "0.75", c.ConversionRate.Decimal.String())
	assert.Equal(t, model.MatchFuzzyWideMerchant, c.Method)
	assert.Equal(t, 80, c.Confidence)
}

func TestFindMatches_Ordering(t *testing.T) {
	m := newTestMatcher(t)
	receipt := testutil.NewReceipt("r1").WithMerchant("Corner Bakery", "corner bakery").WithTotal("12.34").Build()

	got := m.FindMatches(receipt, []model.Transaction{
		testutil.NewTransaction("t-c").WithAmount("12.34").Build(),
		testutil.NewTransaction("t-a").WithAmount("12.34").OnDay(-1).Build(),
		testutil.NewTransaction("t-b").WithAmount("12.34").Build(),
		testutil.NewTransaction("t-best").WithAmount("12.34").WithMerchant("Corner Bakery").Build(),
	})

	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.TransactionID)
	}
	assert.Equal(t, []string{"t-best", "t-b", "t-c", "t-a"}, ids)
}

func TestFindMatches_MissingFields(t *testing.T) {
	m := newTestMatcher(t)
	txns := []model.Transaction{testutil.NewTransaction("t1").WithAmount("12.34").Build()}

	noTotal := testutil.NewReceipt("r1").WithMerchant("Corner Bakery", "corner bakery").Build()
	assert.Empty(t, m.FindMatches(noTotal, txns))

	noDate := bakeryReceipt("12.34")
	noDate.PurchaseDate = nil
	assert.Empty(t, m.FindMatches(noDate, txns))

	assert.Empty(t, m.FindMatches(nil, txns))
}

func TestMerchantMatching(t *testing.T) {
	tests := []struct {
		name        string
		receipt     string
		txnMerchant string
		txnDesc     string
		want        bool
	}{
		{name: "receipt inside statement", receipt: "amazon", txnDesc: "AMAZON MKTPL*AB12C", want: true},
		{name: "statement inside receipt", receipt: "blue bottle coffee", txnMerchant: "Blue Bottle", want: true},
		{name: "typo within edit distance", receipt: "blue bottle coffee", txnMerchant: "Blue Botle Coffee", want: true},
		{name: "different merchant", receipt: "corner bakery", txnMerchant: "Other Store", want: false},
		{name: "short names do not contain-match", receipt: "us", txnDesc: "US POSTAL SERVICE", want: false},
		{name: "no receipt merchant", receipt: "", txnMerchant: "Anything", want: false},
		{name: "short names skip edit distance", receipt: "ubr", txnMerchant: "Uba", want: false},
	}

	m := newTestMatcher(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testutil.NewTransaction("t1").WithMerchant(tt.txnMerchant).WithDescription(tt.txnDesc).Build()
			assert.Equal(t, tt.want, m.merchantMatches(tt.receipt, &txn, nil))
		})
	}
}

func TestLearnAlias(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	m, err := New(DefaultConfig(), db.Storage, db.Storage, nil)
	require.NoError(t, err)

	receipt := testutil.NewReceipt("r1").WithMerchant("Patreon", "patreon").WithTotal("15.00").Build()
	txn := testutil.NewTransaction("t1").WithAmount("15.00").WithDescription("MEMBERSHIP PTRN").Build()

	got := m.FindMatches(receipt, []model.Transaction{txn})
	require.Len(t, got, 1)
	assert.Equal(t, model.MatchExactClose, got[0].Method)

	require.NoError(t, m.LearnAlias(ctx, "Patreon", "PTRN"))
	got = m.FindMatches(receipt, []model.Transaction{txn})
	require.Len(t, got, 1)
	assert.Equal(t, model.MatchExactSameDayMerchant, got[0].Method)

	// A fresh matcher sees the alias once it loads the table.
	fresh, err := New(DefaultConfig(), db.Storage, db.Storage, nil)
	require.NoError(t, err)
	require.NoError(t, fresh.LoadAliases(ctx))
	got = fresh.FindMatches(receipt, []model.Transaction{txn})
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Confidence)

	assert.Error(t, m.LearnAlias(ctx, "Patreon", "***"))
	assert.NoError(t, m.LearnAlias(ctx, "Patreon", "PATREON"))
}

func TestParseFX(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		amount   string
		rate     string
		currency string
		settle   string
		ok       bool
	}{
		{name: "issuer note", desc: "AMAZON 30.00 USD, RATE 0.75/GBP", amount: "30", rate: "0.75", currency: "USD", settle: "GBP", ok: true},
		{name: "thousands separator", desc: "HOTEL 1,250.00 EUR RATE 1.0834/USD", amount: "1250", rate: "1.0834", currency: "EUR", settle: "USD", ok: true},
		{name: "lowercase", desc: "cafe 4.50 chf, rate 0.9 / eur", amount: "4.5", rate: "0.9", currency: "CHF", settle: "EUR", ok: true},
		{name: "no note", desc: "AMAZON MKTPL*AB12C"},
		{name: "zero rate", desc: "SHOP 10.00 USD, RATE 0/GBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx, ok := ParseFX(tt.desc)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.amount, fx.Amount.String())
			assert.Equal(t, tt.rate, fx.Rate.String())
			assert.Equal(t, tt.currency, fx.Currency)
			assert.Equal(t, tt.settle, fx.Settlement)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		mutate  func(*Config)
		name    string
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "close wider than wide", mutate: func(c *Config) { c.CloseDays = 5 }, wantErr: true},
		{name: "window narrower than wide", mutate: func(c *Config) { c.WindowDays = 3 }, wantErr: true},
		{name: "suggest above confirm", mutate: func(c *Config) { c.SuggestThreshold = 75 }, wantErr: true},
		{name: "zero tolerance", mutate: func(c *Config) { c.ExactTolerance = 0 }, wantErr: true},
		{name: "similarity above one", mutate: func(c *Config) { c.MerchantSimilarity = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil, nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

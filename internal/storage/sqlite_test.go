package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func makeReceipt(id, merchant, total string, purchase time.Time) *model.ParsedReceipt {
	r := &model.ParsedReceipt{
		MessageID:          id,
		ThreadID:           "thread-" + id,
		SenderAddress:      "orders@example.com",
		SenderDomain:       "example.com",
		Subject:            "Your order",
		ReceivedAt:         purchase.Add(2 * time.Hour),
		Merchant:           merchant,
		MerchantNormalized: merchant,
		Currency:           "USD",
		DateSource:         model.DateFromBody,
		ParseMethod:        model.MethodPattern,
		ParseStatus:        model.ParseStatusParsed,
		ParseConfidence:    80,
		LineItems: []model.LineItem{
			{Name: "Widget", Quantity: 2, UnitPrice: decimal.RequireFromString("1.50")},
		},
	}
	if purchase.IsZero() {
		r.ReceivedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	} else {
		r.PurchaseDate = &purchase
	}
	if total != "" {
		r.Total = decimal.NewNullDecimal(decimal.RequireFromString(total))
	}
	r.DedupHash = r.ComputeDedupHash()
	return r
}

func TestNewSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, store.Migrate(context.Background()))

	version, err = store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op
	require.NoError(t, store.Migrate(context.Background()))
}

func TestSQLiteStorage_ReceiptRoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	purchase := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	r := makeReceipt("msg-1", "amazon", "42.50", purchase)
	r.OrderID = "113-1234567-1234567"
	require.NoError(t, store.SaveReceipt(ctx, r))

	got, err := store.GetReceipt(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "amazon", got.MerchantNormalized)
	assert.True(t, got.Total.Valid)
	assert.True(t, got.Total.Decimal.Equal(decimal.RequireFromString("42.50")))
	require.NotNil(t, got.PurchaseDate)
	assert.True(t, got.PurchaseDate.Equal(purchase))
	assert.Equal(t, r.DedupHash, got.DedupHash)
	assert.Equal(t, "113-1234567-1234567", got.OrderID)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, 2, got.LineItems[0].Quantity)
	assert.Nil(t, got.DeletedAt)

	_, err = store.GetReceipt(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_SaveReceiptDuplicate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	r := makeReceipt("msg-1", "amazon", "10.00", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveReceipt(ctx, r))

	err := store.SaveReceipt(ctx, r)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	exists, err := store.ReceiptExists(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteStorage_UpsertReceipt(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	r := &model.ParsedReceipt{
		MessageID:   "msg-1",
		ReceivedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		ParseMethod: model.MethodNone,
		ParseStatus: model.ParseStatusUnparseable,
		ParseError:  "no strategy extracted data",
	}
	require.NoError(t, store.SaveReceipt(ctx, r))

	reparsed := makeReceipt("msg-1", "apple", "9.99", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	reparsed.ParseMethod = model.MethodLLM
	require.NoError(t, store.UpsertReceipt(ctx, reparsed))

	got, err := store.GetReceipt(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusParsed, got.ParseStatus)
	assert.Equal(t, model.MethodLLM, got.ParseMethod)
	assert.Empty(t, got.ParseError)
	assert.Equal(t, reparsed.DedupHash, got.DedupHash)
}

func TestSQLiteStorage_FindReceiptByHash(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	r := makeReceipt("msg-1", "uber", "18.20", time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveReceipt(ctx, r))

	got, err := store.FindReceiptByHash(ctx, r.DedupHash)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.MessageID)

	_, err = store.FindReceiptByHash(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_ListReceipts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveReceipt(ctx, makeReceipt("a", "amazon", "10.00", day)))
	require.NoError(t, store.SaveReceipt(ctx, makeReceipt("b", "apple", "20.00", day.AddDate(0, 0, 1))))
	require.NoError(t, store.SaveReceipt(ctx, makeReceipt("c", "uber", "", day.AddDate(0, 0, 2))))
	require.NoError(t, store.SaveReceipt(ctx, &model.ParsedReceipt{
		MessageID:   "d",
		ReceivedAt:  day,
		ParseMethod: model.MethodNone,
		ParseStatus: model.ParseStatusUnparseable,
		ParseError:  "no strategy extracted data",
	}))
	require.NoError(t, store.CreateLink(ctx, &model.EnrichmentLink{
		ReceiptID:     "a",
		TransactionID: "txn-1",
		SourceType:    model.SourceReceipt,
		Confidence:    90,
		Method:        model.MatchExactWideMerchant,
		Status:        model.LinkConfirmed,
		IsPrimary:     true,
	}))

	tests := []struct {
		name   string
		want   []string
		filter service.ReceiptFilter
	}{
		{name: "all", filter: service.ReceiptFilter{}, want: []string{"d", "a", "b", "c"}},
		{name: "unparseable", filter: service.ReceiptFilter{Status: model.ParseStatusUnparseable}, want: []string{"d"}},
		{name: "unmatched with totals", filter: service.ReceiptFilter{Unmatched: true}, want: []string{"b"}},
		{name: "limit", filter: service.ReceiptFilter{Limit: 2}, want: []string{"d", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipts, err := store.ListReceipts(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(receipts))
			for _, r := range receipts {
				ids = append(ids, r.MessageID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStorage_SoftDeleteReceipt(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.SaveReceipt(ctx, makeReceipt("msg-1", "amazon", "5.00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, store.SoftDeleteReceipt(ctx, "msg-1"))

	receipts, err := store.ListReceipts(ctx, service.ReceiptFilter{})
	require.NoError(t, err)
	assert.Empty(t, receipts)

	receipts, err = store.ListReceipts(ctx, service.ReceiptFilter{WithDeleted: true})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.NotNil(t, receipts[0].DeletedAt)

	// Soft-deleted messages are still known so they are not re-ingested
	exists, err := store.ReceiptExists(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, store.SoftDeleteReceipt(ctx, "msg-1"), common.ErrNotFound)
}

func TestSQLiteStorage_Attachments(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	att := &model.AttachmentRecord{
		MessageID:   "msg-1",
		Key:         "ab/abcdef",
		ContentHash: "abcdef",
		ETag:        "abcdef",
		Filename:    "invoice.pdf",
		MimeType:    "application/pdf",
		Size:        1024,
	}
	require.NoError(t, store.SaveAttachment(ctx, att))
	// Re-saving the same object is idempotent
	require.NoError(t, store.SaveAttachment(ctx, att))

	got, err := store.ListAttachments(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *att, got[0])
}

func TestSQLiteStorage_Transactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		{ID: "t1", UserID: "u1", AccountID: "acc", Date: base, Amount: decimal.RequireFromString("-12.34"), Currency: "USD", MerchantName: "Amazon"},
		{ID: "t2", UserID: "u1", AccountID: "acc", Date: base.AddDate(0, 0, 5), Amount: decimal.RequireFromString("8.00"), Currency: "USD", Description: "UBER TRIP"},
		{ID: "t3", UserID: "u2", AccountID: "other", Date: base, Amount: decimal.RequireFromString("1.00")},
	}
	require.NoError(t, store.SaveTransactions(ctx, txns))
	// Upsert is idempotent
	require.NoError(t, store.SaveTransactions(ctx, txns))

	got, err := store.ListTransactions(ctx, "u1", base.AddDate(0, 0, -1), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("12.34")), "amounts are stored as absolute values")
	assert.NotEmpty(t, got[0].Hash)

	got, err = store.ListTransactions(ctx, "", base.AddDate(0, 0, -1), base.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = store.ListTransactions(ctx, "u1", base, base.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	assert.ErrorIs(t, store.SaveTransactions(ctx, []model.Transaction{}), ErrEmptySlice)
}

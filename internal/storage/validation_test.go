package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	assert.NoError(t, validateString("x", "p"))
	assert.ErrorIs(t, validateString("", "p"), ErrEmptyString)
	assert.ErrorIs(t, validateString(" \t", "p"), ErrEmptyString)
}

func TestValidateReceipt(t *testing.T) {
	withTotal := makeReceipt("m", "amazon", "1.00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	badHash := makeReceipt("m", "amazon", "1.00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	badHash.DedupHash = ""

	unparseableWithTotal := &model.ParsedReceipt{
		MessageID:   "m",
		ParseStatus: model.ParseStatusUnparseable,
		ParseError:  "boom",
		Total:       decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}

	tests := []struct {
		receipt *model.ParsedReceipt
		name    string
		wantErr bool
	}{
		{name: "valid", receipt: withTotal},
		{name: "nil", receipt: nil, wantErr: true},
		{name: "missing message id", receipt: &model.ParsedReceipt{ParseStatus: model.ParseStatusParsed}, wantErr: true},
		{name: "hash missing while merchant and total present", receipt: badHash, wantErr: true},
		{name: "unparseable without merchant", receipt: unparseableWithTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateReceipt(tt.receipt)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateJob(t *testing.T) {
	tests := []struct {
		job     *model.SyncJob
		name    string
		wantErr bool
	}{
		{name: "valid", job: &model.SyncJob{ID: "j", AccountID: "a", Mode: model.SyncFull, Status: model.JobPending}},
		{name: "nil", job: nil, wantErr: true},
		{name: "missing account", job: &model.SyncJob{ID: "j", Mode: model.SyncFull, Status: model.JobPending}, wantErr: true},
		{name: "bad mode", job: &model.SyncJob{ID: "j", AccountID: "a", Mode: "partial", Status: model.JobPending}, wantErr: true},
		{name: "bad status", job: &model.SyncJob{ID: "j", AccountID: "a", Mode: model.SyncFull, Status: "stuck"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJob(tt.job)
			assert.Equal(t, tt.wantErr, err != nil, "validateJob() error = %v", err)
		})
	}
}

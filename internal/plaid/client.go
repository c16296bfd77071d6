// Package plaid reads bank transactions from the Plaid API for receipt matching.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

const pageSize = int32(500) // Plaid's max page size

// Config holds Plaid API configuration for one linked item.
type Config struct {
	ClientID    string `mapstructure:"client_id"`
	Secret      string `mapstructure:"secret"`
	Environment string `mapstructure:"environment"` // sandbox or production
	AccessToken string `mapstructure:"access_token"`
	UserID      string `mapstructure:"user_id"` // Owner stamped on every transaction
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	}
	if c.Environment == "" {
		return fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig)
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("%w: invalid Plaid environment: must be sandbox or production", common.ErrInvalidConfig)
	}
	return nil
}

// pageFetcher returns one page of transactions and the total available.
type pageFetcher func(ctx context.Context, from, to time.Time, offset int32) ([]plaid.Transaction, int32, error)

// Client implements service.TransactionSource over the Plaid transactions API.
type Client struct {
	fetch     pageFetcher
	logger    *slog.Logger
	userID    string
	retryOpts service.RetryOptions
}

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}
	api := plaid.NewAPIClient(configuration)

	c := &Client{
		userID: cfg.UserID,
		logger: logger.With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
	c.fetch = func(ctx context.Context, from, to time.Time, offset int32) ([]plaid.Transaction, int32, error) {
		request := plaid.NewTransactionsGetRequest(cfg.AccessToken, from.Format("2006-01-02"), to.Format("2006-01-02"))
		options := plaid.TransactionsGetRequestOptions{
			Count:  plaid.PtrInt32(pageSize),
			Offset: plaid.PtrInt32(offset),
		}
		options.SetIncludeOriginalDescription(true)
		request.SetOptions(options)

		resp, _, err := api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
		if err != nil {
			return nil, 0, mapError(err)
		}
		return resp.GetTransactions(), resp.GetTotalTransactions(), nil
	}
	return c, nil
}

// ListTransactions returns the purchases posted between from and to. Credits and
// refunds are skipped: receipts only ever match money going out. Transactions belong
// to the configured user; any other userID gets nothing.
func (c *Client) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	if from.After(to) {
		return nil, errors.New("start date must be before end date")
	}
	if userID != "" && c.userID != "" && userID != c.userID {
		return nil, nil
	}

	c.logger.Debug("Fetching transactions from Plaid",
		"start_date", from.Format("2006-01-02"),
		"end_date", to.Format("2006-01-02"))

	var all []plaid.Transaction
	offset := int32(0)
	for {
		var (
			page  []plaid.Transaction
			total int32
		)
		err := common.WithRetry(ctx, func() error {
			var fetchErr error
			page, total, fetchErr = c.fetch(ctx, from, to, offset)
			return fetchErr
		}, c.retryOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}

		all = append(all, page...)
		if len(page) == 0 || int32(len(all)) >= total {
			break
		}
		offset += int32(len(page))
	}

	transactions := make([]model.Transaction, 0, len(all))
	for _, pt := range all {
		tx, ok := c.mapPlaidTransaction(pt)
		if !ok {
			continue
		}
		transactions = append(transactions, tx)
	}

	c.logger.Info("Fetched transactions", "fetched", len(all), "purchases", len(transactions))
	return transactions, nil
}

// mapPlaidTransaction converts a Plaid purchase into the internal model. Plaid amounts
// are positive for money out.
func (c *Client) mapPlaidTransaction(pt plaid.Transaction) (model.Transaction, bool) {
	if pt.GetAmount() <= 0 {
		return model.Transaction{}, false
	}

	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		c.logger.Warn("Skipping transaction with unparseable date", "transaction_id", pt.GetTransactionId(), "date", pt.GetDate())
		return model.Transaction{}, false
	}

	merchant := pt.GetMerchantName()
	if merchant == "" {
		merchant = pt.GetName()
	}
	description := pt.GetOriginalDescription()
	if description == "" {
		description = pt.GetName()
	}
	currency := pt.GetIsoCurrencyCode()
	if currency == "" {
		currency = pt.GetUnofficialCurrencyCode()
	}

	tx := model.Transaction{
		ID:           pt.GetTransactionId(),
		AccountID:    pt.GetAccountId(),
		UserID:       c.userID,
		Date:         date,
		Amount:       decimal.NewFromFloat(pt.GetAmount()).Round(2),
		Currency:     strings.ToUpper(currency),
		Description:  description,
		MerchantName: cleanMerchantName(merchant),
	}
	tx.Hash = tx.GenerateHash()
	return tx, true
}

var legalSuffixes = []string{" Llc", " Inc", " Corp", " Corporation", " Company", " Co", " Ltd", " Limited"}

// cleanMerchantName title-cases a name, drops a trailing reference number and strips
// legal-entity suffixes.
func cleanMerchantName(name string) string {
	name = cases.Title(language.English).String(strings.ToLower(name))

	parts := strings.Fields(name)
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if len(last) > 5 && isAllDigits(last) {
			parts = parts[:len(parts)-1]
		}
	}
	name = strings.Join(parts, " ")

	for changed := true; changed; {
		changed = false
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}
	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mapError classifies a Plaid API error for the retry policy.
func mapError(err error) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return err
	}
	apiErr := fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage)
	switch {
	case plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED" || string(plaidErr.ErrorType) == "RATE_LIMIT_EXCEEDED":
		return fmt.Errorf("%w: %w", common.ErrRateLimit, apiErr)
	case plaidErr.ErrorCode == "ITEM_LOGIN_REQUIRED" || plaidErr.ErrorCode == "INVALID_ACCESS_TOKEN":
		return fmt.Errorf("%w: %w", common.ErrAuth, apiErr)
	case string(plaidErr.ErrorType) == "API_ERROR" || string(plaidErr.ErrorType) == "INSTITUTION_ERROR":
		return fmt.Errorf("%w: %w", common.ErrServerError, apiErr)
	default:
		return apiErr
	}
}

var _ service.TransactionSource = (*Client)(nil)

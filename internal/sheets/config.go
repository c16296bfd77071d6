// Package sheets publishes exported receipt data to a Google Sheets spreadsheet.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	ClientID           string               `mapstructure:"client_id"`
	ClientSecret       string               `mapstructure:"client_secret"`
	RefreshToken       string               `mapstructure:"refresh_token"`
	ServiceAccountPath string               `mapstructure:"service_account_path"`
	SpreadsheetID      string               `mapstructure:"spreadsheet_id"`
	SpreadsheetName    string               `mapstructure:"spreadsheet_name"`
	TimeZone           string               `mapstructure:"time_zone"`
	Retry              service.RetryOptions `mapstructure:"retry"`
	BatchSize          int                  `mapstructure:"batch_size"`
	EnableFormatting   bool                 `mapstructure:"enable_formatting"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  "Receipts",
		EnableFormatting: true,
		TimeZone:         "America/New_York",
		BatchSize:        1000,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Configured reports whether any authentication method is set.
func (c *Config) Configured() bool {
	return c.ServiceAccountPath != "" || c.RefreshToken != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no Google Sheets authentication method configured", common.ErrMissingConfig)
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("%w: multiple authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

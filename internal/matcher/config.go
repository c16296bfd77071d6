package matcher

import (
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// Scores is the confidence assigned to each row of the decision table.
type Scores struct {
	ExactSameDayMerchant int `mapstructure:"exact_same_day_merchant"`
	ExactCloseMerchant   int `mapstructure:"exact_close_merchant"`
	ExactWideMerchant    int `mapstructure:"exact_wide_merchant"`
	ExactClose           int `mapstructure:"exact_close"`
	FuzzyWideMerchant    int `mapstructure:"fuzzy_wide_merchant"`
	ExactWide            int `mapstructure:"exact_wide"`
	FuzzyWide            int `mapstructure:"fuzzy_wide"`
	FuzzyMerchant        int `mapstructure:"fuzzy_merchant"`
}

// Config holds every tunable of the matcher.
type Config struct {
	Scores Scores `mapstructure:"scores"`

	// Amounts below SmallAmount compare with SmallAmountTolerance instead of ExactTolerance.
	SmallAmount          float64 `mapstructure:"small_amount"`
	SmallAmountTolerance float64 `mapstructure:"small_amount_tolerance"`
	ExactTolerance       float64 `mapstructure:"exact_tolerance"`
	FuzzyPercent         float64 `mapstructure:"fuzzy_percent"`

	// Day bands are inclusive bounds on |receipt date - transaction date|.
	CloseDays  int `mapstructure:"close_days"`
	WideDays   int `mapstructure:"wide_days"`
	WindowDays int `mapstructure:"window_days"`

	// EarlyReceiptBonus applies when the receipt predates the transaction by 1..EarlyReceiptDays.
	EarlyReceiptDays  int `mapstructure:"early_receipt_days"`
	EarlyReceiptBonus int `mapstructure:"early_receipt_bonus"`

	SuggestThreshold int `mapstructure:"suggest_threshold"`
	ConfirmThreshold int `mapstructure:"confirm_threshold"`

	MerchantSimilarity float64 `mapstructure:"merchant_similarity"`
	MinSimilarityLen   int     `mapstructure:"min_similarity_len"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Scores: Scores{
			ExactSameDayMerchant: 100,
			ExactCloseMerchant:   95,
			ExactWideMerchant:    90,
			ExactClose:           85,
			FuzzyWideMerchant:    80,
			ExactWide:            75,
			FuzzyWide:            70,
			FuzzyMerchant:        65,
		},
		SmallAmount:          5.00,
		SmallAmountTolerance: 0.50,
		ExactTolerance:       0.01,
		FuzzyPercent:         2.0,
		CloseDays:            2,
		WideDays:             4,
		WindowDays:           10,
		EarlyReceiptDays:     4,
		EarlyReceiptBonus:    5,
		SuggestThreshold:     60,
		ConfirmThreshold:     70,
		MerchantSimilarity:   0.85,
		MinSimilarityLen:     5,
	}
}

// Validate checks that bands and thresholds are ordered.
func (c Config) Validate() error {
	switch {
	case c.CloseDays < 0 || c.CloseDays > c.WideDays || c.WideDays > c.WindowDays:
		return fmt.Errorf("%w: day bands must satisfy 0 <= close <= wide <= window", common.ErrInvalidConfig)
	case c.SuggestThreshold < 0 || c.SuggestThreshold > c.ConfirmThreshold || c.ConfirmThreshold > 100:
		return fmt.Errorf("%w: thresholds must satisfy 0 <= suggest <= confirm <= 100", common.ErrInvalidConfig)
	case c.ExactTolerance <= 0 || c.SmallAmountTolerance <= 0 || c.FuzzyPercent < 0:
		return fmt.Errorf("%w: amount tolerances must be positive", common.ErrInvalidConfig)
	case c.MerchantSimilarity <= 0 || c.MerchantSimilarity > 1:
		return fmt.Errorf("%w: merchant similarity must be in (0, 1]", common.ErrInvalidConfig)
	}
	return nil
}

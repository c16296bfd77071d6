package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/llm"
	"github.com/Veraticus/the-receipts-must-flow/internal/matcher"
	"github.com/Veraticus/the-receipts-must-flow/internal/objectstore"
	"github.com/Veraticus/the-receipts-must-flow/internal/orchestrator"
	"github.com/Veraticus/the-receipts-must-flow/internal/plaid"
	"github.com/Veraticus/the-receipts-must-flow/internal/sheets"
)

// EnvPrefix is the prefix for environment overrides, e.g. RECEIPTS_DATABASE_PATH.
const EnvPrefix = "RECEIPTS"

// Config is the complete application configuration.
type Config struct {
	Logging    LoggingConfig       `mapstructure:"logging"`
	Database   DatabaseConfig      `mapstructure:"database"`
	Gmail      GmailConfig         `mapstructure:"gmail"`
	Classifier ClassifierConfig    `mapstructure:"classifier"`
	Parser     ParserConfig        `mapstructure:"parser"`
	Sync       orchestrator.Config `mapstructure:"sync"`
	Matcher    matcher.Config      `mapstructure:"matcher"`
	LLM        llm.Config          `mapstructure:"llm"`
	Objects    objectstore.Config  `mapstructure:"objects"`
	Bank       BankConfig          `mapstructure:"bank"`
	Sheets     sheets.Config       `mapstructure:"sheets"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// GmailConfig holds the OAuth client and the accounts to sync.
type GmailConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenDir     string   `mapstructure:"token_dir"`
	Accounts     []string `mapstructure:"accounts"`
	CallbackPort int      `mapstructure:"callback_port"`
}

// TokenFile is where the OAuth token for account is kept.
func (g GmailConfig) TokenFile(account string) string {
	name := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_").Replace(strings.ToLower(account))
	return filepath.Join(g.TokenDir, name+".json")
}

// ClassifierConfig points at an optional rules file replacing the built-in rules.
type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// ParserConfig tunes the parser pipeline.
type ParserConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
}

// BankConfig selects the transaction source used for matching.
type BankConfig struct {
	Source   string       `mapstructure:"source"` // plaid, ofx or empty for the local database
	UserID   string       `mapstructure:"user_id"`
	OFXPaths []string     `mapstructure:"ofx_paths"`
	Plaid    plaid.Config `mapstructure:"plaid"`
}

// SetDefaults registers every default with v. Keys must be known to viper for
// environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.path", "~/.local/share/receipts/receipts.db")

	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.token_dir", "~/.config/receipts/tokens")
	v.SetDefault("gmail.accounts", []string{})
	v.SetDefault("gmail.callback_port", 8085)

	v.SetDefault("classifier.rules_file", "")

	v.SetDefault("parser.default_currency", "USD")

	v.SetDefault("sync.query", "category:purchases")
	v.SetDefault("sync.window_days", orchestrator.DefaultWindowDays)
	v.SetDefault("sync.max_messages", orchestrator.DefaultMaxMessages)
	v.SetDefault("sync.batch_size", orchestrator.DefaultBatchSize)
	v.SetDefault("sync.max_concurrent_jobs", orchestrator.DefaultMaxConcurrentJobs)
	v.SetDefault("sync.retry.max_attempts", 3)
	v.SetDefault("sync.retry.initial_delay", time.Second)
	v.SetDefault("sync.retry.max_delay", 30*time.Second)
	v.SetDefault("sync.retry.multiplier", 2.0)

	m := matcher.DefaultConfig()
	v.SetDefault("matcher.scores.exact_same_day_merchant", m.Scores.ExactSameDayMerchant)
	v.SetDefault("matcher.scores.exact_close_merchant", m.Scores.ExactCloseMerchant)
	v.SetDefault("matcher.scores.exact_wide_merchant", m.Scores.ExactWideMerchant)
	v.SetDefault("matcher.scores.exact_close", m.Scores.ExactClose)
	v.SetDefault("matcher.scores.fuzzy_wide_merchant", m.Scores.FuzzyWideMerchant)
	v.SetDefault("matcher.scores.exact_wide", m.Scores.ExactWide)
	v.SetDefault("matcher.scores.fuzzy_wide", m.Scores.FuzzyWide)
	v.SetDefault("matcher.scores.fuzzy_merchant", m.Scores.FuzzyMerchant)
	v.SetDefault("matcher.small_amount", m.SmallAmount)
	v.SetDefault("matcher.small_amount_tolerance", m.SmallAmountTolerance)
	v.SetDefault("matcher.exact_tolerance", m.ExactTolerance)
	v.SetDefault("matcher.fuzzy_percent", m.FuzzyPercent)
	v.SetDefault("matcher.close_days", m.CloseDays)
	v.SetDefault("matcher.wide_days", m.WideDays)
	v.SetDefault("matcher.window_days", m.WindowDays)
	v.SetDefault("matcher.early_receipt_days", m.EarlyReceiptDays)
	v.SetDefault("matcher.early_receipt_bonus", m.EarlyReceiptBonus)
	v.SetDefault("matcher.suggest_threshold", m.SuggestThreshold)
	v.SetDefault("matcher.confirm_threshold", m.ConfirmThreshold)
	v.SetDefault("matcher.merchant_similarity", m.MerchantSimilarity)
	v.SetDefault("matcher.min_similarity_len", m.MinSimilarityLen)

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.claude_code_path", "")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.cache_ttl", 24*time.Hour)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.rate_limit", 30)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1024)

	v.SetDefault("objects.backend", "filesystem")
	v.SetDefault("objects.root", "~/.local/share/receipts/attachments")
	v.SetDefault("objects.bucket", "")
	v.SetDefault("objects.prefix", "")
	v.SetDefault("objects.credentials_file", "")

	v.SetDefault("bank.source", "")
	v.SetDefault("bank.user_id", "default")
	v.SetDefault("bank.ofx_paths", []string{})
	v.SetDefault("bank.plaid.client_id", "")
	v.SetDefault("bank.plaid.secret", "")
	v.SetDefault("bank.plaid.environment", "sandbox")
	v.SetDefault("bank.plaid.access_token", "")
	v.SetDefault("bank.plaid.user_id", "")

	sheetDefaults := sheets.DefaultConfig()
	v.SetDefault("sheets.client_id", "")
	v.SetDefault("sheets.client_secret", "")
	v.SetDefault("sheets.refresh_token", "")
	v.SetDefault("sheets.service_account_path", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_name", sheetDefaults.SpreadsheetName)
	v.SetDefault("sheets.time_zone", sheetDefaults.TimeZone)
	v.SetDefault("sheets.batch_size", sheetDefaults.BatchSize)
	v.SetDefault("sheets.enable_formatting", sheetDefaults.EnableFormatting)
	v.SetDefault("sheets.retry.max_attempts", sheetDefaults.Retry.MaxAttempts)
	v.SetDefault("sheets.retry.initial_delay", sheetDefaults.Retry.InitialDelay)
	v.SetDefault("sheets.retry.max_delay", sheetDefaults.Retry.MaxDelay)
	v.SetDefault("sheets.retry.multiplier", sheetDefaults.Retry.Multiplier)
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.expandPaths()
	if cfg.Bank.Plaid.UserID == "" {
		cfg.Bank.Plaid.UserID = cfg.Bank.UserID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Provider credentials are
// checked by the commands that use them.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Bank.Source {
	case "", "plaid", "ofx":
	default:
		return fmt.Errorf("%w: bank.source must be plaid or ofx, got %q", common.ErrInvalidConfig, c.Bank.Source)
	}
	if c.Bank.Source == "ofx" && len(c.Bank.OFXPaths) == 0 {
		return fmt.Errorf("%w: bank.ofx_paths is required for the ofx source", common.ErrMissingConfig)
	}
	if c.Sync.MaxConcurrentJobs < 0 || c.Sync.BatchSize < 0 {
		return fmt.Errorf("%w: sync limits must not be negative", common.ErrInvalidConfig)
	}
	return c.Matcher.Validate()
}

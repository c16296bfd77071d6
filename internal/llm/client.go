package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// Client is a single LLM provider.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type providerFunc func(ctx context.Context, cfg Config) (Client, error)

var providers = map[string]providerFunc{
	"openai":     func(_ context.Context, cfg Config) (Client, error) { return newOpenAIClient(cfg) },
	"anthropic":  func(_ context.Context, cfg Config) (Client, error) { return newAnthropicClient(cfg) },
	"gemini":     newGeminiClient,
	"claudecode": func(_ context.Context, cfg Config) (Client, error) { return newClaudeCodeClient(cfg) },
}

// NewClient creates the raw provider client named by cfg.Provider.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		return nil, fmt.Errorf("%w: llm.provider is not set", common.ErrMissingConfig)
	}
	build, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	return build(ctx, cfg)
}

// Config selects and tunes a provider.
type Config struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"` // Overrides the provider endpoint
	ClaudeCodePath string        `mapstructure:"claude_code_path"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      int           `mapstructure:"rate_limit"` // Requests per minute
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
}

// systemPrompt frames every request; the receipt prompt itself carries the schema.
const systemPrompt = "You extract structured data from purchase receipts. You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return 0.1
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return 1024
	}
	return c.MaxTokens
}

func (c Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

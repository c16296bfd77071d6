package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// Completer wraps a provider Client with caching, rate limiting and retries.
// It implements service.Completer.
type Completer struct {
	client    Client
	cache     *completionCache
	limiter   *rate.Limiter
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewCompleter builds the configured provider and wraps it.
func NewCompleter(ctx context.Context, cfg Config, logger *slog.Logger) (*Completer, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return WrapClient(client, cfg, logger), nil
}

// WrapClient wraps an existing client.
func WrapClient(client Client, cfg Config, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	perMinute := cfg.RateLimit
	if perMinute <= 0 {
		perMinute = 60
	}

	return &Completer{
		client:    client,
		cache:     newCompletionCache(cfg.CacheTTL),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:    logger.With("component", "llm", "provider", cfg.Provider),
		retryOpts: retryOpts,
	}
}

// Complete returns a cached reply when available; otherwise it waits for the rate
// limiter and calls the provider with retries on transient errors.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	key := cacheKey(prompt)
	if reply, ok := c.cache.get(key); ok {
		c.logger.Debug("Completion cache hit")
		return reply, nil
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter canceled: %w", err)
		}
		var callErr error
		reply, callErr = c.client.Complete(ctx, prompt)
		return callErr
	}, c.retryOpts)
	if err != nil {
		return "", err
	}

	c.cache.set(key, reply)
	c.logger.Debug("Completion received", "reply_length", len(reply))
	return reply, nil
}

// Close releases background resources.
func (c *Completer) Close() {
	c.cache.close()
}

var _ service.Completer = (*Completer)(nil)

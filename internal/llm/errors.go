package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty completion")

// statusError maps a non-200 provider response onto the shared sentinels so the
// retry policy can tell transient failures from permanent ones.
func statusError(provider string, status int, body []byte) error {
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, truncate(string(body), 512))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", common.ErrAuth, err)
	case status >= 500:
		return fmt.Errorf("%w: %w", common.ErrServerError, err)
	default:
		return err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

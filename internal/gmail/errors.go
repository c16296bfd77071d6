package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
)

// mapError converts Gmail API failures into the sentinel errors the orchestrator's
// retry policy understands. The original error stays in the chain.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gmail %s: %w", op, err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests || isRateLimitReason(apiErr):
		return fmt.Errorf("gmail %s: %w: %w", op, common.ErrRateLimit, err)
	case apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("gmail %s: %w: %w", op, common.ErrServerError, err)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("gmail %s: %w: %w", op, common.ErrAuth, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("gmail %s: %w: %w", op, common.ErrNotFound, err)
	}
	return fmt.Errorf("gmail %s: %w", op, err)
}

// isRateLimitReason catches quota errors Gmail reports as 403.
func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}

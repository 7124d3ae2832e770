package google

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// IsUnauthorized returns true if the error indicates invalid credentials.
func IsUnauthorized(err error) bool {
	return statusCode(err) == http.StatusUnauthorized
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

// IsRateLimited returns true if the error indicates rate limiting.
// Drive reports per-user limits as 403 with a rate limit reason.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// retryAfter reads the Retry-After seconds of a rate limited response, or 0
// when absent.
func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// WrapError classifies a Google API error into the domain error kinds.
// Rate limited responses also push back the limiter, when one is given.
func WrapError(err error, limiter *RateLimiter) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *domain.Error
	if errors.As(err, &classified) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Transport failures never reached the API.
		return domain.WrapError(domain.KindTransientProvider, err, "google: request failed")
	}

	switch {
	case IsRateLimited(err):
		if limiter != nil {
			limiter.PauseFor(retryAfter(err))
		}
		return domain.WrapError(domain.KindTransientProvider, err, "google: rate limit exceeded")
	case gerr.Code == http.StatusUnauthorized:
		return domain.WrapError(domain.KindAuthentication, err, "google: unauthorised (invalid credentials)")
	case gerr.Code == http.StatusForbidden:
		return domain.WrapError(domain.KindPermanent, err, "google: forbidden (insufficient permissions)")
	case gerr.Code == http.StatusNotFound:
		return domain.WrapError(domain.KindNotFound, err, "google: resource not found")
	case gerr.Code >= http.StatusInternalServerError:
		return domain.WrapError(domain.KindTransientProvider, err, "google: provider unavailable")
	default:
		return domain.WrapError(domain.KindPermanent, err, "")
	}
}

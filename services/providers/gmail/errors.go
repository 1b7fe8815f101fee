package gmail

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"

	mailsync_errors "github.com/customeros/mailsync/errors"
)

// tripsBreaker reports whether a failed call should count against the
// breaker. Client errors say nothing about the health of the API.
func tripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests
	}
	return true
}

func wrapError(err error, withCursor bool, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, wrapped)
	}

	switch apiErr.Code {
	case http.StatusUnauthorized:
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, wrapped)
	case http.StatusForbidden:
		if isRateLimited(apiErr) {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, wrapped)
		}
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, wrapped)
	case http.StatusBadRequest:
		if withCursor {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindInvalidCursor, wrapped)
		}
	case http.StatusNotFound:
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound, wrapped)
	}
	return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, wrapped)
}

// Gmail reports per-user quota exhaustion as 403.
func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}

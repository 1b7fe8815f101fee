package outlook

import (
	"net/http"

	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
)

func tripsBreaker(err error) bool {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		code := odataErr.ResponseStatusCode
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}
	return true
}

func wrapError(err error, withCursor bool, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, msg)

	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, wrapped)
	}

	if main := odataErr.GetErrorEscaped(); main != nil && main.GetMessage() != nil {
		wrapped = errors.Wrap(wrapped, *main.GetMessage())
	}

	switch odataErr.ResponseStatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, wrapped)
	case http.StatusBadRequest, http.StatusGone:
		if withCursor {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindInvalidCursor, wrapped)
		}
	case http.StatusNotFound:
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindNotFound, wrapped)
	}
	return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, wrapped)
}

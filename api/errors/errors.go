package api_errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
)

// MultiErrors collects request validation failures per field.
type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

// HTTPStatus maps service errors onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, mailsync_errors.ErrAccountNotFound),
		errors.Is(err, mailsync_errors.ErrEmailNotFound),
		errors.Is(err, mailsync_errors.ErrAttachmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, mailsync_errors.ErrInvalidSyncMode),
		errors.Is(err, mailsync_errors.ErrInvalidAccount),
		errors.Is(err, mailsync_errors.ErrUnsupportedProvider),
		errors.Is(err, mailsync_errors.ErrMissingAttachmentRef):
		return http.StatusBadRequest
	case errors.Is(err, mailsync_errors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, mailsync_errors.ErrAttachmentUnavailable):
		return http.StatusGone
	case errors.Is(err, mailsync_errors.ErrMissingGrant),
		mailsync_errors.IsAuth(err):
		return http.StatusUnauthorized
	case errors.Is(err, mailsync_errors.ErrAttachmentFetch),
		errors.Is(err, mailsync_errors.ErrStorageUpload),
		errors.Is(err, mailsync_errors.ErrConnectionTimeout):
		return http.StatusBadGateway
	default:
		if _, ok := mailsync_errors.ProviderErrorKindOf(err); ok {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

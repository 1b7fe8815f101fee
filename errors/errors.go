package mailsync_errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUserIDNotSet = errors.New("userId not set on context")

	ErrAccountNotFound     = errors.New("account not found")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrMissingGrant        = errors.New("missing provider credentials")
	ErrInvalidSyncMode     = errors.New("invalid sync mode")
	ErrInvalidAccount      = errors.New("invalid account")

	ErrEmailNotFound         = errors.New("email not found")
	ErrInvalidMessage        = errors.New("invalid provider message")
	ErrInvalidTimestamp      = errors.New("invalid timestamp")
	ErrAttachmentNotFound    = errors.New("attachment not found")
	ErrAttachmentUnavailable = errors.New("attachment content unavailable")
	ErrAttachmentFetch       = errors.New("attachment fetch failed")
	ErrStorageUpload         = errors.New("storage upload failed")
	ErrMissingAttachmentRef  = errors.New("attachment has no provider reference")

	ErrConnectionTimeout = errors.New("connection timeout")
)

type ProviderErrorKind string

const (
	KindAuth          ProviderErrorKind = "auth"
	KindTransport     ProviderErrorKind = "transport"
	KindInvalidCursor ProviderErrorKind = "invalid_cursor"
	KindNotFound      ProviderErrorKind = "not_found"
)

// ProviderError classifies failures coming back from a mail provider.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func ProviderErrorKindOf(err error) (ProviderErrorKind, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return "", false
}

func IsAuth(err error) bool {
	kind, ok := ProviderErrorKindOf(err)
	return ok && kind == KindAuth
}

func IsInvalidCursor(err error) bool {
	kind, ok := ProviderErrorKindOf(err)
	return ok && kind == KindInvalidCursor
}

func IsNotFound(err error) bool {
	kind, ok := ProviderErrorKindOf(err)
	return ok && kind == KindNotFound
}

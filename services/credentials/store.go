package credentials

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// grantStore reads credentials off the account row. OAuth grants are opaque
// bearer tokens; they are never inspected or refreshed here.
type grantStore struct{}

func NewCredentialStore() interfaces.CredentialStore {
	return &grantStore{}
}

func (s *grantStore) GetCredentials(ctx context.Context, account *models.Account) (*dto.Credentials, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CredentialStore.GetCredentials")
	defer span.Finish()

	if account == nil {
		return nil, mailsync_errors.ErrAccountNotFound
	}
	tracing.TagAccount(span, account.ID)

	if account.Provider.IsIMAP() {
		if account.ImapServer == "" || account.ImapUsername == "" || account.ImapPassword == "" {
			err := errors.Wrapf(mailsync_errors.ErrMissingGrant, "account %s has incomplete imap settings", account.ID)
			tracing.TraceErr(span, err)
			return nil, err
		}
		return &dto.Credentials{
			Provider:  account.Provider,
			Username:  account.ImapUsername,
			Password:  account.ImapPassword,
			Server:    account.ImapServer,
			Port:      account.ImapPort,
			UseTLS:    account.ImapTLS,
			UserEmail: account.EmailAddress,
		}, nil
	}

	token := strings.TrimSpace(account.GrantRef)
	if token == "" {
		err := errors.Wrapf(mailsync_errors.ErrMissingGrant, "account %s has no grant", account.ID)
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &dto.Credentials{
		Provider:    account.Provider,
		AccessToken: token,
		UserEmail:   account.EmailAddress,
	}, nil
}

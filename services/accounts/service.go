package accounts

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	mailstackImapServer = "mail.hostedemail.com"
	defaultImapTLSPort  = 993
)

var mailstackFolders = []string{"INBOX", "Sent", "Spam"}

type accountService struct {
	repositories *repository.Repositories
}

func NewAccountService(repos *repository.Repositories) interfaces.AccountService {
	return &accountService{
		repositories: repos,
	}
}

func (s *accountService) Register(ctx context.Context, req dto.RegisterAccountRequest) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.Register")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if req.UserID == "" {
		req.UserID = utils.GetUserIdFromContext(ctx)
	}
	if err := validateRegistration(&req); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	account := &models.Account{
		UserID:       req.UserID,
		Provider:     req.Provider,
		EmailAddress: req.EmailAddress,
		DisplayName:  req.DisplayName,
		GrantRef:     req.GrantRef,
		ImapServer:   req.ImapServer,
		ImapPort:     req.ImapPort,
		ImapUsername: req.ImapUsername,
		ImapPassword: req.ImapPassword,
		ImapTLS:      utils.GetOrDefault(req.ImapTLS, true),
		Folders:      models.StringArray(utils.UniqueStrings(req.Folders)),
		SyncStatus:   enum.SyncStatusIdle,
	}
	if err := s.repositories.AccountRepository.Create(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	tracing.TagAccount(span, account.ID)
	return account, nil
}

func (s *accountService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AccountService.GetByID")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, id)

	account, err := s.repositories.AccountRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, errors.Wrap(mailsync_errors.ErrAccountNotFound, id)
	}
	return account, nil
}

// validateRegistration checks the request and fills provider defaults.
func validateRegistration(req *dto.RegisterAccountRequest) error {
	var validationErrors []string

	if req.UserID == "" {
		validationErrors = append(validationErrors, "userId is required")
	}
	if !req.Provider.IsValid() {
		validationErrors = append(validationErrors, "provider is not supported")
	}

	validation := mailvalidate.ValidateEmailSyntax(req.EmailAddress)
	if !validation.IsValid {
		validationErrors = append(validationErrors, "email address is not valid")
	} else {
		req.EmailAddress = validation.CleanEmail
	}
	if validation.IsSystemGenerated {
		validationErrors = append(validationErrors, "invalid email user")
	}

	switch req.Provider {
	case enum.EmailGoogleWorkspace, enum.EmailOutlook:
		if strings.TrimSpace(req.GrantRef) == "" {
			validationErrors = append(validationErrors, "grantRef is required for oauth providers")
		}
	case enum.EmailMailstack:
		if req.ImapServer == "" {
			req.ImapServer = mailstackImapServer
		}
		if req.ImapPort == 0 {
			req.ImapPort = defaultImapTLSPort
		}
		if req.ImapUsername == "" {
			req.ImapUsername = req.EmailAddress
		}
		if len(req.Folders) == 0 {
			req.Folders = mailstackFolders
		}
		if req.ImapPassword == "" {
			validationErrors = append(validationErrors, "imapPassword is required")
		}
	case enum.EmailGeneric:
		if req.ImapServer == "" {
			validationErrors = append(validationErrors, "imapServer is required for generic provider")
		}
		if req.ImapUsername == "" || req.ImapPassword == "" {
			validationErrors = append(validationErrors, "imap username and password are required for generic provider")
		}
		if len(req.Folders) == 0 {
			validationErrors = append(validationErrors, "folders must be specified for generic provider")
		}
	}

	if len(validationErrors) > 0 {
		return errors.Wrap(mailsync_errors.ErrInvalidAccount, strings.Join(validationErrors, ", "))
	}
	return nil
}

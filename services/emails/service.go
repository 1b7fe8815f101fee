package emails

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type emailService struct {
	repositories *repository.Repositories
}

func NewEmailService(repos *repository.Repositories) interfaces.EmailService {
	return &emailService{
		repositories: repos,
	}
}

// ListByAccount returns a page of the account's emails, newest first, and the
// total count. limit is clamped to (0, MaxPageSize].
func (s *emailService) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Email, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.ListByAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	span.LogKV("limit", limit, "offset", offset)

	account, err := s.repositories.AccountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	if account == nil {
		return nil, 0, errors.Wrap(mailsync_errors.ErrAccountNotFound, accountID)
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	offset = max(offset, 0)

	emails, total, err := s.repositories.EmailRepository.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return emails, total, nil
}

func (s *emailService) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.GetByID")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, id)

	email, err := s.repositories.EmailRepository.GetByID(ctx, id)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if email == nil {
		return nil, errors.Wrap(mailsync_errors.ErrEmailNotFound, id)
	}
	return email, nil
}

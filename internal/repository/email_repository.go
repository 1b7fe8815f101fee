package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// columns refreshed when a message is seen again
var emailUpsertColumns = []string{
	"provider", "message_id", "thread_id", "subject", "snippet",
	"from_addresses", "from_address", "from_name", "to_addresses", "cc_addresses", "bcc_addresses", "reply_to",
	"body_text", "body_html", "received_at", "sent_at",
	"is_read", "is_starred", "is_important", "is_draft", "has_attachments",
	"folder_name", "labels", "label_ids", "raw_headers", "classification", "classification_reason", "updated_at",
}

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Upsert(ctx context.Context, email *models.Email) (*models.Email, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if email == nil || email.AccountID == "" || email.ProviderMessageID == "" {
		return nil, false, ErrInvalidInput
	}
	tracing.TagAccount(span, email.AccountID)
	span.LogKV("providerMessageId", email.ProviderMessageID)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "provider_message_id"}},
			DoUpdates: clause.AssignmentColumns(emailUpsertColumns),
		}).
		Create(email).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	// on conflict the generated id is not the stored one
	stored, err := r.GetByProviderMessageID(ctx, email.AccountID, email.ProviderMessageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	if stored == nil {
		err = errors.New("email missing after upsert")
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	// BeforeCreate assigned a fresh id, so a matching id means the row was inserted
	return stored, stored.ID == email.ID, nil
}

func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByProviderMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var email models.Email
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND provider_message_id = ?", accountID, providerMessageID).
		First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Email, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var emails []*models.Email
	var total int64

	err := r.db.WithContext(ctx).Model(&models.Email{}).Where("account_id = ?", accountID).Count(&total).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	err = r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return emails, total, nil
}

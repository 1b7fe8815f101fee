package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type emailAttachmentRepository struct {
	db *gorm.DB
}

func NewEmailAttachmentRepository(db *gorm.DB) interfaces.EmailAttachmentRepository {
	return &emailAttachmentRepository{db: db}
}

// Upsert keys on (email_id, original_filename). Metadata and provider refs
// are always refreshed. Storage state is only written when the stored row is
// not completed and the incoming row carries a terminal status.
func (r *emailAttachmentRepository) Upsert(ctx context.Context, attachment *models.EmailAttachment) (*models.EmailAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if attachment == nil || attachment.EmailID == "" || attachment.OriginalFilename == "" {
		return nil, ErrInvalidInput
	}
	span.LogKV("emailId", attachment.EmailID, "originalFilename", attachment.OriginalFilename)

	existing, err := r.GetByEmailAndFilename(ctx, attachment.EmailID, attachment.OriginalFilename)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if existing == nil {
		err = r.db.WithContext(ctx).Create(attachment).Error
		if err == nil {
			return attachment, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			tracing.TraceErr(span, err)
			return nil, err
		}
		// lost an insert race, update the winner instead
		existing, err = r.GetByEmailAndFilename(ctx, attachment.EmailID, attachment.OriginalFilename)
		if err != nil || existing == nil {
			if err == nil {
				err = errors.New("attachment missing after duplicate insert")
			}
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	updates := map[string]interface{}{
		"filename":                attachment.Filename,
		"content_type":            attachment.ContentType,
		"size":                    attachment.Size,
		"provider":                attachment.Provider,
		"provider_message_ref":    attachment.ProviderMessageRef,
		"provider_attachment_ref": attachment.ProviderAttachmentRef,
		"safety_flags":            attachment.SafetyFlags,
		"email_subject":           attachment.EmailSubject,
		"email_from":              attachment.EmailFrom,
		"email_received_at":       attachment.EmailReceivedAt,
	}
	if existing.DownloadStatus != enum.DownloadStatusCompleted {
		switch attachment.DownloadStatus {
		case enum.DownloadStatusCompleted:
			updates["download_status"] = enum.DownloadStatusCompleted
			updates["storage_url"] = attachment.StorageURL
			updates["storage_key"] = attachment.StorageKey
			updates["content_hash"] = attachment.ContentHash
			updates["download_error"] = nil
		case enum.DownloadStatusFailed:
			updates["download_status"] = enum.DownloadStatusFailed
			updates["storage_url"] = nil
			updates["storage_key"] = nil
			updates["download_error"] = attachment.DownloadError
		}
	}

	err = r.db.WithContext(ctx).
		Model(&models.EmailAttachment{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return r.GetByID(ctx, existing.ID)
}

func (r *emailAttachmentRepository) GetByID(ctx context.Context, id string) (*models.EmailAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var attachment models.EmailAttachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &attachment, nil
}

func (r *emailAttachmentRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.ListByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachments []*models.EmailAttachment
	err := r.db.WithContext(ctx).
		Where("email_id = ?", emailID).
		Order("created_at ASC").
		Find(&attachments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return attachments, nil
}

func (r *emailAttachmentRepository) MarkDownloading(ctx context.Context, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.MarkDownloading")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAttachment{}).
		Where("id = ? AND download_status <> ?", id, enum.DownloadStatusCompleted).
		Updates(map[string]interface{}{
			"download_status": enum.DownloadStatusDownloading,
			"storage_url":     nil,
			"storage_key":     nil,
			"download_error":  nil,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *emailAttachmentRepository) MarkCompleted(ctx context.Context, id, url, key string, size int64, contentHash string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.MarkCompleted")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	if url == "" || key == "" {
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).
		Model(&models.EmailAttachment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"download_status": enum.DownloadStatusCompleted,
			"storage_url":     url,
			"storage_key":     key,
			"size":            size,
			"content_hash":    contentHash,
			"download_error":  nil,
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// MarkFailed never regresses a row another download already completed.
func (r *emailAttachmentRepository) MarkFailed(ctx context.Context, id, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.MarkFailed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.EmailAttachment{}).
		Where("id = ? AND download_status <> ?", id, enum.DownloadStatusCompleted).
		Updates(map[string]interface{}{
			"download_status": enum.DownloadStatusFailed,
			"storage_url":     nil,
			"storage_key":     nil,
			"download_error":  reason,
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailAttachmentRepository) GetByEmailAndFilename(ctx context.Context, emailID, originalFilename string) (*models.EmailAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAttachmentRepository.GetByEmailAndFilename")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var attachment models.EmailAttachment
	err := r.db.WithContext(ctx).
		Where("email_id = ? AND original_filename = ?", emailID, originalFilename).
		First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &attachment, nil
}

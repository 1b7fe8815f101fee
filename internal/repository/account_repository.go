package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const staleSyncError = "sync interrupted"

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) interfaces.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if account == nil {
		return ErrInvalidInput
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListSyncable(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListSyncable")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("sync_status <> ?", enum.SyncStatusSyncing).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

// TryStartSync is a compare-and-set on sync_status. The stale cutoff is
// computed here so the statement stays dialect neutral.
func (r *accountRepository) TryStartSync(ctx context.Context, id string, staleAfter time.Duration) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.TryStartSync")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	now := utils.Now()
	cutoff := now.Add(-staleAfter)

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND (sync_status <> ? OR sync_started_at IS NULL OR sync_started_at < ?)", id, enum.SyncStatusSyncing, cutoff).
		Updates(map[string]interface{}{
			"sync_status":     enum.SyncStatusSyncing,
			"sync_progress":   0,
			"sync_total":      0,
			"sync_started_at": now,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	span.LogKV("acquired", result.RowsAffected > 0)
	return result.RowsAffected > 0, nil
}

func (r *accountRepository) SaveProgress(ctx context.Context, id string, processed int, cursor *string, total int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SaveProgress")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)
	span.LogKV("processed", processed, "total", total)

	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_progress": gorm.Expr("sync_progress + ?", processed),
			"sync_cursor":   cursor,
			"sync_total":    gorm.Expr("CASE WHEN sync_total > ? THEN sync_total ELSE ? END", total, total),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) ClearCursor(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ClearCursor")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("sync_cursor", nil).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) MarkSyncSucceeded(ctx context.Context, id string, cursor *string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.MarkSyncSucceeded")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	now := utils.Now()
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":             enum.SyncStatusSuccess,
			"sync_cursor":             cursor,
			"last_sync_at":            now,
			"last_successful_sync_at": now,
			"error_count":             0,
			"consecutive_errors":      0,
			"last_sync_error":         nil,
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// MarkSyncFailed leaves sync_cursor untouched so the next run resumes from
// the last committed page.
func (r *accountRepository) MarkSyncFailed(ctx context.Context, id string, syncErr string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.MarkSyncFailed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":        enum.SyncStatusError,
			"last_sync_at":       utils.Now(),
			"last_sync_error":    syncErr,
			"error_count":        gorm.Expr("error_count + 1"),
			"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) ReleaseStaleSyncs(ctx context.Context, staleAfter time.Duration) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ReleaseStaleSyncs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	now := utils.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("sync_status = ? AND sync_started_at < ?", enum.SyncStatusSyncing, now.Add(-staleAfter)).
		Updates(map[string]interface{}{
			"sync_status":        enum.SyncStatusError,
			"last_sync_at":       now,
			"last_sync_error":    staleSyncError,
			"error_count":        gorm.Expr("error_count + 1"),
			"consecutive_errors": gorm.Expr("consecutive_errors + 1"),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	span.LogKV("released", result.RowsAffected)
	return result.RowsAffected, nil
}

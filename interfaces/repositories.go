package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	ListSyncable(ctx context.Context) ([]*models.Account, error)
	// TryStartSync moves the account to syncing unless a non-stale sync holds it.
	TryStartSync(ctx context.Context, id string, staleAfter time.Duration) (bool, error)
	SaveProgress(ctx context.Context, id string, processed int, cursor *string, total int) error
	ClearCursor(ctx context.Context, id string) error
	MarkSyncSucceeded(ctx context.Context, id string, cursor *string) error
	MarkSyncFailed(ctx context.Context, id string, syncErr string) error
	ReleaseStaleSyncs(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type EmailRepository interface {
	// Upsert inserts or updates by (account, provider message id) and returns
	// the stored row and whether it was inserted.
	Upsert(ctx context.Context, email *models.Email) (*models.Email, bool, error)
	GetByID(ctx context.Context, id string) (*models.Email, error)
	GetByProviderMessageID(ctx context.Context, accountID, providerMessageID string) (*models.Email, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Email, int64, error)
}

type EmailAttachmentRepository interface {
	// Upsert inserts or updates by (email, original filename). A completed row keeps its storage state.
	Upsert(ctx context.Context, attachment *models.EmailAttachment) (*models.EmailAttachment, error)
	GetByID(ctx context.Context, id string) (*models.EmailAttachment, error)
	GetByEmailAndFilename(ctx context.Context, emailID, originalFilename string) (*models.EmailAttachment, error)
	ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error)
	// MarkDownloading reports false when the row is already completed.
	MarkDownloading(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id, url, key string, size int64, contentHash string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

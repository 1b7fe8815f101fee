package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

type SyncService interface {
	SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error)
	GetSyncProgress(ctx context.Context, accountID string) (*dto.SyncProgress, error)
}

type AttachmentService interface {
	ProcessMessageAttachments(ctx context.Context, account *models.Account, email *models.Email, raw *dto.RawMessage, mode enum.AttachmentMode) (int, error)
	DownloadAttachment(ctx context.Context, req dto.DownloadAttachmentRequest) (*dto.DownloadAttachmentResult, error)
	ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error)
}

type EmailService interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Email, int64, error)
	GetByID(ctx context.Context, id string) (*models.Email, error)
}

type AccountService interface {
	Register(ctx context.Context, req dto.RegisterAccountRequest) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
)

type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (*dto.UploadResult, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

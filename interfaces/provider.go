package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

// ProviderAdapter hides the paging and payload differences of one mail provider.
type ProviderAdapter interface {
	Provider() enum.EmailProvider
	AttachmentMode() enum.AttachmentMode
	ListMessages(ctx context.Context, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error)
	FetchAttachmentBytes(ctx context.Context, creds *dto.Credentials, messageRef, attachmentRef string) ([]byte, error)
}

type ProviderRegistry interface {
	Adapter(provider enum.EmailProvider) (ProviderAdapter, error)
}

type CredentialStore interface {
	GetCredentials(ctx context.Context, account *models.Account) (*dto.Credentials, error)
}

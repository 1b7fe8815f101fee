package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

// EmailFilterService sets the classification of a mapped email.
type EmailFilterService interface {
	ScanEmail(ctx context.Context, email *models.Email) error
}

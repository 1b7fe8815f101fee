package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
)

type Repositories struct {
	AccountRepository         interfaces.AccountRepository
	EmailRepository           interfaces.EmailRepository
	EmailAttachmentRepository interfaces.EmailAttachmentRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:         NewAccountRepository(db),
		EmailRepository:           NewEmailRepository(db),
		EmailAttachmentRepository: NewEmailAttachmentRepository(db),
	}
}

func MigrateMailsyncDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Email{},
		&models.EmailAttachment{},
	)
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// Account is a connected mailbox together with its sync status record.
type Account struct {
	ID           string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID       string             `gorm:"column:user_id;type:varchar(255);index;not null" json:"userId"`
	Provider     enum.EmailProvider `gorm:"column:provider;type:varchar(50);index;not null" json:"provider"`
	EmailAddress string             `gorm:"column:email_address;type:varchar(255);index" json:"emailAddress"`
	DisplayName  string             `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	// Opaque reference to the OAuth grant, resolved by the credential store
	GrantRef string `gorm:"column:grant_ref;type:text" json:"-"`

	// IMAP Configuration
	ImapServer   string `gorm:"column:imap_server;type:varchar(255)" json:"imapServer,omitempty"`
	ImapPort     int    `gorm:"column:imap_port" json:"imapPort,omitempty"`
	ImapUsername string `gorm:"column:imap_username;type:varchar(255)" json:"imapUsername,omitempty"`
	ImapPassword string `gorm:"column:imap_password;type:varchar(255)" json:"-"`
	ImapTLS      bool   `gorm:"column:imap_tls;not null" json:"imapTls"`

	Folders StringArray `gorm:"column:folders" json:"folders"`

	// Sync status
	SyncStatus           enum.SyncStatus `gorm:"column:sync_status;type:varchar(20);index;not null;default:idle" json:"syncStatus"`
	SyncCursor           *string         `gorm:"column:sync_cursor;type:text" json:"syncCursor"`
	SyncStartedAt        *time.Time      `gorm:"column:sync_started_at;type:timestamp" json:"syncStartedAt"`
	LastSyncAt           *time.Time      `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	LastSuccessfulSyncAt *time.Time      `gorm:"column:last_successful_sync_at;type:timestamp" json:"lastSuccessfulSyncAt"`
	SyncProgress         int             `gorm:"column:sync_progress;not null;default:0" json:"syncProgress"`
	SyncTotal            int             `gorm:"column:sync_total;not null;default:0" json:"syncTotal"`
	ErrorCount           int             `gorm:"column:error_count;not null;default:0" json:"errorCount"`
	ConsecutiveErrors    int             `gorm:"column:consecutive_errors;not null;default:0" json:"consecutiveErrors"`
	LastSyncError        *string         `gorm:"column:last_sync_error;type:text" json:"lastSyncError"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	if a.SyncStatus == "" {
		a.SyncStatus = enum.SyncStatusIdle
	}
	a.CreatedAt = utils.Now()
	return nil
}

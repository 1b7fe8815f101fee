package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// EmailAttachment holds attachment metadata and the state of its stored copy.
// StorageURL is set if and only if DownloadStatus is completed.
type EmailAttachment struct {
	ID        string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailID   string             `gorm:"column:email_id;type:varchar(50);not null;uniqueIndex:uq_attachments_email_filename,priority:1" json:"emailId"`
	AccountID string             `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	UserID    string             `gorm:"column:user_id;type:varchar(255);index" json:"userId"`
	Provider  enum.EmailProvider `gorm:"column:provider;type:varchar(50)" json:"provider"`

	Filename         string `gorm:"column:filename;type:varchar(500)" json:"filename"`
	OriginalFilename string `gorm:"column:original_filename;type:varchar(1000);not null;uniqueIndex:uq_attachments_email_filename,priority:2" json:"originalFilename"`
	ContentType      string `gorm:"column:content_type;type:varchar(255)" json:"contentType"`
	Size             int64  `gorm:"column:size;default:0" json:"size"`
	ContentID        string `gorm:"column:content_id;type:varchar(255)" json:"contentId,omitempty"`

	ProviderMessageRef    string `gorm:"column:provider_message_ref;type:varchar(500)" json:"-"`
	ProviderAttachmentRef string `gorm:"column:provider_attachment_ref;type:text" json:"-"`

	DownloadStatus enum.DownloadStatus `gorm:"column:download_status;type:varchar(20);index;not null;default:pending" json:"downloadStatus"`
	DownloadError  *string             `gorm:"column:download_error;type:text" json:"downloadError,omitempty"`
	StorageURL     *string             `gorm:"column:storage_url;type:text" json:"storageUrl"`
	StorageKey     *string             `gorm:"column:storage_key;type:varchar(1000)" json:"storageKey,omitempty"`
	ContentHash    string              `gorm:"column:content_hash;type:varchar(64);index" json:"contentHash,omitempty"`
	SafetyFlags    StringArray         `gorm:"column:safety_flags" json:"safetyFlags"`

	EmailSubject    string     `gorm:"column:email_subject;type:varchar(1000)" json:"emailSubject"`
	EmailFrom       string     `gorm:"column:email_from;type:varchar(255)" json:"emailFrom"`
	EmailReceivedAt *time.Time `gorm:"column:email_received_at;type:timestamp" json:"emailReceivedAt"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (EmailAttachment) TableName() string {
	return "email_attachments"
}

func (e *EmailAttachment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("file", 16)
	}
	if e.DownloadStatus == "" {
		e.DownloadStatus = enum.DownloadStatusPending
	}
	e.CreatedAt = utils.Now()
	return nil
}

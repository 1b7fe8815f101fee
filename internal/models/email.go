package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// Email is the canonical, provider-independent message record
type Email struct {
	ID                string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID         string             `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:uq_emails_account_provider_msg,priority:1" json:"accountId"`
	Provider          enum.EmailProvider `gorm:"column:provider;type:varchar(50);index" json:"provider"`
	ProviderMessageID string             `gorm:"column:provider_message_id;type:varchar(255);not null;uniqueIndex:uq_emails_account_provider_msg,priority:2" json:"providerMessageId"`
	MessageID         string             `gorm:"column:message_id;type:varchar(255);index" json:"messageId"`
	ThreadID          string             `gorm:"column:thread_id;type:varchar(255);index" json:"threadId"`

	Subject string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Snippet string `gorm:"column:snippet;type:text" json:"snippet"`

	From        EmailAddresses `gorm:"column:from_addresses;type:jsonb;not null" json:"from"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	FromName    string         `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	To          EmailAddresses `gorm:"column:to_addresses;type:jsonb;not null" json:"to"`
	Cc          EmailAddresses `gorm:"column:cc_addresses;type:jsonb" json:"cc"`
	Bcc         EmailAddresses `gorm:"column:bcc_addresses;type:jsonb" json:"bcc"`
	ReplyTo     EmailAddresses `gorm:"column:reply_to;type:jsonb" json:"replyTo"`

	BodyText string `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML string `gorm:"column:body_html;type:text" json:"bodyHtml"`

	ReceivedAt *time.Time `gorm:"column:received_at;type:timestamp;index" json:"receivedAt"`
	SentAt     *time.Time `gorm:"column:sent_at;type:timestamp" json:"sentAt"`

	IsRead         bool `gorm:"column:is_read;default:false" json:"isRead"`
	IsStarred      bool `gorm:"column:is_starred;default:false" json:"isStarred"`
	IsImportant    bool `gorm:"column:is_important;default:false" json:"isImportant"`
	IsDraft        bool `gorm:"column:is_draft;default:false" json:"isDraft"`
	HasAttachments bool `gorm:"column:has_attachments;default:false" json:"hasAttachments"`

	FolderName string      `gorm:"column:folder_name;type:varchar(255);index" json:"folderName"`
	Labels     StringArray `gorm:"column:labels" json:"labels"`
	LabelIDs   StringArray `gorm:"column:label_ids" json:"labelIds"`

	RawHeaders JSONMap `gorm:"column:raw_headers;type:jsonb" json:"-"`

	// Classification
	Classification       enum.EmailClassification `gorm:"column:classification;type:varchar(50);index" json:"classification"`
	ClassificationReason string                   `gorm:"column:classification_reason;type:text" json:"classificationReason,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}

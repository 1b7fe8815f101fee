package dto

import "github.com/customeros/mailsync/internal/enum"

type RegisterAccountRequest struct {
	UserID       string             `json:"userId"`
	Provider     enum.EmailProvider `json:"provider"`
	EmailAddress string             `json:"emailAddress"`
	DisplayName  string             `json:"displayName"`
	GrantRef     string             `json:"grantRef"`
	Folders      []string           `json:"folders"`

	ImapServer   string `json:"imapServer"`
	ImapPort     int    `json:"imapPort"`
	ImapUsername string `json:"imapUsername"`
	ImapPassword string `json:"imapPassword"`
	ImapTLS      *bool  `json:"imapTls"`
}

type SyncRequestedEvent struct {
	AccountID string      `json:"accountId"`
	Options   SyncOptions `json:"options"`
}

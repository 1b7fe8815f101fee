package dto

import "github.com/customeros/mailsync/internal/enum"

// Credentials are resolved per call and never persisted by the sync core.
type Credentials struct {
	Provider    enum.EmailProvider
	AccessToken string

	// IMAP
	Username  string
	Password  string
	Server    string
	Port      int
	UseTLS    bool
	UserEmail string
}

package enum

type EmailProvider string

const (
	EmailGoogleWorkspace EmailProvider = "google_workspace"
	EmailOutlook         EmailProvider = "outlook"
	EmailMailstack       EmailProvider = "mailstack"
	EmailGeneric         EmailProvider = "generic"
)

func (t EmailProvider) String() string {
	return string(t)
}

func (t EmailProvider) IsValid() bool {
	switch t {
	case EmailGoogleWorkspace, EmailOutlook, EmailMailstack, EmailGeneric:
		return true
	}
	return false
}

// IsIMAP reports whether the provider is reached over an IMAP session
// rather than an OAuth-scoped HTTP API.
func (t EmailProvider) IsIMAP() bool {
	return t == EmailMailstack || t == EmailGeneric
}

type EmailClassification string

const (
	EmailAutoResponder      EmailClassification = "auto_responder"
	EmailBounceNotification EmailClassification = "bounce_notification"
	EmailBulk               EmailClassification = "bulk_email"
	EmailInternal           EmailClassification = "internal"
	EmailOK                 EmailClassification = "ok"
)

func (t EmailClassification) String() string {
	return string(t)
}

type AttachmentMode string

const (
	AttachmentModeEager AttachmentMode = "eager"
	AttachmentModeLazy  AttachmentMode = "lazy"
)

func (t AttachmentMode) String() string {
	return string(t)
}

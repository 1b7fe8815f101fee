package dto

import "time"

// RawMessage is the provider-shaped message handed to the mapper.
// Nil address slices mean the provider did not report the field.
type RawMessage struct {
	Provider          string
	ProviderMessageID string
	MessageID         string
	ThreadID          string
	Subject           *string
	Snippet           string

	From    []RawAddress
	To      []RawAddress
	Cc      []RawAddress
	Bcc     []RawAddress
	ReplyTo []RawAddress

	BodyText string
	BodyHTML string

	ReceivedAt RawTimestamp
	SentAt     RawTimestamp

	Folders  []string
	Labels   []string
	LabelIDs []string

	IsRead      bool
	IsStarred   bool
	IsImportant bool
	IsDraft     bool

	Attachments []RawAttachment
	Headers     map[string]string
}

type RawAddress struct {
	Email string
	Name  *string
}

// RawTimestamp carries whichever representation the provider returned.
// The first non-empty of Time, Unix, UnixMilli, ISO wins.
type RawTimestamp struct {
	Time      *time.Time
	Unix      *int64
	UnixMilli *int64
	ISO       string
}

func (t RawTimestamp) IsZero() bool {
	return t.Time == nil && t.Unix == nil && t.UnixMilli == nil && t.ISO == ""
}

type RawAttachment struct {
	Filename      string
	ContentType   string
	Size          int64
	ContentID     string
	Disposition   string
	AttachmentRef string
	// MessageRef overrides the owning message's provider id when fetching bytes.
	MessageRef string
	// Content is set by providers that deliver bytes with the message.
	Content []byte
}

type ListMessagesRequest struct {
	Cursor   string
	Since    *time.Time
	PageSize int
	Folders  []string
}

type MessagePage struct {
	Messages   []*RawMessage
	NextCursor string
	// Listed counts the entries the provider returned for the page, including
	// messages that vanished before they could be fetched.
	Listed        int
	TotalEstimate int
}

package email_mapper

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

func gmailFixture() *dto.RawMessage {
	millis := int64(1700000000123)
	return &dto.RawMessage{
		Provider:          enum.EmailGoogleWorkspace.String(),
		ProviderMessageID: "18b2f3",
		MessageID:         "<abc@mail.example.com>",
		ThreadID:          "thread-1",
		Subject:           utils.StringPtr("Quarterly report"),
		From:              []dto.RawAddress{{Email: " Jane.Doe@Example.com ", Name: utils.StringPtr("Jane Doe")}},
		To:                []dto.RawAddress{{Email: "bob@example.com"}},
		BodyText:          "Hi Bob,\n\n   see attached.",
		ReceivedAt:        dto.RawTimestamp{UnixMilli: &millis},
		Labels:            []string{"INBOX", "IMPORTANT"},
		LabelIDs:          []string{"INBOX", "IMPORTANT", "UNREAD"},
		IsImportant:       true,
		Attachments: []dto.RawAttachment{
			{Filename: "report.pdf", ContentType: "application/pdf", AttachmentRef: "att-1"},
			{Filename: "logo.png", ContentType: "image/png", ContentID: "<logo>"},
		},
	}
}

func TestMapEmail_GmailFixture(t *testing.T) {
	email, err := MapEmail(gmailFixture(), "acct_1")
	require.NoError(t, err)

	assert.Equal(t, "acct_1", email.AccountID)
	assert.Equal(t, "18b2f3", email.ProviderMessageID)
	assert.Equal(t, "abc@mail.example.com", email.MessageID)
	assert.Equal(t, "Quarterly report", email.Subject)
	require.Len(t, email.From, 1)
	assert.Equal(t, "jane.doe@example.com", email.From[0].Email)
	assert.Equal(t, "Jane Doe", email.From[0].Name)
	assert.Equal(t, "jane.doe@example.com", email.FromAddress)
	require.Len(t, email.To, 1)
	assert.Equal(t, "", email.To[0].Name)
	assert.Nil(t, email.Cc)
	assert.Nil(t, email.Bcc)
	assert.Nil(t, email.ReplyTo)
	assert.Equal(t, "INBOX", email.FolderName)
	assert.True(t, email.HasAttachments, "inline parts still count")
	assert.True(t, email.IsImportant)
	require.NotNil(t, email.ReceivedAt)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), *email.ReceivedAt)
	assert.Equal(t, time.UTC, email.ReceivedAt.Location())
	assert.Equal(t, "Hi Bob, see attached.", email.Snippet)
}

func TestMapEmail_Defaults(t *testing.T) {
	email, err := MapEmail(&dto.RawMessage{ProviderMessageID: "1"}, "acct_1")
	require.NoError(t, err)

	assert.Equal(t, DefaultSubject, email.Subject)
	assert.Equal(t, DefaultFolderName, email.FolderName)
	assert.NotNil(t, email.To)
	assert.Empty(t, email.To)
	assert.NotNil(t, email.From)
	assert.Empty(t, email.From)
	assert.Nil(t, email.Cc)
	assert.False(t, email.HasAttachments)
	assert.Nil(t, email.ReceivedAt)
	assert.Equal(t, "", email.Snippet)
}

func TestMapEmail_BlankSubjectUsesPlaceholder(t *testing.T) {
	email, err := MapEmail(&dto.RawMessage{ProviderMessageID: "1", Subject: utils.StringPtr("   ")}, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, email.Subject)
}

func TestMapEmail_MissingProviderMessageID(t *testing.T) {
	_, err := MapEmail(&dto.RawMessage{Subject: utils.StringPtr("x")}, "acct_1")
	assert.ErrorIs(t, err, mailsync_errors.ErrInvalidMessage)
}

func TestMapEmail_ClampsOversizedHeaders(t *testing.T) {
	long := strings.Repeat("é", 3000)
	raw := &dto.RawMessage{
		ProviderMessageID: "1",
		MessageID:         "<" + strings.Repeat("a", 400) + "@example.com>",
		ThreadID:          strings.Repeat("t", 300),
		Subject:           &long,
		From:              []dto.RawAddress{{Email: strings.Repeat("x", 300) + "@example.com", Name: &long}},
		Folders:           []string{strings.Repeat("f", 300)},
	}

	email, err := MapEmail(raw, "acct_1")
	require.NoError(t, err)
	assert.Equal(t, MaxSubjectLength, utf8.RuneCountInString(email.Subject))
	assert.LessOrEqual(t, utf8.RuneCountInString(email.MessageID), MaxHeaderLength)
	assert.Equal(t, MaxHeaderLength, utf8.RuneCountInString(email.ThreadID))
	assert.LessOrEqual(t, utf8.RuneCountInString(email.FromAddress), MaxHeaderLength)
	assert.LessOrEqual(t, utf8.RuneCountInString(email.FromName), MaxHeaderLength)
	assert.LessOrEqual(t, utf8.RuneCountInString(email.FolderName), MaxHeaderLength)
}

func TestMapEmail_OversizedProviderMessageIDIsInvalid(t *testing.T) {
	_, err := MapEmail(&dto.RawMessage{ProviderMessageID: strings.Repeat("9", MaxHeaderLength+1)}, "acct_1")
	assert.ErrorIs(t, err, mailsync_errors.ErrInvalidMessage)
}

func TestMapEmail_BadISOTimestamp(t *testing.T) {
	_, err := MapEmail(&dto.RawMessage{ProviderMessageID: "1", ReceivedAt: dto.RawTimestamp{ISO: "yesterday"}}, "acct_1")
	assert.ErrorIs(t, err, mailsync_errors.ErrInvalidTimestamp)
}

func TestMapEmail_IsDeterministic(t *testing.T) {
	a, err := MapEmail(gmailFixture(), "acct_1")
	require.NoError(t, err)
	b, err := MapEmail(gmailFixture(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMapEmail_OutlookFixture(t *testing.T) {
	raw := &dto.RawMessage{
		Provider:          enum.EmailOutlook.String(),
		ProviderMessageID: "AAMkAD",
		Subject:           utils.StringPtr("Lunch"),
		From:              []dto.RawAddress{{Email: "amy@contoso.com", Name: utils.StringPtr("Amy")}},
		Cc:                []dto.RawAddress{{Email: ""}, {Email: "carl@contoso.com"}},
		BodyHTML:          "<html><head><style>p{}</style></head><body><p>Noon   at the <b>usual</b> place</p></body></html>",
		ReceivedAt:        dto.RawTimestamp{ISO: "2024-03-01T12:30:00Z"},
		SentAt:            dto.RawTimestamp{ISO: "2024-03-01T12:29:58Z"},
		Folders:           []string{"inbox"},
		IsRead:            true,
	}

	email, err := MapEmail(raw, "acct_2")
	require.NoError(t, err)

	require.Len(t, email.Cc, 1, "entries without an address are dropped")
	assert.Equal(t, "carl@contoso.com", email.Cc[0].Email)
	assert.Equal(t, "inbox", email.FolderName)
	assert.Equal(t, "Noon at the usual place", email.Snippet)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), *email.ReceivedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 29, 58, 0, time.UTC), *email.SentAt)
	assert.True(t, email.IsRead)
}

func TestPrimaryFolder(t *testing.T) {
	assert.Equal(t, "Archive", PrimaryFolder([]string{"", "Archive"}, []string{"INBOX"}))
	assert.Equal(t, "INBOX", PrimaryFolder(nil, []string{"INBOX"}))
	assert.Equal(t, "inbox", PrimaryFolder(nil, nil))
}

func TestNormalizeTimestamp(t *testing.T) {
	unix := int64(1700000000)
	local := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	got, err := NormalizeTimestamp(dto.RawTimestamp{Unix: &unix, ISO: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(unix, 0).UTC(), *got)

	got, err = NormalizeTimestamp(dto.RawTimestamp{Time: &local})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Hour())

	got, err = NormalizeTimestamp(dto.RawTimestamp{ISO: "Mon, 02 Jan 2006 15:04:05 -0700"})
	require.NoError(t, err)
	assert.Equal(t, 22, got.Hour())

	got, err = NormalizeTimestamp(dto.RawTimestamp{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBuildSnippet_Truncates(t *testing.T) {
	snippet := BuildSnippet(strings.Repeat("é ", 300), "")
	assert.Equal(t, MaxSnippetLength, utf8.RuneCountInString(snippet))
}

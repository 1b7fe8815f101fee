// Package email_mapper turns provider-shaped messages into canonical email
// records. Everything here is pure: no I/O, no clocks, no randomness.
package email_mapper

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	DefaultSubject    = "(no subject)"
	DefaultFolderName = "inbox"
	MaxSnippetLength  = 200

	// column widths of the emails table
	MaxSubjectLength = 1000
	MaxHeaderLength  = 255
)

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func MapEmail(raw *dto.RawMessage, accountID string) (*models.Email, error) {
	if raw == nil {
		return nil, errors.Wrap(mailsync_errors.ErrInvalidMessage, "nil message")
	}
	if strings.TrimSpace(raw.ProviderMessageID) == "" {
		return nil, errors.Wrap(mailsync_errors.ErrInvalidMessage, "missing provider message id")
	}
	// the provider id is the dedup key and the fetch reference, it cannot be cut
	if utf8.RuneCountInString(strings.TrimSpace(raw.ProviderMessageID)) > MaxHeaderLength {
		return nil, errors.Wrapf(mailsync_errors.ErrInvalidMessage, "provider message id longer than %d", MaxHeaderLength)
	}

	receivedAt, err := NormalizeTimestamp(raw.ReceivedAt)
	if err != nil {
		return nil, errors.Wrap(err, "receivedAt")
	}
	sentAt, err := NormalizeTimestamp(raw.SentAt)
	if err != nil {
		return nil, errors.Wrap(err, "sentAt")
	}
	if receivedAt == nil {
		receivedAt = sentAt
	}

	from := NormalizeAddresses(raw.From, true)
	email := &models.Email{
		AccountID:         accountID,
		Provider:          enum.EmailProvider(raw.Provider),
		ProviderMessageID: strings.TrimSpace(raw.ProviderMessageID),
		MessageID:         utils.NormalizeMessageID(raw.MessageID),
		ThreadID:          raw.ThreadID,
		Subject:           subjectOrDefault(raw.Subject),
		From:              from,
		To:                NormalizeAddresses(raw.To, true),
		Cc:                NormalizeAddresses(raw.Cc, false),
		Bcc:               NormalizeAddresses(raw.Bcc, false),
		ReplyTo:           NormalizeAddresses(raw.ReplyTo, false),
		BodyText:          raw.BodyText,
		BodyHTML:          raw.BodyHTML,
		ReceivedAt:        receivedAt,
		SentAt:            sentAt,
		IsRead:            raw.IsRead,
		IsStarred:         raw.IsStarred,
		IsImportant:       raw.IsImportant,
		IsDraft:           raw.IsDraft,
		HasAttachments:    len(raw.Attachments) > 0,
		FolderName:        PrimaryFolder(raw.Folders, raw.Labels),
		Labels:            models.StringArray(utils.UniqueStrings(raw.Labels)),
		LabelIDs:          models.StringArray(utils.UniqueStrings(raw.LabelIDs)),
	}
	if len(from) > 0 {
		email.FromAddress = from[0].Email
		email.FromName = from[0].Name
	}

	email.Subject = utils.TruncateRunes(email.Subject, MaxSubjectLength)
	email.MessageID = utils.TruncateRunes(email.MessageID, MaxHeaderLength)
	email.ThreadID = utils.TruncateRunes(email.ThreadID, MaxHeaderLength)
	email.FromAddress = utils.TruncateRunes(email.FromAddress, MaxHeaderLength)
	email.FromName = utils.TruncateRunes(email.FromName, MaxHeaderLength)
	email.FolderName = utils.TruncateRunes(email.FolderName, MaxHeaderLength)

	email.Snippet = raw.Snippet
	if strings.TrimSpace(email.Snippet) == "" {
		email.Snippet = BuildSnippet(raw.BodyText, raw.BodyHTML)
	} else {
		email.Snippet = utils.TruncateRunes(utils.CollapseWhitespace(email.Snippet), MaxSnippetLength)
	}

	if len(raw.Headers) > 0 {
		email.RawHeaders = make(models.JSONMap, len(raw.Headers))
		for k, v := range raw.Headers {
			email.RawHeaders[k] = v
		}
	}

	return email, nil
}

// NormalizeAddresses cleans an address list. Required lists come back as an
// empty slice when absent, optional ones as nil.
func NormalizeAddresses(in []dto.RawAddress, required bool) models.EmailAddresses {
	if in == nil {
		if required {
			return models.EmailAddresses{}
		}
		return nil
	}

	out := make(models.EmailAddresses, 0, len(in))
	for _, addr := range in {
		cleaned := cleanEmail(addr.Email)
		if cleaned == "" {
			continue
		}
		out = append(out, models.EmailAddress{
			Email: cleaned,
			Name:  strings.TrimSpace(utils.GetOrDefault(addr.Name, "")),
		})
	}
	return out
}

func cleanEmail(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(address)
	if validation.IsValid && validation.CleanEmail != "" {
		return validation.CleanEmail
	}
	return strings.ToLower(address)
}

// PrimaryFolder picks the explicit folder first, then the first label.
func PrimaryFolder(folders, labels []string) string {
	for _, f := range folders {
		if f = strings.TrimSpace(f); f != "" {
			return f
		}
	}
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return DefaultFolderName
}

// NormalizeTimestamp returns the first populated representation in UTC.
func NormalizeTimestamp(ts dto.RawTimestamp) (*time.Time, error) {
	switch {
	case ts.Time != nil:
		if ts.Time.IsZero() {
			return nil, nil
		}
		return utils.TimePtr(ts.Time.UTC()), nil
	case ts.Unix != nil:
		return utils.TimePtr(time.Unix(*ts.Unix, 0).UTC()), nil
	case ts.UnixMilli != nil:
		return utils.TimePtr(time.UnixMilli(*ts.UnixMilli).UTC()), nil
	case strings.TrimSpace(ts.ISO) != "":
		value := strings.TrimSpace(ts.ISO)
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return utils.TimePtr(t.UTC()), nil
			}
		}
		return nil, errors.Wrapf(mailsync_errors.ErrInvalidTimestamp, "unparseable value %q", value)
	}
	return nil, nil
}

// BuildSnippet derives a preview from the plain body, falling back to the
// visible text of the HTML body.
func BuildSnippet(bodyText, bodyHTML string) string {
	text := utils.CollapseWhitespace(bodyText)
	if text == "" && strings.TrimSpace(bodyHTML) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
		if err == nil {
			doc.Find("script, style, head").Remove()
			text = utils.CollapseWhitespace(doc.Text())
		}
	}
	return utils.TruncateRunes(text, MaxSnippetLength)
}

func subjectOrDefault(subject *string) string {
	if subject == nil || strings.TrimSpace(*subject) == "" {
		return DefaultSubject
	}
	return strings.TrimSpace(*subject)
}

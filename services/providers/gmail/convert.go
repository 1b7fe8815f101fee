package gmail

import (
	"html"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
)

var systemFolders = map[string]string{
	"INBOX": "inbox",
	"SENT":  "sent",
	"DRAFT": "drafts",
	"SPAM":  "spam",
	"TRASH": "trash",
}

// folderOrder keeps the primary folder stable regardless of label order.
var folderOrder = []string{"INBOX", "SENT", "DRAFT", "SPAM", "TRASH"}

func convertMessage(msg *gmail.Message) *dto.RawMessage {
	raw := &dto.RawMessage{
		Provider:          enum.EmailGoogleWorkspace.String(),
		ProviderMessageID: msg.Id,
		ThreadID:          msg.ThreadId,
		Snippet:           html.UnescapeString(msg.Snippet),
		ReceivedAt:        internalDate(msg.InternalDate),
		LabelIDs:          msg.LabelIds,
		Labels:            msg.LabelIds,
		IsRead:            true,
	}

	labels := make(map[string]bool, len(msg.LabelIds))
	for _, l := range msg.LabelIds {
		labels[l] = true
	}
	raw.IsRead = !labels["UNREAD"]
	raw.IsStarred = labels["STARRED"]
	raw.IsImportant = labels["IMPORTANT"]
	raw.IsDraft = labels["DRAFT"]
	for _, l := range folderOrder {
		if labels[l] {
			raw.Folders = append(raw.Folders, systemFolders[l])
		}
	}

	if msg.Payload == nil {
		return raw
	}

	headers := make(map[string]string, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		if _, seen := headers[h.Name]; !seen {
			headers[h.Name] = h.Value
		}
	}
	raw.Headers = headers

	if subject, ok := lookupHeader(headers, "Subject"); ok {
		raw.Subject = &subject
	}
	if v, ok := lookupHeader(headers, "Message-ID"); ok {
		raw.MessageID = v
	}
	raw.From = parseAddresses(headers, "From")
	raw.To = parseAddresses(headers, "To")
	raw.Cc = parseAddresses(headers, "Cc")
	raw.Bcc = parseAddresses(headers, "Bcc")
	raw.ReplyTo = parseAddresses(headers, "Reply-To")
	if v, ok := lookupHeader(headers, "Date"); ok {
		raw.SentAt = headerDate(v)
	}

	extractBody(msg.Payload, raw)
	raw.Attachments = extractAttachments(msg.Payload)
	return raw
}

func extractBody(part *gmail.MessagePart, raw *dto.RawMessage) {
	if part == nil {
		return
	}
	if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if raw.BodyText == "" {
				if data, err := decodeBase64URL(part.Body.Data); err == nil {
					raw.BodyText = string(data)
				}
			}
		case "text/html":
			if raw.BodyHTML == "" {
				if data, err := decodeBase64URL(part.Body.Data); err == nil {
					raw.BodyHTML = string(data)
				}
			}
		}
	}
	for _, p := range part.Parts {
		extractBody(p, raw)
	}
}

func extractAttachments(part *gmail.MessagePart) []dto.RawAttachment {
	if part == nil {
		return nil
	}

	var attachments []dto.RawAttachment
	if part.Filename != "" {
		att := dto.RawAttachment{
			Filename:    part.Filename,
			ContentType: part.MimeType,
		}
		if part.Body != nil {
			att.AttachmentRef = part.Body.AttachmentId
			att.Size = part.Body.Size
			// small parts arrive inline in the payload without an attachment id
			if part.Body.AttachmentId == "" && part.Body.Data != "" {
				if data, err := decodeBase64URL(part.Body.Data); err == nil {
					att.Content = data
				}
			}
		}
		for _, h := range part.Headers {
			if h == nil {
				continue
			}
			switch strings.ToLower(h.Name) {
			case "content-id":
				att.ContentID = strings.Trim(strings.TrimSpace(h.Value), "<>")
			case "content-disposition":
				att.Disposition = dispositionType(h.Value)
			}
		}
		attachments = append(attachments, att)
	}

	for _, p := range part.Parts {
		attachments = append(attachments, extractAttachments(p)...)
	}
	return attachments
}

func dispositionType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if i := strings.Index(v, ";"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// parseAddresses returns nil when the header is absent so the mapper can
// tell a missing list from an empty one.
func parseAddresses(headers map[string]string, name string) []dto.RawAddress {
	value, ok := lookupHeader(headers, name)
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return []dto.RawAddress{}
	}

	list, err := mail.ParseAddressList(value)
	if err != nil {
		out := []dto.RawAddress{}
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p == "" {
				continue
			}
			if addr, err := mail.ParseAddress(p); err == nil {
				out = append(out, toRawAddress(addr))
			} else {
				out = append(out, dto.RawAddress{Email: p})
			}
		}
		return out
	}

	out := make([]dto.RawAddress, 0, len(list))
	for _, addr := range list {
		out = append(out, toRawAddress(addr))
	}
	return out
}

func toRawAddress(addr *mail.Address) dto.RawAddress {
	ra := dto.RawAddress{Email: addr.Address}
	if addr.Name != "" {
		name := addr.Name
		ra.Name = &name
	}
	return ra
}

func parseDate(value string) (time.Time, error) {
	t, err := mail.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

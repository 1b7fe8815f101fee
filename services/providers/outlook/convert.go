package outlook

import (
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
)

func convertMessage(msg models.Messageable, folderNames map[string]string) *dto.RawMessage {
	raw := &dto.RawMessage{
		Provider:          enum.EmailOutlook.String(),
		ProviderMessageID: deref(msg.GetId()),
		ThreadID:          deref(msg.GetConversationId()),
		MessageID:         deref(msg.GetInternetMessageId()),
		Subject:           msg.GetSubject(),
		Snippet:           deref(msg.GetBodyPreview()),
		IsRead:            derefBool(msg.GetIsRead()),
		IsDraft:           derefBool(msg.GetIsDraft()),
		Labels:            msg.GetCategories(),
	}

	if from := msg.GetFrom(); from != nil {
		raw.From = convertRecipients([]models.Recipientable{from})
	} else if sender := msg.GetSender(); sender != nil {
		raw.From = convertRecipients([]models.Recipientable{sender})
	}
	raw.To = convertRecipients(msg.GetToRecipients())
	raw.Cc = convertRecipients(msg.GetCcRecipients())
	raw.Bcc = convertRecipients(msg.GetBccRecipients())
	raw.ReplyTo = convertRecipients(msg.GetReplyTo())

	if body := msg.GetBody(); body != nil && body.GetContent() != nil {
		if ct := body.GetContentType(); ct != nil && *ct == models.HTML_BODYTYPE {
			raw.BodyHTML = *body.GetContent()
		} else {
			raw.BodyText = *body.GetContent()
		}
	}

	if t := msg.GetReceivedDateTime(); t != nil {
		received := t.UTC()
		raw.ReceivedAt = dto.RawTimestamp{Time: &received}
	}
	if t := msg.GetSentDateTime(); t != nil {
		sent := t.UTC()
		raw.SentAt = dto.RawTimestamp{Time: &sent}
	}

	if imp := msg.GetImportance(); imp != nil && *imp == models.HIGH_IMPORTANCE {
		raw.IsImportant = true
	}
	if flag := msg.GetFlag(); flag != nil {
		if status := flag.GetFlagStatus(); status != nil && *status == models.FLAGGED_FOLLOWUPFLAGSTATUS {
			raw.IsStarred = true
		}
	}

	if parent := msg.GetParentFolderId(); parent != nil {
		raw.LabelIDs = []string{*parent}
		if name, ok := folderNames[*parent]; ok {
			raw.Folders = []string{name}
		}
	}

	if headers := msg.GetInternetMessageHeaders(); len(headers) > 0 {
		raw.Headers = make(map[string]string, len(headers))
		for _, h := range headers {
			if h == nil || h.GetName() == nil || h.GetValue() == nil {
				continue
			}
			if _, seen := raw.Headers[*h.GetName()]; !seen {
				raw.Headers[*h.GetName()] = *h.GetValue()
			}
		}
	}

	for _, att := range msg.GetAttachments() {
		if att == nil {
			continue
		}
		ra := dto.RawAttachment{
			Filename:      deref(att.GetName()),
			ContentType:   deref(att.GetContentType()),
			AttachmentRef: deref(att.GetId()),
		}
		if size := att.GetSize(); size != nil {
			ra.Size = int64(*size)
		}
		if derefBool(att.GetIsInline()) {
			ra.Disposition = "inline"
		} else {
			ra.Disposition = "attachment"
		}
		if file, ok := att.(models.FileAttachmentable); ok {
			ra.ContentID = strings.Trim(deref(file.GetContentId()), "<>")
		}
		raw.Attachments = append(raw.Attachments, ra)
	}

	return raw
}

// convertRecipients keeps nil for an absent list so the mapper can apply
// its own defaults.
func convertRecipients(recipients []models.Recipientable) []dto.RawAddress {
	if recipients == nil {
		return nil
	}
	out := make([]dto.RawAddress, 0, len(recipients))
	for _, r := range recipients {
		if r == nil || r.GetEmailAddress() == nil {
			continue
		}
		addr := r.GetEmailAddress()
		out = append(out, dto.RawAddress{
			Email: deref(addr.GetAddress()),
			Name:  addr.GetName(),
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	return b != nil && *b
}

package imap

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
)

// convertMessage always returns a message. When the body cannot be parsed
// the envelope fields are used and the parse error is returned alongside.
func convertMessage(folder string, uidValidity uint32, msg *imap.Message, section *imap.BodySectionName) (*dto.RawMessage, error) {
	raw := &dto.RawMessage{
		Provider:          enum.EmailGeneric.String(),
		ProviderMessageID: messageRef(folder, uidValidity, msg.Uid),
		Folders:           []string{folder},
	}
	if !msg.InternalDate.IsZero() {
		received := msg.InternalDate.UTC()
		raw.ReceivedAt = dto.RawTimestamp{Time: &received}
	}
	applyFlags(raw, msg.Flags)

	body := fullBody(msg, section)
	if len(body) == 0 {
		applyEnvelope(raw, msg.Envelope)
		return raw, errors.New("message body missing from fetch")
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		applyEnvelope(raw, msg.Envelope)
		return raw, errors.Wrap(err, "failed to parse message")
	}

	raw.Headers = make(map[string]string)
	for _, key := range env.GetHeaderKeys() {
		raw.Headers[key] = env.GetHeader(key)
	}
	if len(env.GetHeaderValues("Subject")) > 0 {
		subject := env.GetHeader("Subject")
		raw.Subject = &subject
	}
	raw.MessageID = env.GetHeader("Message-Id")
	raw.From = addressList(env, "From")
	raw.To = addressList(env, "To")
	raw.Cc = addressList(env, "Cc")
	raw.Bcc = addressList(env, "Bcc")
	raw.ReplyTo = addressList(env, "Reply-To")
	raw.BodyText = env.Text
	raw.BodyHTML = env.HTML
	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		sent := date.UTC()
		raw.SentAt = dto.RawTimestamp{Time: &sent}
	} else if msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
		sent := msg.Envelope.Date.UTC()
		raw.SentAt = dto.RawTimestamp{Time: &sent}
	}
	if raw.Subject == nil && msg.Envelope != nil && msg.Envelope.Subject != "" {
		subject := msg.Envelope.Subject
		raw.Subject = &subject
	}

	for i, part := range env.Attachments {
		raw.Attachments = append(raw.Attachments, rawAttachment(part, attachmentRef(part, i), "attachment"))
	}
	for i, part := range env.Inlines {
		raw.Attachments = append(raw.Attachments, rawAttachment(part, fmt.Sprintf("inline#%d", i), "inline"))
	}
	for i, part := range env.OtherParts {
		if part.FileName == "" && part.ContentID == "" {
			continue
		}
		raw.Attachments = append(raw.Attachments, rawAttachment(part, fmt.Sprintf("other#%d", i), "inline"))
	}

	return raw, nil
}

// attachmentRef is the original filename, falling back to the part's
// position when the sender gave none.
func attachmentRef(part *enmime.Part, index int) string {
	if part.FileName != "" {
		return part.FileName
	}
	return fmt.Sprintf("#%d", index)
}

func rawAttachment(part *enmime.Part, ref, defaultDisposition string) dto.RawAttachment {
	disposition := strings.ToLower(part.Disposition)
	if disposition == "" {
		disposition = defaultDisposition
	}
	return dto.RawAttachment{
		Filename:      part.FileName,
		ContentType:   part.ContentType,
		Size:          int64(len(part.Content)),
		ContentID:     strings.Trim(part.ContentID, "<>"),
		Disposition:   disposition,
		AttachmentRef: ref,
		Content:       part.Content,
	}
}

func fullBody(msg *imap.Message, section *imap.BodySectionName) []byte {
	literal := msg.GetBody(section)
	if literal == nil {
		for name, l := range msg.Body {
			if name != nil && len(name.Path) == 0 && name.Specifier == imap.EntireSpecifier {
				literal = l
				break
			}
		}
	}
	if literal == nil {
		return nil
	}
	data, err := io.ReadAll(literal)
	if err != nil {
		return nil
	}
	return data
}

func addressList(env *enmime.Envelope, header string) []dto.RawAddress {
	if len(env.GetHeaderValues(header)) == 0 {
		return nil
	}
	list, err := env.AddressList(header)
	if err != nil {
		value := strings.TrimSpace(env.GetHeader(header))
		if value == "" {
			return []dto.RawAddress{}
		}
		return []dto.RawAddress{{Email: value}}
	}

	out := make([]dto.RawAddress, 0, len(list))
	for _, addr := range list {
		ra := dto.RawAddress{Email: addr.Address}
		if addr.Name != "" {
			name := addr.Name
			ra.Name = &name
		}
		out = append(out, ra)
	}
	return out
}

func applyEnvelope(raw *dto.RawMessage, envelope *imap.Envelope) {
	if envelope == nil {
		return
	}
	if envelope.Subject != "" {
		subject := envelope.Subject
		raw.Subject = &subject
	}
	raw.MessageID = envelope.MessageId
	raw.From = envelopeAddresses(envelope.From)
	raw.To = envelopeAddresses(envelope.To)
	raw.Cc = envelopeAddresses(envelope.Cc)
	raw.Bcc = envelopeAddresses(envelope.Bcc)
	raw.ReplyTo = envelopeAddresses(envelope.ReplyTo)
	if !envelope.Date.IsZero() {
		sent := envelope.Date.UTC()
		raw.SentAt = dto.RawTimestamp{Time: &sent}
	}
}

func envelopeAddresses(list []*imap.Address) []dto.RawAddress {
	if list == nil {
		return nil
	}
	out := make([]dto.RawAddress, 0, len(list))
	for _, addr := range list {
		if addr == nil || addr.MailboxName == "" {
			continue
		}
		ra := dto.RawAddress{Email: addr.Address()}
		if addr.PersonalName != "" {
			name := addr.PersonalName
			ra.Name = &name
		}
		out = append(out, ra)
	}
	return out
}

func applyFlags(raw *dto.RawMessage, flags []string) {
	for _, f := range flags {
		switch f {
		case imap.SeenFlag:
			raw.IsRead = true
		case imap.FlaggedFlag:
			raw.IsStarred = true
		case imap.DraftFlag:
			raw.IsDraft = true
		case imap.RecentFlag, imap.AnsweredFlag, imap.DeletedFlag:
		default:
			if strings.EqualFold(f, "$Important") {
				raw.IsImportant = true
			}
			if !strings.HasPrefix(f, "\\") {
				raw.Labels = append(raw.Labels, f)
			}
		}
	}
}

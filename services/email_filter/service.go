package email_filter

import (
	"context"
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type emailFilterService struct{}

func NewEmailFilterService() interfaces.EmailFilterService {
	return &emailFilterService{}
}

// ScanEmail classifies the email from its headers and addresses. Checks run
// in priority order and the first match wins.
func (s *emailFilterService) ScanEmail(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailFilterService.ScanEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	headers := email.Headers()

	if ok, reason := s.isBounceNotification(headers, email.Subject, email.FromAddress); ok {
		email.Classification = enum.EmailBounceNotification
		email.ClassificationReason = reason
		return nil
	}

	if ok, reason := s.isAutoresponder(headers); ok {
		email.Classification = enum.EmailAutoResponder
		email.ClassificationReason = reason
		return nil
	}

	if ok, reason := s.isBulkEmail(headers, email.FromAddress); ok {
		email.Classification = enum.EmailBulk
		email.ClassificationReason = reason
		return nil
	}

	if s.isInternalEmail(email) {
		email.Classification = enum.EmailInternal
		email.ClassificationReason = ""
		return nil
	}

	email.Classification = enum.EmailOK
	email.ClassificationReason = ""
	return nil
}

func (s *emailFilterService) isInternalEmail(email *models.Email) bool {
	senderValidation := mailvalidate.ValidateEmailSyntax(email.FromAddress)
	if !senderValidation.IsValid || senderValidation.IsFreeAccount || senderValidation.Domain == "" {
		return false
	}

	recipients := append(append(email.To.Emails(), email.Cc.Emails()...), email.Bcc.Emails()...)
	if len(recipients) == 0 {
		return false
	}

	for _, recipient := range recipients {
		recipientValidation := mailvalidate.ValidateEmailSyntax(recipient)
		if recipientValidation.Domain == "" {
			continue
		}
		if !strings.EqualFold(recipientValidation.Domain, senderValidation.Domain) {
			return false
		}
	}

	return true
}

func (s *emailFilterService) isBulkEmail(headers *models.EmailHeaders, from string) (bool, string) {
	if headers.ForwardedFor == "" {
		switch {
		case headers.ReplyToExists && !sameAddress(headers.ReplyTo, from):
			return true, "REPLY-TO != FROM"
		case headers.ReturnPathExists && headers.ReturnPath == "":
			return true, "RETURN-PATH header is empty"
		case headers.ReturnPathExists && !sameAddress(headers.ReturnPath, from):
			return true, "RETURN-PATH != FROM"
		}
	}

	switch {
	case headers.ListUnsubscribe:
		return true, "UNSUBSCRIBE header present"
	case strings.EqualFold(headers.Precedence, "bulk"), strings.EqualFold(headers.Precedence, "list"):
		return true, "PRECEDENCE: BULK header present"
	case headers.Sender != "" && !sameAddress(headers.Sender, from):
		return true, "SENDER != FROM"
	default:
		return s.senderChecks(from)
	}
}

// senderChecks flags role and system generated senders.
func (s *emailFilterService) senderChecks(from string) (bool, string) {
	if from == "" {
		return true, "FROM is empty"
	}
	syntaxValidation := mailvalidate.ValidateEmailSyntax(from)
	if syntaxValidation.IsRoleAccount {
		return true, "FROM is a role account"
	}
	if syntaxValidation.IsSystemGenerated {
		return true, "FROM is system generated"
	}
	return false, ""
}

func (s *emailFilterService) isAutoresponder(headers *models.EmailHeaders) (bool, string) {
	switch {
	case headers.XAutoreply != "":
		return true, "X-AUTOREPLY header present"
	case headers.XAutoresponse != "":
		return true, "X-AUTORESPONSE header present"
	case headers.XLoop:
		return true, "X-LOOP header present"
	case strings.EqualFold(headers.Precedence, "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY, header present"
	case strings.HasPrefix(strings.ToLower(headers.AutoSubmitted), "auto-replied"):
		return true, "AUTO-SUBMITTED: AUTO-REPLIED header present"
	default:
		return false, ""
	}
}

func (s *emailFilterService) isBounceNotification(headers *models.EmailHeaders, subject, from string) (bool, string) {
	switch {
	case len(headers.XFailedRecipients) > 0:
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.EqualFold(headers.ContentDescription, "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(headers.ReturnPath) && headers.ReturnPath != "":
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

var bounceSubjects = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}

// sameAddress compares a header value such as "Name <a@b.c>" with a bare
// address.
func sameAddress(header, address string) bool {
	parsed := strings.TrimSpace(header)
	if a, err := mail.ParseAddress(parsed); err == nil {
		parsed = a.Address
	}
	return strings.EqualFold(parsed, strings.TrimSpace(address))
}

package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

type APIHandlers struct {
	Accounts    *AccountsHandler
	Emails      *EmailsHandler
	Sync        *SyncHandler
	Attachments *AttachmentsHandler
}

// InitHandlers builds the REST handlers. publisher may be nil, in which case
// asynchronous sync requests are refused.
func InitHandlers(accounts interfaces.AccountService, emails interfaces.EmailService, sync interfaces.SyncService, attachments interfaces.AttachmentService, publisher interfaces.EventPublisher) *APIHandlers {
	return &APIHandlers{
		Accounts:    NewAccountsHandler(accounts),
		Emails:      NewEmailsHandler(emails),
		Sync:        NewSyncHandler(accounts, sync, publisher),
		Attachments: NewAttachmentsHandler(attachments),
	}
}

func respondError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.JSON(api_errors.HTTPStatus(err), gin.H{"error": err.Error()})
}

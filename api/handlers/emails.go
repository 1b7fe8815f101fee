package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

type EmailsHandler struct {
	emails interfaces.EmailService
}

func NewEmailsHandler(emails interfaces.EmailService) *EmailsHandler {
	return &EmailsHandler{emails: emails}
}

// ListByAccount pages through an account's synced emails, newest first
func (h *EmailsHandler) ListByAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.ListByAccount")
		defer span.Finish()
		tracing.TagComponentRest(span)

		validation := api_errors.NewMultiErrors()
		limit := queryInt(c, "limit", validation)
		offset := queryInt(c, "offset", validation)
		if validation.HasErrors() {
			tracing.TraceErr(span, validation)
			c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
			return
		}

		emails, total, err := h.emails.ListByAccount(ctx, c.Param("id"), limit, offset)
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"emails": emails,
			"total":  total,
		})
	}
}

func (h *EmailsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "EmailsHandler.Get")
		defer span.Finish()
		tracing.TagComponentRest(span)

		email, err := h.emails.GetByID(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, email)
	}
}

func queryInt(c *gin.Context, name string, validation *api_errors.MultiErrors) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		validation.Add(name, "must be a non-negative integer", err)
		return 0
	}
	return n
}

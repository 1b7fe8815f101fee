package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

type AttachmentsHandler struct {
	attachments interfaces.AttachmentService
}

func NewAttachmentsHandler(attachments interfaces.AttachmentService) *AttachmentsHandler {
	return &AttachmentsHandler{attachments: attachments}
}

// ListByEmail returns the attachment rows of one email
func (h *AttachmentsHandler) ListByEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AttachmentsHandler.ListByEmail")
		defer span.Finish()
		tracing.TagComponentRest(span)

		attachments, err := h.attachments.ListByEmail(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"attachments": attachments})
	}
}

type downloadRequest struct {
	MessageRef    string `json:"messageRef"`
	AttachmentRef string `json:"attachmentRef"`
}

// Download materializes the attachment in object storage and returns its URL.
func (h *AttachmentsHandler) Download() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AttachmentsHandler.Download")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var body downloadRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		result, err := h.attachments.DownloadAttachment(ctx, dto.DownloadAttachmentRequest{
			AttachmentID:  c.Param("id"),
			MessageRef:    body.MessageRef,
			AttachmentRef: body.AttachmentRef,
		})
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

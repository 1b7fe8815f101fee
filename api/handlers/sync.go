package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	api_errors "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/tracing"
)

type SyncHandler struct {
	accounts  interfaces.AccountService
	sync      interfaces.SyncService
	publisher interfaces.EventPublisher
}

func NewSyncHandler(accounts interfaces.AccountService, sync interfaces.SyncService, publisher interfaces.EventPublisher) *SyncHandler {
	return &SyncHandler{
		accounts:  accounts,
		sync:      sync,
		publisher: publisher,
	}
}

// Start runs a sync for the account. With ?async=true the request is queued
// as a SyncRequested command and the handler returns 202.
func (h *SyncHandler) Start() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.Start")
		defer span.Finish()
		tracing.TagComponentRest(span)
		accountID := c.Param("id")
		tracing.TagAccount(span, accountID)

		opts, validationErrs := bindSyncOptions(c)
		if validationErrs.HasErrors() {
			tracing.TraceErr(span, validationErrs)
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErrs.Error()})
			return
		}

		if c.Query("async") == "true" {
			if h.publisher == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no event transport configured"})
				return
			}
			if _, err := h.accounts.GetByID(ctx, accountID); err != nil {
				respondError(c, span, err)
				return
			}
			request := dto.SyncRequestedEvent{AccountID: accountID, Options: opts}
			if err := h.publisher.PublishEvent(ctx, dto.EventSyncRequested, accountID, enum.ACCOUNT, request); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "queued", "accountId": accountID})
			return
		}

		result, err := h.sync.SyncAccount(ctx, accountID, opts)
		if err != nil {
			tracing.TraceErr(span, err)
			body := gin.H{"error": err.Error()}
			if result != nil {
				body["result"] = result
			}
			c.JSON(api_errors.HTTPStatus(err), body)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func (h *SyncHandler) Progress() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.Progress")
		defer span.Finish()
		tracing.TagComponentRest(span)

		progress, err := h.sync.GetSyncProgress(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

// bindSyncOptions reads options from the JSON body, then lets the mode and
// limit query parameters override it.
func bindSyncOptions(c *gin.Context) (dto.SyncOptions, *api_errors.MultiErrors) {
	errs := api_errors.NewMultiErrors()
	var opts dto.SyncOptions

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			errs.Add("body", "invalid JSON body", err)
			return opts, errs
		}
	}

	if mode := c.Query("mode"); mode != "" {
		opts.Mode = enum.SyncMode(mode)
	}
	if opts.Mode != "" && !opts.Mode.IsValid() {
		errs.Add("mode", "must be full or incremental", nil)
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			errs.Add("limit", "must be a number", err)
		} else {
			opts.Limit = n
		}
	}
	if opts.Limit < 0 {
		errs.Add("limit", "must not be negative", nil)
	}
	if opts.BatchSize < 0 {
		errs.Add("batchSize", "must not be negative", nil)
	}

	return opts, errs
}

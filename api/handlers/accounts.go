package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/tracing"
)

type AccountsHandler struct {
	accounts interfaces.AccountService
}

func NewAccountsHandler(accounts interfaces.AccountService) *AccountsHandler {
	return &AccountsHandler{accounts: accounts}
}

// Register connects a new mailbox
func (h *AccountsHandler) Register() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Register")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request dto.RegisterAccountRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		account, err := h.accounts.Register(ctx, request)
		if err != nil {
			respondError(c, span, err)
			return
		}
		tracing.TagAccount(span, account.ID)

		c.JSON(http.StatusCreated, account)
	}
}

func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AccountsHandler.Get")
		defer span.Finish()
		tracing.TagComponentRest(span)

		account, err := h.accounts.GetByID(ctx, c.Param("id"))
		if err != nil {
			respondError(c, span, err)
			return
		}

		c.JSON(http.StatusOK, account)
	}
}

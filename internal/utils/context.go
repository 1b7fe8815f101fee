package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	UserId    string
	AccountId string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

var UserIdHeaders = []string{"X-USER-ID", "X-User-Id", "userId"}

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		UserId:    c.GetString("UserId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetUserIdFromContext(ctx context.Context) string {
	return GetContext(ctx).UserId
}

func GetAccountIdFromContext(ctx context.Context) string {
	return GetContext(ctx).AccountId
}

// SetAccountIdInContext copies the custom context so callers sharing the
// parent context do not observe the change.
func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AccountId = accountId
	return WithCustomContext(ctx, &customContext)
}

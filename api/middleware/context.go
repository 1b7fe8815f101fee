package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/utils"
)

const accountRoutePrefix = "/v1/accounts/:id"

// CustomContextMiddleware adds custom context to all requests. Account
// routes also carry the account id.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		if id := c.Param("id"); id != "" && strings.HasPrefix(c.FullPath(), accountRoutePrefix) {
			ctx = utils.SetAccountIdInContext(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

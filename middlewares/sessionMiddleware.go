package middlewares

import (
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller's session into request context.
// Auth itself is owned by the external identity service; it stores
// "Token:<token>" => "<userId>|<userName>|<businessId>" in redis at login,
// and this side only reads it. Requests without a token pass through
// unauthenticated; model functions reject them when they need a business id.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		session, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		parts := strings.SplitN(session, "|", 3)
		if len(parts) == 3 {
			if userId, err := strconv.Atoi(parts[0]); err == nil {
				ctx = utils.SetUserIdInContext(ctx, userId)
			}
			ctx = utils.SetUserNameInContext(ctx, parts[1])
			ctx = utils.SetBusinessIdInContext(ctx, parts[2])
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OutletMiddleware lifts the X-Outlet-Id header into context. The outlet a
// request operates on is a per-request choice, not a session property.
func OutletMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-Outlet-Id"); v != "" {
			if outletId, err := strconv.Atoi(v); err == nil && outletId > 0 {
				c.Request = c.Request.WithContext(
					utils.SetOutletIdInContext(c.Request.Context(), outletId))
			}
		}
		c.Next()
	}
}

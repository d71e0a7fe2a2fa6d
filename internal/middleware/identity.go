package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nkosei/brightpath-backend/internal/logger"
)

const userIDContextKey = "brightpath_user_id"

// IdentityMiddleware extracts the pre-authenticated user identity set by the
// upstream proxy. The core never authenticates; a missing identity is a
// request the proxy should not have forwarded.
type IdentityMiddleware struct {
	log *logger.Logger
}

func NewIdentityMiddleware(log *logger.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{log: log.With("middleware", "IdentityMiddleware")}
}

func (m *IdentityMiddleware) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			m.log.Warn("Request missing X-User-ID header", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserID reads the identity placed on the context by RequireIdentity.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

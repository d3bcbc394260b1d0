package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/telemetry"
)

// RequireScope admits the request only when the credential placed in the context
// by AuthMiddleware carries every scope in required. Scopes are independent grants;
// holding write:webhooks says nothing about read:webhooks.
func RequireScope(required ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted, _ := c.Get(ContextScopes)
		scopes, ok := granted.([]string)
		if !ok {
			// Route mounted without AuthMiddleware in front of it
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}

		missing := auth.MissingScopes(scopes, required)
		if len(missing) == 0 {
			c.Next()
			return
		}

		telemetry.ScopeDenialsTotal.WithLabelValues(string(missing[0])).Inc()
		names := make([]string, len(missing))
		for i, s := range missing {
			names[i] = string(s)
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Missing required scope",
			"details": "Required scope: " + strings.Join(names, " "),
		})
	}
}

package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/middleware"
)

// respondError writes {"error": message} with the status of err's kind. Internal
// failures are logged; their message is generic unless the error was classified.
func respondError(c *gin.Context, err error) {
	kind := apierrors.KindOf(err)
	if kind == apierrors.KindInternal {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", middleware.RequestID(c),
			"user_id", middleware.UserID(c),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(kind.Status(), gin.H{"error": apierrors.Message(err)})
}

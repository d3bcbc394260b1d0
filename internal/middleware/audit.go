// audit.go provides Gin middleware that records authenticated write operations to the audit
// log, with optional shipping to external audit destinations.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/audit"
	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/safego"
)

// AuditLogWriter persists audit rows
type AuditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRoute names the action and resource behind a route template
type auditRoute struct {
	action   string
	resource string
	// always is set for reads with side effects
	always bool
}

var auditRoutes = map[string]auditRoute{
	"POST /webhook":         {action: "webhook.create", resource: "webhook"},
	"PUT /webhook/:id":      {action: "webhook.update", resource: "webhook"},
	"PATCH /webhook/:id":    {action: "webhook.patch", resource: "webhook"},
	"DELETE /webhook/:id":   {action: "webhook.delete", resource: "webhook"},
	"GET /webhook/:id/call": {action: "webhook.call", resource: "webhook", always: true},
	"GET /webhook":          {action: "webhook.list", resource: "webhook"},
	"GET /webhook/:id":      {action: "webhook.read", resource: "webhook"},
	"GET /webhook/:id/logs": {action: "webhook.logs", resource: "webhook"},
	"POST /oauth/token":     {action: "token.issue", resource: "token"},
	"POST /oauth/revoke":    {action: "token.revoke", resource: "token"},
	"POST /auth/register":   {action: "user.register", resource: "user"},
	"GET /auth/user":        {action: "user.read", resource: "user"},
}

// AuditMiddleware records audited actions in auditRepo and ships them through shipper.
// Either may be nil. A nil auditCfg records only successful mutations.
func AuditMiddleware(auditRepo AuditLogWriter, shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}

		route, known := auditRoutes[c.Request.Method+" "+c.FullPath()]
		status := c.Writer.Status()
		isReadOp := c.Request.Method == http.MethodGet && !route.always
		isFailed := status >= 400

		// Default behavior: only log successful write operations
		if auditCfg == nil {
			if isReadOp || isFailed {
				return
			}
		} else {
			if isReadOp && !auditCfg.LogReadOperations {
				return
			}
			if isFailed && !auditCfg.LogFailedRequests {
				return
			}
		}

		action := c.Request.Method + " " + c.Request.URL.Path
		if known {
			action = route.action
		}

		userID := c.GetString(ContextUserID)
		authMethod := c.GetString(ContextAuthMethod)
		resourceID := c.Param("id")
		ipAddress := c.ClientIP()

		auditLog := &models.AuditLog{
			Action:    action,
			IPAddress: &ipAddress,
			CreatedAt: time.Now(),
			Metadata:  map[string]interface{}{"status_code": status},
		}
		if userID != "" {
			auditLog.UserID = &userID
		}
		if route.resource != "" {
			resource := route.resource
			auditLog.ResourceType = &resource
		}
		if resourceID != "" {
			auditLog.ResourceID = &resourceID
		}
		if authMethod != "" {
			auditLog.Metadata["auth_method"] = authMethod
		}

		rec := &audit.Record{
			Timestamp:    auditLog.CreatedAt,
			Action:       action,
			RequestID:    RequestID(c),
			UserID:       userID,
			ResourceType: route.resource,
			ResourceID:   resourceID,
			IPAddress:    ipAddress,
			AuthMethod:   authMethod,
			StatusCode:   status,
			Metadata:     auditLog.Metadata,
		}

		// Async log creation (non-blocking)
		safego.Go("audit-write", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if auditRepo != nil {
				if err := auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
					slog.Error("failed to create audit log", "action", action, "error", err)
				}
			}

			if shipper != nil {
				if err := shipper.Ship(ctx, rec); err != nil {
					slog.Warn("failed to ship audit log", "action", action, "error", err)
				}
			}
		})
	}
}

// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → Auth → Audit → RateLimit → RBAC → Handler
//
// Security headers run first so they appear on all responses including errors.
// On authenticated routes the limiter runs after auth so callers are keyed by user;
// the unauthenticated token and register endpoints are keyed by client IP.
// Auth populates the user identity and scopes; RBAC reads from that context.
// Audit wraps everything after it and records once the handler has returned, so
// the stored status reflects rate-limit and scope rejections too.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/auth"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID     = "user_id"
	ContextUsername   = "username"
	ContextScopes     = "scopes"
	ContextTokenJTI   = "token_jti"
	ContextAuthMethod = "auth_method"
)

// TokenValidator checks a bearer credential against its stored record
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthMiddleware requires a valid bearer credential
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": bearerErrorMessage(err),
			})
			return
		}

		claims, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if auth.IsRejection(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid credentials",
				})
				return
			}
			slog.Error("token validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

func bearerErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoAuthorization):
		return "Missing authorization header"
	case errors.Is(err, auth.ErrNotBearer):
		return "Authorization header must start with 'Bearer '"
	default:
		return "Authorization token is empty"
	}
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(ContextUserID, claims.Subject)
	c.Set(ContextUsername, claims.Username)
	c.Set(ContextScopes, claims.Scopes())
	c.Set(ContextTokenJTI, claims.ID)
	c.Set(ContextAuthMethod, "bearer")
}

// UserID returns the authenticated user's ID, or "" when the request is anonymous
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// TokenJTI returns the ID of the credential that authenticated the request
func TokenJTI(c *gin.Context) string {
	return c.GetString(ContextTokenJTI)
}

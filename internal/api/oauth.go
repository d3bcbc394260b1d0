// oauth.go implements the token endpoint (password and refresh_token grants) and
// token revocation.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/middleware"
)

// OAuth2 error codes returned by the token endpoint
const (
	oauthInvalidRequest       = "invalid_request"
	oauthInvalidGrant         = "invalid_grant"
	oauthUnsupportedGrantType = "unsupported_grant_type"
	oauthServerError          = "server_error"
)

const (
	grantPassword     = "password"
	grantRefreshToken = "refresh_token"
)

// UserStore persists and resolves accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenHandlers serves /oauth/token and /oauth/revoke
type TokenHandlers struct {
	users  UserStore
	issuer *auth.Issuer
}

// NewTokenHandlers creates a new TokenHandlers instance
func NewTokenHandlers(users UserStore, issuer *auth.Issuer) *TokenHandlers {
	return &TokenHandlers{users: users, issuer: issuer}
}

// tokenRequest is accepted as JSON or as a form body
type tokenRequest struct {
	GrantType    string `json:"grant_type" form:"grant_type"`
	Username     string `json:"username" form:"username"`
	Password     string `json:"password" form:"password"`
	Scope        string `json:"scope" form:"scope"`
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

func oauthError(c *gin.Context, status int, code, description string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":             code,
		"error_description": description,
	})
}

func requestContext(c *gin.Context) auth.RequestContext {
	return auth.RequestContext{
		Host:           c.Request.Host,
		ForwardedProto: c.GetHeader("X-Forwarded-Proto"),
		ClientIP:       c.ClientIP(),
	}
}

// TokenHandler issues credentials
// POST /oauth/token
func (h *TokenHandlers) TokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBind(&req); err != nil {
			oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "Malformed request body")
			return
		}

		var (
			cred *auth.Credential
			ok   bool
		)
		switch req.GrantType {
		case "", grantPassword:
			cred, ok = h.passwordGrant(c, &req)
		case grantRefreshToken:
			cred, ok = h.refreshGrant(c, &req)
		default:
			oauthError(c, http.StatusBadRequest, oauthUnsupportedGrantType, "Unsupported grant type: "+req.GrantType)
			return
		}
		if !ok {
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.JSON(http.StatusOK, cred)
	}
}

func (h *TokenHandlers) passwordGrant(c *gin.Context, req *tokenRequest) (*auth.Credential, bool) {
	if req.Username == "" || req.Password == "" {
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "username and password are required")
		return nil, false
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		oauthError(c, http.StatusInternalServerError, oauthServerError, "Failed to issue token")
		return nil, false
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		oauthError(c, http.StatusUnauthorized, oauthInvalidGrant, "Invalid username or password")
		return nil, false
	}

	cred, err := h.issuer.Issue(c.Request.Context(), user, req.Scope, requestContext(c))
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.ID, "error", err)
		oauthError(c, http.StatusInternalServerError, oauthServerError, "Failed to issue token")
		return nil, false
	}
	return cred, true
}

func (h *TokenHandlers) refreshGrant(c *gin.Context, req *tokenRequest) (*auth.Credential, bool) {
	if req.RefreshToken == "" {
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "refresh_token is required")
		return nil, false
	}

	cred, err := h.issuer.Refresh(c.Request.Context(), req.RefreshToken, req.Scope, requestContext(c))
	switch {
	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrRefreshTokenStale),
		errors.Is(err, auth.ErrUserNotFound):
		oauthError(c, http.StatusBadRequest, oauthInvalidGrant, err.Error())
		return nil, false
	case err != nil:
		slog.Error("failed to refresh token", "error", err)
		oauthError(c, http.StatusInternalServerError, oauthServerError, "Failed to issue token")
		return nil, false
	}
	return cred, true
}

type revokeRequest struct {
	Token string `json:"token" form:"token"`
}

// RevokeHandler revokes the presented credential, or another access token owned by
// the caller when one is named in the body. Tokens that do not parse or belong to
// someone else are ignored, as RFC 7009 asks.
// POST /oauth/revoke
func (h *TokenHandlers) RevokeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revokeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBind(&req); err != nil {
				oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "Malformed request body")
				return
			}
		}

		userID := middleware.UserID(c)
		jti := middleware.TokenJTI(c)

		if req.Token != "" {
			// Expired tokens can still be revoked
			claims, err := auth.ParseClaims(req.Token, jwt.WithoutClaimsValidation())
			if err != nil || claims.Subject != userID {
				slog.Warn("ignoring revocation of foreign or malformed token", "user_id", userID)
				c.JSON(http.StatusOK, gin.H{"revoked": false})
				return
			}
			jti = claims.ID
		}

		revoked, err := h.issuer.Revoke(c.Request.Context(), jti)
		if err != nil {
			respondError(c, err)
			return
		}

		slog.Info("access token revoked", "user_id", userID, "jti", jti, "changed", revoked)
		c.JSON(http.StatusOK, gin.H{"revoked": revoked})
	}
}

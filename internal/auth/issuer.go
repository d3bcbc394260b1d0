// Package auth - issuer.go turns an authenticated user and a requested scope string into a
// signed bearer credential and records it so it can later be validated or revoked.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/telemetry"
)

const (
	// TokenTypeBearer is the only token type issued
	TokenTypeBearer = "Bearer"

	// AccessTokenLifetime applies to every credential whose scope does not include "call"
	AccessTokenLifetime = 10 * time.Minute

	// RefreshTokenLifetime bounds how long after issuance a refresh token may be redeemed
	RefreshTokenLifetime = 30 * 24 * time.Hour
)

var (
	// ErrInvalidRefreshToken is returned when a refresh token cannot be opened or decoded
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenStale is returned when the access token behind a refresh token is unknown, revoked, or too old
	ErrRefreshTokenStale = errors.New("refresh token is no longer valid")
	// ErrUserNotFound is returned when the owner of a refreshed token no longer exists
	ErrUserNotFound = errors.New("user not found")
)

// TokenStore persists access token records
type TokenStore interface {
	CreateAccessToken(ctx context.Context, token *models.AccessToken) error
	GetAccessToken(ctx context.Context, id string) (*models.AccessToken, error)
	RevokeAccessToken(ctx context.Context, id string, at time.Time) (bool, error)
}

// UserLookup resolves users by ID
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Sealer provides the opaque encryption used for refresh tokens
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// RequestContext carries the parts of the inbound request that shape a credential
type RequestContext struct {
	Host           string
	ForwardedProto string
	ClientIP       string
}

// Origin returns the issuer/audience string "<proto>://<host>"
func (rc RequestContext) Origin() string {
	proto := rc.ForwardedProto
	if proto == "" {
		proto = "http"
	}
	return proto + "://" + rc.Host
}

// Credential is the token endpoint response body
type Credential struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope"`

	// JTI identifies the backing AccessToken record
	JTI string `json:"-"`
}

// Expiring reports whether the credential carries an expiry
func (c *Credential) Expiring() bool {
	return c.ExpiresIn > 0
}

// RefreshClaims is the plaintext sealed inside a refresh token
type RefreshClaims struct {
	ID  string `json:"jti"`
	Sub string `json:"sub"` // jti of the access token it renews
}

// Issuer issues, refreshes, and revokes bearer credentials
type Issuer struct {
	tokens   TokenStore
	users    UserLookup
	sealer   Sealer
	onRevoke []func(jti string)

	now   func() time.Time
	newID func() string
}

// NewIssuer creates an Issuer
func NewIssuer(tokens TokenStore, users UserLookup, sealer Sealer) *Issuer {
	return &Issuer{
		tokens: tokens,
		users:  users,
		sealer: sealer,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// OnRevoke registers a callback run after a token is revoked
func (i *Issuer) OnRevoke(fn func(jti string)) {
	i.onRevoke = append(i.onRevoke, fn)
}

// Issue normalizes requestedScope, signs a credential for user, and records it.
// Credentials carrying the "call" scope never expire and have no refresh token;
// all others expire after AccessTokenLifetime.
func (i *Issuer) Issue(ctx context.Context, user *models.User, requestedScope string, rc RequestContext) (*Credential, error) {
	scope := NormalizeScope(requestedScope)
	expiring := !HasScope(ParseScopes(scope), ScopeCall)

	now := i.now()
	origin := rc.Origin()
	jti := i.newID()

	claims := &Claims{
		Username: user.Username,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   origin,
			Audience: jwt.ClaimStrings{origin},
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(time.Unix(now.Unix(), 0)),
			ID:       jti,
		},
	}

	record := &models.AccessToken{
		ID:       jti,
		UserID:   user.ID,
		Scope:    scope,
		IssuedAt: now,
	}
	if rc.ClientIP != "" {
		ip := rc.ClientIP
		record.UserIP = &ip
	}

	cred := &Credential{
		TokenType: TokenTypeBearer,
		Scope:     scope,
		JTI:       jti,
	}

	if expiring {
		expiresAt := now.Add(AccessTokenLifetime)
		claims.ExpiresAt = jwt.NewNumericDate(time.Unix(ceilUnix(expiresAt), 0))
		record.ExpiresAt = &expiresAt
		cred.ExpiresIn = int(AccessTokenLifetime / time.Second)
	}

	accessToken, err := SignClaims(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	cred.AccessToken = accessToken

	if expiring {
		refreshToken, err := i.sealRefreshToken(jti)
		if err != nil {
			return nil, err
		}
		cred.RefreshToken = refreshToken
	}

	if err := i.tokens.CreateAccessToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	kind := "expiring"
	if !expiring {
		kind = "non_expiring"
	}
	telemetry.TokensIssuedTotal.WithLabelValues(kind).Inc()

	return cred, nil
}

// Refresh redeems a refresh token: the access token it references is revoked and a
// new credential is issued for the same user. requestedScope may narrow, never widen,
// the original grant; an empty request keeps it.
func (i *Issuer) Refresh(ctx context.Context, refreshToken, requestedScope string, rc RequestContext) (*Credential, error) {
	rt, err := i.OpenRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	previous, err := i.tokens.GetAccessToken(ctx, rt.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if previous == nil || previous.IsRevoked() || previous.ExpiresAt == nil {
		return nil, ErrRefreshTokenStale
	}
	if i.now().After(previous.IssuedAt.Add(RefreshTokenLifetime)) {
		return nil, ErrRefreshTokenStale
	}

	user, err := i.users.GetUserByID(ctx, previous.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	revoked, err := i.Revoke(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	if !revoked {
		// Lost a race with a concurrent redemption of the same refresh token
		return nil, ErrRefreshTokenStale
	}

	return i.Issue(ctx, user, NarrowScope(previous.Scope, requestedScope), rc)
}

// Revoke marks the token identified by jti as revoked. It reports false when the token
// was unknown or already revoked.
func (i *Issuer) Revoke(ctx context.Context, jti string) (bool, error) {
	revoked, err := i.tokens.RevokeAccessToken(ctx, jti, i.now())
	if err != nil {
		return false, fmt.Errorf("failed to revoke access token: %w", err)
	}
	for _, fn := range i.onRevoke {
		fn(jti)
	}
	return revoked, nil
}

// OpenRefreshToken decrypts and decodes a refresh token
func (i *Issuer) OpenRefreshToken(refreshToken string) (*RefreshClaims, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	plaintext, err := i.sealer.Open(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	var rt RefreshClaims
	if err := json.Unmarshal([]byte(plaintext), &rt); err != nil || rt.Sub == "" {
		return nil, ErrInvalidRefreshToken
	}
	return &rt, nil
}

func (i *Issuer) sealRefreshToken(accessJTI string) (string, error) {
	payload, err := json.Marshal(RefreshClaims{ID: i.newID(), Sub: accessJTI})
	if err != nil {
		return "", fmt.Errorf("failed to encode refresh token: %w", err)
	}
	sealed, err := i.sealer.Seal(string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to seal refresh token: %w", err)
	}
	return sealed, nil
}

// ceilUnix rounds t up to a whole second
func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	return sec
}

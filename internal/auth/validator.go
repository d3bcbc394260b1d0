// Package auth - validator.go decides whether a presented bearer credential is admitted.
// A token must carry a valid signature and a backing AccessToken record that is neither
// expired nor revoked.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/telemetry"
)

// DefaultRecordCacheTTL is the staleness window for cached token records.
// A revocation made on another replica is honored here after at most this long.
const DefaultRecordCacheTTL = 5 * time.Second

var (
	// ErrTokenInvalid is returned when the signature or embedded claims do not verify
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenNotFound is returned when no record exists for the token's jti
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when the record's expiry has passed
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the record has been revoked
	ErrTokenRevoked = errors.New("token revoked")
)

// TokenLookup reads access token records
type TokenLookup interface {
	GetAccessToken(ctx context.Context, id string) (*models.AccessToken, error)
}

// Validator checks bearer credentials against their stored records.
// It never writes and is safe for concurrent use.
type Validator struct {
	tokens     TokenLookup
	cache      *expirable.LRU[string, models.AccessToken]
	parserOpts []jwt.ParserOption
	now        func() time.Time
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithRecordCache caches found records for ttl. A ttl of zero disables caching.
func WithRecordCache(size int, ttl time.Duration) ValidatorOption {
	return func(v *Validator) {
		if ttl <= 0 || size <= 0 {
			v.cache = nil
			return
		}
		v.cache = expirable.NewLRU[string, models.AccessToken](size, nil, ttl)
	}
}

// WithExpectedOrigin requires the token's issuer and audience to equal origin
func WithExpectedOrigin(origin string) ValidatorOption {
	return func(v *Validator) {
		if origin == "" {
			return
		}
		v.parserOpts = append(v.parserOpts, jwt.WithIssuer(origin), jwt.WithAudience(origin))
	}
}

// NewValidator creates a Validator
func NewValidator(tokens TokenLookup, opts ...ValidatorOption) *Validator {
	v := &Validator{
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate verifies tokenString and returns its claims when the token is admitted.
// Checks run in order and stop at the first failure: signature and embedded claims,
// record lookup by jti, record expiry, record revocation.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := ParseClaims(tokenString, v.parserOpts...)
	if err != nil {
		telemetry.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	record, err := v.lookup(ctx, claims.ID)
	if err != nil {
		telemetry.TokenValidationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if record == nil {
		telemetry.TokenValidationsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrTokenNotFound
	}

	if record.IsExpired(v.now()) {
		telemetry.TokenValidationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}

	if record.IsRevoked() {
		telemetry.TokenValidationsTotal.WithLabelValues("revoked").Inc()
		return nil, ErrTokenRevoked
	}

	telemetry.TokenValidationsTotal.WithLabelValues("admitted").Inc()
	return claims, nil
}

// IsRejection reports whether err means the credential was refused, as opposed to
// the validator failing to reach its store
func IsRejection(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked)
}

// Invalidate drops any cached record for jti
func (v *Validator) Invalidate(jti string) {
	if v.cache != nil {
		v.cache.Remove(jti)
	}
}

func (v *Validator) lookup(ctx context.Context, jti string) (*models.AccessToken, error) {
	if v.cache != nil {
		if cached, ok := v.cache.Get(jti); ok {
			return &cached, nil
		}
	}

	record, err := v.tokens.GetAccessToken(ctx, jti)
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}

	if record != nil && v.cache != nil {
		v.cache.Add(jti, *record)
	}
	return record, nil
}

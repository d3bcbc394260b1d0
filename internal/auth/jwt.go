package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecretEnv is the environment variable holding the HMAC signing secret.
const JWTSecretEnv = "HKR_JWT_SECRET"

// accessTokenType is the JOSE typ header of every access token (RFC 9068).
const accessTokenType = "at+jwt"

// minSecretLength is the recommended minimum secret length in bytes.
const minSecretLength = 32

var (
	// ErrNoSigningSecret is returned outside dev mode when HKR_JWT_SECRET is unset.
	ErrNoSigningSecret = errors.New("HKR_JWT_SECRET environment variable is required; generate one with: openssl rand -hex 32")
	// ErrWrongTokenType is returned for JWTs that are not access tokens.
	ErrWrongTokenType = errors.New("token is not an access token")
	// ErrNoJTI is returned for tokens without an identifier to look up.
	ErrNoJTI = errors.New("token has no jti")
)

// signingKey is loaded once, from the configured secret or the environment; see
// SetSigningSecret and ValidateJWTSecret.
var signingKey struct {
	once       sync.Once
	configured string
	key        []byte
	err        error
}

// Claims is the payload of an access token.
type Claims struct {
	Username string `json:"username"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// Scopes returns the granted scopes as a slice.
func (c *Claims) Scopes() []string {
	return ParseScopes(c.Scope)
}

func devMode() bool {
	v := os.Getenv("DEV_MODE")
	return v == "true" || v == "1" || os.Getenv("GIN_MODE") == "debug"
}

// SetSigningSecret supplies the secret from configuration (auth.jwt_secret). It takes
// precedence over HKR_JWT_SECRET and must be called before any token is signed or parsed.
func SetSigningSecret(secret string) {
	signingKey.configured = secret
}

func loadSigningKey() ([]byte, error) {
	secret := signingKey.configured
	if secret == "" {
		secret = os.Getenv(JWTSecretEnv)
	}
	if secret != "" {
		if len(secret) < minSecretLength {
			slog.Warn("HKR_JWT_SECRET is shorter than recommended", "length", len(secret), "recommended", minSecretLength)
		}
		return []byte(secret), nil
	}
	if !devMode() {
		return nil, ErrNoSigningSecret
	}
	key := make([]byte, minSecretLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate development secret: %w", err)
	}
	slog.Warn("HKR_JWT_SECRET not set, using a random development secret; tokens will not survive a restart")
	return key, nil
}

// ValidateJWTSecret loads the signing secret. Outside dev mode (DEV_MODE=true or
// GIN_MODE=debug) a missing HKR_JWT_SECRET is an error. Call it at startup so a
// misconfiguration fails fast rather than on the first token request.
func ValidateJWTSecret() error {
	_, err := secret()
	return err
}

func secret() ([]byte, error) {
	signingKey.once.Do(func() {
		signingKey.key, signingKey.err = loadSigningKey()
	})
	return signingKey.key, signingKey.err
}

// SignClaims signs claims with HS256 and returns the compact token.
func SignClaims(claims *Claims) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = accessTokenType
	return token.SignedString(key)
}

// ParseClaims verifies the signature, token type and registered claims of an access
// token. opts add checks such as issuer and audience.
func ParseClaims(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if typ, _ := t.Header["typ"].(string); typ != accessTokenType {
			return nil, ErrWrongTokenType
		}
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrNoJTI
	}
	return claims, nil
}

package auth

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

// resetSigningKey forgets the loaded and configured secrets so the next call reads the environment.
func resetSigningKey(t *testing.T) {
	t.Helper()
	signingKey.once = sync.Once{}
	signingKey.configured, signingKey.key, signingKey.err = "", nil, nil
	t.Cleanup(func() {
		signingKey.once = sync.Once{}
		signingKey.configured, signingKey.key, signingKey.err = "", nil, nil
	})
}

func TestMain(m *testing.M) {
	os.Setenv(JWTSecretEnv, testSecret)
	os.Exit(m.Run())
}

func testClaims(jti string, expiresIn time.Duration) *Claims {
	now := time.Now()
	c := &Claims{
		Username: "alice",
		Scope:    "read:webhooks call",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "http://relay.test",
			Audience: jwt.ClaimStrings{"http://relay.test"},
			Subject:  "user-123",
			IssuedAt: jwt.NewNumericDate(now),
			ID:       jti,
		},
	}
	if expiresIn != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(expiresIn))
	}
	return c
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		devMode string
		ginMode string
		wantErr error
	}{
		{name: "configured", secret: testSecret},
		{name: "short secret still accepted", secret: "short"},
		{name: "missing in production", ginMode: "release", wantErr: ErrNoSigningSecret},
		{name: "generated in dev mode", devMode: "true"},
		{name: "generated under gin debug", ginMode: "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSigningKey(t)
			t.Setenv(JWTSecretEnv, tt.secret)
			t.Setenv("DEV_MODE", tt.devMode)
			t.Setenv("GIN_MODE", tt.ginMode)

			err := ValidateJWTSecret()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateJWTSecret() = %v, want %v", err, tt.wantErr)
			}
			if err == nil && len(signingKey.key) == 0 {
				t.Error("no signing key loaded")
			}
		})
	}
}

func TestSetSigningSecret(t *testing.T) {
	const configured = "configured-secret-from-config-yaml!"
	tests := []struct {
		name string
		env  string
	}{
		{"without environment", ""},
		{"overrides environment", testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetSigningKey(t)
			t.Setenv(JWTSecretEnv, tt.env)
			t.Setenv("DEV_MODE", "")
			t.Setenv("GIN_MODE", "release")

			SetSigningSecret(configured)
			if err := ValidateJWTSecret(); err != nil {
				t.Fatalf("ValidateJWTSecret() = %v, want nil", err)
			}
			if string(signingKey.key) != configured {
				t.Errorf("signing key = %q, want the configured secret", signingKey.key)
			}
		})
	}
}

func TestSignClaims_FailsWithoutSecret(t *testing.T) {
	resetSigningKey(t)
	t.Setenv(JWTSecretEnv, "")
	t.Setenv("DEV_MODE", "")
	t.Setenv("GIN_MODE", "release")

	if _, err := SignClaims(testClaims("jti", time.Hour)); !errors.Is(err, ErrNoSigningSecret) {
		t.Errorf("SignClaims() = %v, want ErrNoSigningSecret", err)
	}
}

func TestSignAndParseClaims(t *testing.T) {
	resetSigningKey(t)

	token, err := SignClaims(testClaims("jti-1", time.Hour))
	if err != nil {
		t.Fatalf("SignClaims() error: %v", err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if parsed.Header["typ"] != "at+jwt" {
		t.Errorf("typ header = %v, want at+jwt", parsed.Header["typ"])
	}

	claims, err := ParseClaims(token, jwt.WithIssuer("http://relay.test"), jwt.WithAudience("http://relay.test"))
	if err != nil {
		t.Fatalf("ParseClaims() error: %v", err)
	}
	if claims.ID != "jti-1" || claims.Username != "alice" || claims.Subject != "user-123" {
		t.Errorf("claims = %+v", claims)
	}
	if got := claims.Scopes(); len(got) != 2 || got[0] != "read:webhooks" || got[1] != "call" {
		t.Errorf("Scopes() = %v, want [read:webhooks call]", got)
	}
}

func TestParseClaims_NoExpiry(t *testing.T) {
	resetSigningKey(t)

	token, _ := SignClaims(testClaims("jti-2", 0))
	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims() error: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want none", claims.ExpiresAt)
	}
}

func TestParseClaims_Rejections(t *testing.T) {
	resetSigningKey(t)

	sign := func(c *Claims) string {
		s, err := SignClaims(c)
		if err != nil {
			t.Fatalf("SignClaims: %v", err)
		}
		return s
	}
	plainJWT := func() string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims("jti-typ", time.Hour))
		s, _ := tok.SignedString([]byte(testSecret))
		return s
	}
	unsigned := func() string {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims("jti-none", time.Hour))
		tok.Header["typ"] = "at+jwt"
		s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		return s
	}
	foreign := func() string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims("jti-foreign", time.Hour))
		tok.Header["typ"] = "at+jwt"
		s, _ := tok.SignedString([]byte("completely-different-secret-32ch!"))
		return s
	}

	tests := []struct {
		name    string
		token   string
		opts    []jwt.ParserOption
		wantErr error
	}{
		{name: "expired", token: sign(testClaims("jti-3", -time.Minute)), wantErr: jwt.ErrTokenExpired},
		{name: "no jti", token: sign(testClaims("", time.Hour)), wantErr: ErrNoJTI},
		{name: "audience mismatch", token: sign(testClaims("jti-4", time.Hour)), opts: []jwt.ParserOption{jwt.WithAudience("https://other.test")}, wantErr: jwt.ErrTokenInvalidAudience},
		{name: "issuer mismatch", token: sign(testClaims("jti-5", time.Hour)), opts: []jwt.ParserOption{jwt.WithIssuer("https://other.test")}, wantErr: jwt.ErrTokenInvalidIssuer},
		{name: "plain JWT type", token: plainJWT(), wantErr: ErrWrongTokenType},
		{name: "alg none", token: unsigned(), wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "other secret", token: foreign(), wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "garbage", token: "not.a.valid.token", wantErr: jwt.ErrTokenMalformed},
		{name: "empty", token: "", wantErr: jwt.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClaims(tt.token, tt.opts...); !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseClaims() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

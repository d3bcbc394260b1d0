// security.go sets the protective response headers of a JSON-only API.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig selects the response headers added to every request.
// Empty string fields are omitted.
type SecurityHeadersConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security when positive
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool

	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string

	// NoStore marks every response uncacheable. Token responses and captured
	// webhook payloads must never sit in a shared cache.
	NoStore bool
}

// APISecurityHeaders returns the headers for the relay's API. HSTS is only sent
// when the server terminates TLS itself.
func APISecurityHeaders(tlsEnabled bool) SecurityHeadersConfig {
	cfg := SecurityHeadersConfig{
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
	}
	if tlsEnabled {
		cfg.HSTSMaxAge = 365 * 24 * time.Hour
	}
	return cfg
}

// headers renders the configuration into name/value pairs
func (cfg SecurityHeadersConfig) headers() [][2]string {
	h := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
	}
	if cfg.HSTSMaxAge > 0 {
		v := "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10)
		if cfg.HSTSIncludeSubdomains {
			v += "; includeSubDomains"
		}
		h = append(h, [2]string{"Strict-Transport-Security", v})
	}
	if cfg.FrameOptions != "" {
		h = append(h, [2]string{"X-Frame-Options", cfg.FrameOptions})
	}
	if cfg.ContentSecurityPolicy != "" {
		h = append(h, [2]string{"Content-Security-Policy", cfg.ContentSecurityPolicy})
	}
	if cfg.ReferrerPolicy != "" {
		h = append(h, [2]string{"Referrer-Policy", cfg.ReferrerPolicy})
	}
	if cfg.NoStore {
		h = append(h, [2]string{"Cache-Control", "no-store"})
	}
	return h
}

// SecurityHeadersMiddleware adds the configured headers before the handler runs,
// so handlers may still override any of them
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig) gin.HandlerFunc {
	pairs := cfg.headers()
	return func(c *gin.Context) {
		for _, p := range pairs {
			c.Header(p[0], p[1])
		}
		c.Next()
	}
}

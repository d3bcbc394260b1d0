// Package api wires together all HTTP routes for the hookrelay service.
//
// Route grouping:
//   - /oauth/token and /auth/register are unauthenticated but rate limited with the
//     stricter auth limits, since they accept passwords and refresh tokens.
//   - /webhook routes always require a bearer credential and the scope of the
//     operation. GET /webhook/:id/call gets its own limiter because every request
//     makes an outbound HTTP call.
//   - /health and /ready are unauthenticated probes.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/audit"
	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/crypto"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
	"github.com/hookrelay/hookrelay/internal/middleware"
	"github.com/hookrelay/hookrelay/internal/webhooks"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Version is reported by GET /version and overridden at build time
var Version = "dev"

const (
	// EncryptionKeyEnv names the variable holding the refresh-token cipher key
	EncryptionKeyEnv = "ENCRYPTION_KEY"
	// PreviousEncryptionKeysEnv lists retired keys, comma separated, that may still open refresh tokens
	PreviousEncryptionKeysEnv = "ENCRYPTION_KEY_PREVIOUS"
)

// Services are the collaborators the HTTP layer runs on
type Services struct {
	Users      UserStore
	Issuer     *auth.Issuer
	Validator  middleware.TokenValidator
	Registry   *webhooks.Registry
	Dispatcher *webhooks.Dispatcher

	// AuditRepo and Shipper are optional
	AuditRepo middleware.AuditLogWriter
	Shipper   audit.Shipper

	// Checks run by /ready in order; the first is also the /health liveness probe
	Checks []ReadinessCheck
}

// ReadinessCheck probes one dependency
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// BackgroundServices holds references to background goroutines and connections that
// must be released during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	redis   *redis.Client
	shipper audit.Shipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter builds the repositories, token services and webhook services over db and
// returns the configured Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	key, previous, err := LoadEncryptionKeys()
	if err != nil {
		return nil, nil, err
	}
	tokenCipher, err := crypto.NewTokenCipher(key, previous...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	userRepo := repositories.NewUserRepository(db)
	tokenRepo := repositories.NewAccessTokenRepository(db)

	// Webhook and audit tables go through sqlx for struct scanning
	sqlxDB := sqlx.NewDb(db, "postgres")
	auditRepo := repositories.NewAuditRepository(sqlxDB)
	webhookRepo := repositories.NewWebhookRepository(sqlxDB)
	webhookLogRepo := repositories.NewWebhookLogRepository(sqlxDB)

	validator := auth.NewValidator(tokenRepo,
		auth.WithRecordCache(cfg.Auth.TokenCache.Size, cfg.Auth.TokenCache.TTL),
		auth.WithExpectedOrigin(cfg.Auth.ExpectedOrigin),
	)
	issuer := auth.NewIssuer(tokenRepo, userRepo, tokenCipher)
	issuer.OnRevoke(validator.Invalidate)

	svc := &Services{
		Users:     userRepo,
		Issuer:    issuer,
		Validator: validator,
		Registry:  webhooks.NewRegistry(webhookRepo),
		Dispatcher: webhooks.NewDispatcher(webhookLogRepo,
			webhooks.WithTimeout(cfg.Webhooks.DispatchTimeout),
			webhooks.WithMaxResponseBytes(cfg.Webhooks.MaxResponseBytes),
		),
		Checks: []ReadinessCheck{{Name: "database", Check: db.PingContext}},
	}

	bg := &BackgroundServices{}

	if cfg.Audit.Enabled {
		svc.AuditRepo = auditRepo
		shipper, err := audit.New(&cfg.Audit)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
		}
		if shipper != nil && shipper.Len() > 0 {
			svc.Shipper = shipper
			bg.shipper = shipper
		}
	}

	if cfg.Security.RateLimiting.Enabled && cfg.Security.RateLimiting.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		bg.redis = redis.NewClient(opts)
		svc.Checks = append(svc.Checks, ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return bg.redis.Ping(ctx).Err() },
		})
	}

	router := newEngine(cfg, svc, bg)
	return router, bg, nil
}

// limiterSet holds the per-route-class limiters; nil members disable limiting
type limiterSet struct {
	general middleware.KeyedLimiter
	auth    middleware.KeyedLimiter
	call    middleware.KeyedLimiter
}

func newLimiters(cfg *config.Config, bg *BackgroundServices) limiterSet {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return limiterSet{}
	}

	general := middleware.DefaultRateLimitConfig()
	if rl.RequestsPerMinute > 0 {
		general.RequestsPerMinute = rl.RequestsPerMinute
	}
	if rl.Burst > 0 {
		general.BurstSize = rl.Burst
	}

	if bg.redis != nil {
		return limiterSet{
			general: middleware.NewRedisLimiter(bg.redis, general, "hkr:rl:general:"),
			auth:    middleware.NewRedisLimiter(bg.redis, middleware.AuthRateLimitConfig(), "hkr:rl:auth:"),
			call:    middleware.NewRedisLimiter(bg.redis, middleware.CallRateLimitConfig(), "hkr:rl:call:"),
		}
	}
	return limiterSet{
		general: middleware.NewMemoryLimiter(general),
		auth:    middleware.NewMemoryLimiter(middleware.AuthRateLimitConfig()),
		call:    middleware.NewMemoryLimiter(middleware.CallRateLimitConfig()),
	}
}

func rateLimit(limiter middleware.KeyedLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimitMiddleware(limiter)
}

// newEngine registers every route over svc
func newEngine(cfg *config.Config, svc *Services, bg *BackgroundServices) *gin.Engine {
	router := gin.New()
	limiters := newLimiters(cfg, bg)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/ready"))
	router.Use(middleware.RequestLoggerMiddleware(slog.Default()))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeaders(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(svc.Checks))
	router.GET("/ready", readinessHandler(svc.Checks))
	router.GET("/version", versionHandler())

	var auditMW gin.HandlerFunc
	if svc.AuditRepo != nil || svc.Shipper != nil {
		auditMW = middleware.AuditMiddleware(svc.AuditRepo, svc.Shipper, &cfg.Audit)
	} else {
		auditMW = func(c *gin.Context) { c.Next() }
	}

	requireAuth := middleware.AuthMiddleware(svc.Validator)

	tokenHandlers := NewTokenHandlers(svc.Users, svc.Issuer)
	userHandlers := NewUserHandlers(svc.Users, cfg.Auth.BcryptCost)
	webhookHandlers := NewWebhookHandlers(svc.Registry, svc.Dispatcher)

	// Token endpoints
	oauthGroup := router.Group("/oauth")
	oauthGroup.Use(auditMW)
	{
		oauthGroup.POST("/token", rateLimit(limiters.auth), tokenHandlers.TokenHandler())
		oauthGroup.POST("/revoke", requireAuth, rateLimit(limiters.general), tokenHandlers.RevokeHandler())
	}

	// Account endpoints
	authGroup := router.Group("/auth")
	authGroup.Use(auditMW)
	{
		authGroup.POST("/register", rateLimit(limiters.auth), userHandlers.RegisterHandler())
		authGroup.GET("/user", requireAuth, rateLimit(limiters.general), userHandlers.CurrentUserHandler())
	}

	// Webhook endpoints (bearer auth + scope)
	webhookGroup := router.Group("/webhook")
	webhookGroup.Use(requireAuth)
	webhookGroup.Use(auditMW)
	{
		webhookGroup.GET("",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeReadWebhooks),
			webhookHandlers.ListHandler())
		webhookGroup.POST("",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeWriteWebhooks),
			webhookHandlers.CreateHandler())
		webhookGroup.GET("/:id",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeReadWebhooks),
			webhookHandlers.ShowHandler())
		webhookGroup.PUT("/:id",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeWriteWebhooks),
			webhookHandlers.UpdateHandler())
		webhookGroup.PATCH("/:id",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeWriteWebhooks),
			webhookHandlers.PatchHandler())
		webhookGroup.DELETE("/:id",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeDeleteWebhooks),
			webhookHandlers.DeleteHandler())
		webhookGroup.GET("/:id/call",
			rateLimit(limiters.call), // Stricter limit, each call leaves the process
			middleware.RequireScope(auth.ScopeCall),
			webhookHandlers.CallHandler())
		webhookGroup.GET("/:id/logs",
			rateLimit(limiters.general),
			middleware.RequireScope(auth.ScopeReadWebhooks),
			webhookHandlers.LogsHandler())
	}

	return router
}

// healthCheckHandler returns the liveness of the service. Only the first check
// (the database) is consulted.
func healthCheckHandler(checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(checks) > 0 {
			if err := checks[0].Check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  checks[0].Name + " connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis when the rate
// limiter depends on it.
func readinessHandler(checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := gin.H{}

		for _, check := range checks {
			if err := check.Check(c.Request.Context()); err != nil {
				results[check.Name] = "unhealthy"
				slog.Warn("readiness check failed", "check", check.Name, "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": results,
					"error":  check.Name + " not ready",
				})
				return
			}
			results[check.Name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the build version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
		})
	}
}

var defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := cfg.Security.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ErrMissingEncryptionKey is returned by LoadEncryptionKeys when the variable is unset
var ErrMissingEncryptionKey = errors.New(EncryptionKeyEnv + " environment variable must be set")

// LoadEncryptionKeys reads the current refresh-token cipher key and any retired keys
// from the environment
func LoadEncryptionKeys() (current []byte, previous [][]byte, err error) {
	raw := os.Getenv(EncryptionKeyEnv)
	if raw == "" {
		return nil, nil, ErrMissingEncryptionKey
	}
	if current, err = crypto.ParseKey(raw); err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", EncryptionKeyEnv, err)
	}
	if previous, err = crypto.ParseKeyList(os.Getenv(PreviousEncryptionKeysEnv)); err != nil {
		return nil, nil, fmt.Errorf("invalid %s: %w", PreviousEncryptionKeysEnv, err)
	}
	return current, previous, nil
}

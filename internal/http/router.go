// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/activity"
	"github.com/agoranet/go-messenger-backend/internal/config"
	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/http/handlers"
	"github.com/agoranet/go-messenger-backend/internal/http/middleware"
	"github.com/agoranet/go-messenger-backend/internal/push"
	"github.com/agoranet/go-messenger-backend/internal/repo"
	"github.com/agoranet/go-messenger-backend/internal/services"
	"github.com/agoranet/go-messenger-backend/internal/translate"
	"github.com/agoranet/go-messenger-backend/internal/ws"
)

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface expected by the ConversationService.
// This keeps services decoupled from the concrete repo package while reusing
// existing functions.
type conversationRepoShim struct{}

// GetOrCreateConversation proxies repo.GetOrCreateConversation.
func (conversationRepoShim) GetOrCreateConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Conversation, error) {
	return repo.GetOrCreateConversation(ctx, db, userA, userB)
}

// GetConversation proxies repo.GetConversation.
func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// CountConversations proxies repo.CountConversations.
func (conversationRepoShim) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}

// ListConversationsPage proxies repo.ListConversationsPage.
func (conversationRepoShim) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}

// HideConversation proxies repo.HideConversation.
func (conversationRepoShim) HideConversation(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	return repo.HideConversation(ctx, db, conversationID, userID)
}

// DeleteConversation proxies repo.DeleteConversation.
func (conversationRepoShim) DeleteConversation(ctx context.Context, db *gorm.DB, conversationID string) error {
	return repo.DeleteConversation(ctx, db, conversationID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the websocket hub for the caller to run. It configures
// observability (tracing, metrics), idempotency and rate limiting, CORS and
// security headers, health and metrics endpoints, and then mounts the
// versioned public API under /api/v* plus the /ws realtime endpoint.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, rdb *redis.Client, rec *activity.Recorder, cfg config.Config) *ws.Hub {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses (message pages are repetitive JSON)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, conversationID, key string, now time.Time) (bool, error) {
			idem, err := repo.GetIdempotency(ctx, db, userID, conversationID, key, now)
			if err != nil || idem == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/collaborators
	convSvc := services.NewConversationService(db, conversationRepoShim{})
	msgSvc := &services.MessageService{
		DB:                     db,
		Activity:               rec,
		MaxBodyRunes:           cfg.MaxBodyRunes,
		InvalidateTranslations: cfg.InvalidateTranslationsOnEdit,
	}
	if cfg.PushGatewayURL != "" {
		msgSvc.Push = &push.Sender{
			DB:         db,
			GatewayURL: cfg.PushGatewayURL,
			APIKey:     cfg.PushAPIKey,
		}
	}
	trSvc := &services.TranslationService{
		DB:         db,
		Translator: translate.NewClient(cfg.TranslateURL, cfg.TranslateAPIKey),
		Messages:   msgSvc,
	}
	callSvc := &services.CallService{
		DB:            db,
		Conversations: convSvc,
		Activity:      rec,
		TokenSecret:   []byte(cfg.JWTSecret),
		TokenTTL:      cfg.CallTokenTTL,
	}
	deviceSvc := &services.DeviceService{DB: db}

	// Realtime hub; the message service fans out through it once wired.
	hub := ws.NewHub(rdb, msgSvc, convSvc, callSvc)
	msgSvc.Notify = hub

	h := handlers.New(convSvc, msgSvc, trSvc, callSvc, deviceSvc)
	wsHandler := &ws.Handler{Hub: hub, JWTSecret: []byte(cfg.JWTSecret)}

	// Realtime endpoint (outside the API prefix; browsers dial it directly)
	r.GET("/ws", wsHandler.Serve)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Conversations
		api.POST("/conversations", h.StartConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id", h.GetConversation)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.POST("/conversations/:id/hide", h.HideConversation)
		api.POST("/conversations/:id/read", h.MarkConversationRead)

		// Messages
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.GET("/conversations/:id/messages/search", h.SearchMessages)
		api.POST("/messages/:id/delivered", h.MarkMessageDelivered)
		api.POST("/messages/:id/read", h.MarkMessageRead)
		api.PUT("/messages/:id", h.EditMessage)
		api.DELETE("/messages/:id", h.DeleteMessage)

		// Translations
		api.POST("/messages/:id/translations", h.TranslateMessage)

		// Calls
		api.GET("/conversations/:id/calls", h.ListCalls)
		api.POST("/conversations/:id/call-token", h.IssueCallToken)

		// Devices
		api.POST("/devices", h.RegisterDevice)
		api.GET("/devices", h.ListDevices)
		api.DELETE("/devices/:token", h.UnregisterDevice)
	}

	return hub
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

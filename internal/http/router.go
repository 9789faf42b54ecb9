// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/zapvite/go-wa-backend/internal/config"
	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/http/handlers"
	"github.com/zapvite/go-wa-backend/internal/http/middleware"
	"github.com/zapvite/go-wa-backend/internal/reply"
	"github.com/zapvite/go-wa-backend/internal/services"
)

// Dependencies carries the long-lived components built at boot that the HTTP
// layer cannot construct itself: the dispatcher (which owns the gateway
// transport and dedup state), the background loop that drives it, the webhook
// ring buffer, and the reply classifier.
type Dependencies struct {
	Dispatch   *services.DispatchService
	Scheduler  handlers.SchedulerControl
	Ring       *events.Ring
	Classifier *reply.Classifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, the gateway webhook
// sink, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Response compression
//  7. Metrics
//  8. Rate limiter (per user/IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Dependencies, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Contact phone numbers and the
	// X-User-ID owner header are the PII on virtually every request here;
	// the middleware masks the identity header itself and pattern-scrubs
	// phones, emails, and ids from everything else it logs.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // set when deployments front the API with a shared key
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses; list endpoints can carry hundreds of rows
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
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
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
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

	// Dependency injection: services ← db + boot components
	msgSvc := &services.MessageService{
		DB:              db,
		Sender:          deps.Dispatch,
		MaxContentRunes: cfg.MaxContentRunes,
	}
	contactSvc := &services.ContactService{DB: db}
	confSvc := &services.ConfirmationService{
		DB:              db,
		MaxContentRunes: cfg.MaxContentRunes,
	}
	sessionSvc := &services.SessionService{
		DB:            db,
		Transport:     deps.Dispatch.Transport,
		SessionPrefix: cfg.Gateway.SessionPrefix,
	}
	webhookSvc := &services.WebhookService{
		DB:                 db,
		Ring:               deps.Ring,
		Classifier:         deps.Classifier,
		SessionPrefix:      cfg.Gateway.SessionPrefix,
		DefaultCountryCode: cfg.DefaultCountryCode,
	}
	h := handlers.New(msgSvc, deps.Dispatch, contactSvc, confSvc, sessionSvc, webhookSvc, deps.Scheduler, deps.Ring)

	// Gateway callbacks stay outside the versioned API; the gateway is
	// configured with a fixed URL and does not follow API versioning.
	r.POST("/webhooks/whatsapp", h.ReceiveWebhook)
	r.GET("/webhooks/events", h.ListWebhookEvents)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Messages
		api.POST("/messages", h.SendMessage)
		api.POST("/messages/bulk", h.SendBulkMessage)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:id", h.GetMessage)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.POST("/messages/:id/send", h.SendMessageNow)

		// Contacts
		api.POST("/contacts", h.CreateContact)
		api.GET("/contacts", h.ListContacts)
		api.GET("/contacts/:id", h.GetContact)
		api.DELETE("/contacts/:id", h.DeleteContact)

		// Confirmations
		api.POST("/confirmations", h.CreateConfirmation)
		api.GET("/confirmations", h.ListConfirmations)
		api.GET("/confirmations/pending", h.ListPendingConfirmations)
		api.GET("/confirmations/:id", h.GetConfirmation)

		// Session mirror
		api.GET("/sessions/status", h.SessionStatusHandler)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.SchedulerStatus)
	}
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
